package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
)

// ===================================
// Analyze PM Metrics Tool
// ===================================

type PMSample struct {
	Counter string  `json:"counter"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Period  string  `json:"period"`
}

type analyzePMMetricsTool struct{}

func NewAnalyzePMMetricsTool() model.Tool {
	return &analyzePMMetricsTool{}
}

func (t *analyzePMMetricsTool) Name() string {
	return "analyze_pm_metrics"
}

func (t *analyzePMMetricsTool) Description() string {
	return "Retrieve and analyze performance management counters for a RAN device over the last reporting period. Covers accessibility (RRC setup success), retainability (drop rate), mobility (handover success), throughput and PRB utilization. Flags counters that breach their thresholds. Use when the user asks about KPIs, degradation, drops or congestion."
}

func (t *analyzePMMetricsTool) ArgumentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"device_id": map[string]any{
				"type":        "string",
				"description": "Device whose counters to analyze, e.g. enb-2210.",
			},
			"metric": map[string]any{
				"type":        "string",
				"description": "Counter name or substring to narrow the analysis, e.g. handover. Empty analyzes all counters.",
			},
		},
		"required": []string{"device_id"},
	}
}

func (t *analyzePMMetricsTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}
	metric, _ := args["metric"].(string)

	samples, ok := MockPMData[strings.ToLower(deviceID)]
	if !ok {
		return "", fmt.Errorf("no PM data found for device %q", deviceID)
	}

	var matched []PMSample
	var breaches []string
	for _, s := range samples {
		if metric != "" && !strings.Contains(strings.ToLower(s.Counter), strings.ToLower(metric)) {
			continue
		}
		matched = append(matched, s)
		if msg, bad := checkThreshold(s); bad {
			breaches = append(breaches, msg)
		}
	}
	if len(matched) == 0 {
		return "", fmt.Errorf("no counters matching %q for device %q", metric, deviceID)
	}

	b, err := json.Marshal(map[string]any{
		"device_id": deviceID,
		"samples":   matched,
		"breaches":  breaches,
	})
	if err != nil {
		return "", fmt.Errorf("marshal PM analysis: %w", err)
	}
	return string(b), nil
}

// checkThreshold applies static per-counter thresholds. Values and bounds
// come from the network's standard KPI targets.
func checkThreshold(s PMSample) (string, bool) {
	switch s.Counter {
	case "rrc_setup_success_rate":
		if s.Value < 99.0 {
			return fmt.Sprintf("%s %.2f%% below 99%% target", s.Counter, s.Value), true
		}
	case "call_drop_rate":
		if s.Value > 0.5 {
			return fmt.Sprintf("%s %.2f%% above 0.5%% target", s.Counter, s.Value), true
		}
	case "handover_success_rate":
		if s.Value < 97.0 {
			return fmt.Sprintf("%s %.2f%% below 97%% target", s.Counter, s.Value), true
		}
	case "prb_utilization_dl":
		if s.Value > 85.0 {
			return fmt.Sprintf("%s %.1f%% above 85%% congestion threshold", s.Counter, s.Value), true
		}
	}
	return "", false
}

var MockPMData = map[string][]PMSample{
	"gnb-0142": {
		{Counter: "rrc_setup_success_rate", Value: 99.72, Unit: "%", Period: "15m"},
		{Counter: "call_drop_rate", Value: 0.21, Unit: "%", Period: "15m"},
		{Counter: "handover_success_rate", Value: 98.4, Unit: "%", Period: "15m"},
		{Counter: "dl_throughput_avg", Value: 312.5, Unit: "Mbps", Period: "15m"},
		{Counter: "prb_utilization_dl", Value: 61.3, Unit: "%", Period: "15m"},
	},
	"enb-2210": {
		{Counter: "rrc_setup_success_rate", Value: 97.88, Unit: "%", Period: "15m"},
		{Counter: "call_drop_rate", Value: 1.42, Unit: "%", Period: "15m"},
		{Counter: "handover_success_rate", Value: 94.1, Unit: "%", Period: "15m"},
		{Counter: "dl_throughput_avg", Value: 48.7, Unit: "Mbps", Period: "15m"},
		{Counter: "prb_utilization_dl", Value: 91.8, Unit: "%", Period: "15m"},
	},
	"gnb-0901": {
		{Counter: "rrc_setup_success_rate", Value: 99.91, Unit: "%", Period: "15m"},
		{Counter: "call_drop_rate", Value: 0.09, Unit: "%", Period: "15m"},
		{Counter: "handover_success_rate", Value: 99.2, Unit: "%", Period: "15m"},
		{Counter: "dl_throughput_avg", Value: 689.0, Unit: "Mbps", Period: "15m"},
		{Counter: "prb_utilization_dl", Value: 73.5, Unit: "%", Period: "15m"},
	},
}
