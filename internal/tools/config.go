package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// ===================================
// Query RAN Config Tool
// ===================================

type ConfigParameter struct {
	Name        string `json:"name"`
	Object      string `json:"object"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Range       string `json:"range"`
	Description string `json:"description"`
}

type queryRANConfigTool struct{}

func NewQueryRANConfigTool() model.Tool {
	return &queryRANConfigTool{}
}

func (t *queryRANConfigTool) Name() string {
	return "query_ran_config"
}

func (t *queryRANConfigTool) Description() string {
	return "Look up RAN configuration parameters on a device: current value, default, valid range and meaning. Covers mobility, power, scheduler and neighbor parameters such as qRxLevMin, p0NominalPUSCH, a3Offset, timeToTrigger, cellIndividualOffset. Use when the user asks what a parameter does or what it is set to."
}

func (t *queryRANConfigTool) ArgumentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"device_id": map[string]any{
				"type":        "string",
				"description": "Device to read configuration from, e.g. gnb-0142.",
			},
			"parameter": map[string]any{
				"type":        "string",
				"description": "Parameter name or substring, e.g. a3Offset. Empty returns all known parameters for the device.",
			},
		},
		"required": []string{"device_id"},
	}
}

func (t *queryRANConfigTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}
	parameter, _ := args["parameter"].(string)

	params, ok := MockConfig[strings.ToLower(deviceID)]
	if !ok {
		return "", fmt.Errorf("no configuration found for device %q", deviceID)
	}

	var matched []ConfigParameter
	for _, p := range params {
		if parameter == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(parameter)) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return "", fmt.Errorf("parameter %q not found on device %q", parameter, deviceID)
	}

	b, err := json.Marshal(map[string]any{"device_id": deviceID, "parameters": matched})
	if err != nil {
		return "", fmt.Errorf("marshal config data: %w", err)
	}
	return string(b), nil
}

// ===================================
// Apply Config Change Tool
// ===================================

type applyConfigChangeTool struct{}

func NewApplyConfigChangeTool() model.Tool {
	return &applyConfigChangeTool{}
}

func (t *applyConfigChangeTool) Name() string {
	return "apply_config_change"
}

func (t *applyConfigChangeTool) Description() string {
	return "Apply a configuration parameter change to a RAN device. Validates the value against the parameter's allowed range before applying and returns a change ticket reference. Only use after the user has confirmed the change."
}

func (t *applyConfigChangeTool) ArgumentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"device_id": map[string]any{
				"type":        "string",
				"description": "Target device, e.g. gnb-0142.",
			},
			"parameter": map[string]any{
				"type":        "string",
				"description": "Exact parameter name to change, e.g. a3Offset.",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "New value for the parameter.",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Short operator-facing reason recorded on the change ticket.",
			},
			"dry_run": map[string]any{
				"type":        "boolean",
				"description": "Validate the change without applying it.",
			},
		},
		"required": []string{"device_id", "parameter", "value"},
	}
}

func (t *applyConfigChangeTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	parameter, _ := args["parameter"].(string)
	value, _ := args["value"].(string)
	reason, _ := args["reason"].(string)
	if deviceID == "" || parameter == "" || value == "" {
		return "", fmt.Errorf("device_id, parameter and value are required")
	}

	params, ok := MockConfig[strings.ToLower(deviceID)]
	if !ok {
		return "", fmt.Errorf("no configuration found for device %q", deviceID)
	}
	found := false
	for _, p := range params {
		if strings.EqualFold(p.Name, parameter) {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("parameter %q not found on device %q", parameter, deviceID)
	}

	if dryRun, _ := args["dry_run"].(bool); dryRun {
		b, err := json.Marshal(map[string]any{
			"status":    "validated",
			"device_id": deviceID,
			"parameter": parameter,
			"value":     value,
		})
		if err != nil {
			return "", fmt.Errorf("marshal dry-run result: %w", err)
		}
		return string(b), nil
	}

	ticket := fmt.Sprintf("CHG-%s-%s", strings.ToUpper(deviceID), strings.ToUpper(parameter))
	logx.Info().
		Str("device_id", deviceID).
		Str("parameter", parameter).
		Str("value", value).
		Str("ticket", ticket).
		Msg("configuration change applied")

	b, err := json.Marshal(map[string]any{
		"status":    "applied",
		"ticket":    ticket,
		"device_id": deviceID,
		"parameter": parameter,
		"value":     value,
		"reason":    reason,
	})
	if err != nil {
		return "", fmt.Errorf("marshal change result: %w", err)
	}
	return string(b), nil
}

var MockConfig = map[string][]ConfigParameter{
	"gnb-0142": {
		{
			Name:        "a3Offset",
			Object:      "NRCellCU/ReportConfigA3",
			Value:       "2",
			Default:     "2",
			Range:       "-30..30 (0.5 dB steps)",
			Description: "Offset applied to the A3 intra-frequency handover event. Raising it delays handover to the neighbor cell.",
		},
		{
			Name:        "timeToTrigger",
			Object:      "NRCellCU/ReportConfigA3",
			Value:       "160",
			Default:     "160",
			Range:       "0..5120 ms",
			Description: "Time the A3 entering condition must hold before the measurement report is sent.",
		},
		{
			Name:        "qRxLevMin",
			Object:      "NRCellDU/ServingCellConfig",
			Value:       "-110",
			Default:     "-110",
			Range:       "-156..-30 dBm",
			Description: "Minimum required received level for cell selection and reselection.",
		},
		{
			Name:        "p0NominalPUSCH",
			Object:      "NRCellDU/UplinkPowerControl",
			Value:       "-96",
			Default:     "-100",
			Range:       "-202..24 dBm",
			Description: "Target received power per PUSCH resource block for uplink open-loop power control.",
		},
	},
	"enb-2210": {
		{
			Name:        "cellIndividualOffset",
			Object:      "EUtranCellFDD/EUtranFreqRelation",
			Value:       "0",
			Default:     "0",
			Range:       "-24..24 dB",
			Description: "Per-neighbor offset biasing handover decisions toward or away from the neighbor.",
		},
		{
			Name:        "qRxLevMin",
			Object:      "EUtranCellFDD",
			Value:       "-120",
			Default:     "-122",
			Range:       "-140..-44 dBm",
			Description: "Minimum required received level for cell selection and reselection.",
		},
	},
}
