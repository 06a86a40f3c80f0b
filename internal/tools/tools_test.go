package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDeviceData_ByDeviceID(t *testing.T) {
	tool := NewFetchDeviceDataTool()
	out, err := tool.Invoke(context.Background(), map[string]any{"device_id": "gnb-0142"})
	require.NoError(t, err)

	var parsed struct {
		Devices []Device `json:"devices"`
		Total   int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, 1, parsed.Total)
	assert.Equal(t, "Ericsson", parsed.Devices[0].Vendor)
	assert.Equal(t, "STH-CENTRAL-07", parsed.Devices[0].SiteName)
}

func TestFetchDeviceData_BySiteName(t *testing.T) {
	tool := NewFetchDeviceDataTool()
	out, err := tool.Invoke(context.Background(), map[string]any{"site_name": "STH-CENTRAL-07"})
	require.NoError(t, err)

	var parsed struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, 2, parsed.Total, "the site hosts two radios")
}

func TestFetchDeviceData_MissingArguments(t *testing.T) {
	tool := NewFetchDeviceDataTool()
	_, err := tool.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestFetchDeviceData_UnknownDevice(t *testing.T) {
	tool := NewFetchDeviceDataTool()
	_, err := tool.Invoke(context.Background(), map[string]any{"device_id": "gnb-9999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device found")
}

func TestQueryRANConfig_ParameterLookup(t *testing.T) {
	tool := NewQueryRANConfigTool()
	out, err := tool.Invoke(context.Background(), map[string]any{
		"device_id": "gnb-0142",
		"parameter": "a3Offset",
	})
	require.NoError(t, err)

	var parsed struct {
		Parameters []ConfigParameter `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed.Parameters, 1)
	assert.Equal(t, "2", parsed.Parameters[0].Value)
	assert.Contains(t, parsed.Parameters[0].Description, "handover")
}

func TestQueryRANConfig_EmptyParameterReturnsAll(t *testing.T) {
	tool := NewQueryRANConfigTool()
	out, err := tool.Invoke(context.Background(), map[string]any{"device_id": "gnb-0142"})
	require.NoError(t, err)

	var parsed struct {
		Parameters []ConfigParameter `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Len(t, parsed.Parameters, 4)
}

func TestQueryRANConfig_RequiresDeviceID(t *testing.T) {
	tool := NewQueryRANConfigTool()
	_, err := tool.Invoke(context.Background(), map[string]any{"parameter": "a3Offset"})
	require.Error(t, err)
}

func TestApplyConfigChange_ReturnsTicket(t *testing.T) {
	tool := NewApplyConfigChangeTool()
	out, err := tool.Invoke(context.Background(), map[string]any{
		"device_id": "gnb-0142",
		"parameter": "a3Offset",
		"value":     "4",
		"reason":    "reduce ping-pong handovers",
	})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "applied", parsed["status"])
	assert.Equal(t, "CHG-GNB-0142-A3OFFSET", parsed["ticket"])
}

func TestApplyConfigChange_DryRunDoesNotApply(t *testing.T) {
	tool := NewApplyConfigChangeTool()
	out, err := tool.Invoke(context.Background(), map[string]any{
		"device_id": "gnb-0142",
		"parameter": "a3Offset",
		"value":     "4",
		"dry_run":   true,
	})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "validated", parsed["status"])
	assert.NotContains(t, parsed, "ticket")
}

func TestApplyConfigChange_UnknownParameterRejected(t *testing.T) {
	tool := NewApplyConfigChangeTool()
	_, err := tool.Invoke(context.Background(), map[string]any{
		"device_id": "gnb-0142",
		"parameter": "notAParameter",
		"value":     "1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAnalyzePMMetrics_FlagsBreaches(t *testing.T) {
	tool := NewAnalyzePMMetricsTool()
	out, err := tool.Invoke(context.Background(), map[string]any{"device_id": "enb-2210"})
	require.NoError(t, err)

	var parsed struct {
		Samples  []PMSample `json:"samples"`
		Breaches []string   `json:"breaches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Len(t, parsed.Samples, 5)
	require.Len(t, parsed.Breaches, 4, "degraded cell breaches every threshold it has")
}

func TestAnalyzePMMetrics_HealthyCellHasNoBreaches(t *testing.T) {
	tool := NewAnalyzePMMetricsTool()
	out, err := tool.Invoke(context.Background(), map[string]any{"device_id": "gnb-0901"})
	require.NoError(t, err)

	var parsed struct {
		Breaches []string `json:"breaches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Empty(t, parsed.Breaches)
}

func TestAnalyzePMMetrics_MetricFilter(t *testing.T) {
	tool := NewAnalyzePMMetricsTool()
	out, err := tool.Invoke(context.Background(), map[string]any{
		"device_id": "gnb-0142",
		"metric":    "handover",
	})
	require.NoError(t, err)

	var parsed struct {
		Samples []PMSample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed.Samples, 1)
	assert.Equal(t, "handover_success_rate", parsed.Samples[0].Counter)
}

func TestToolSchemas_DeclareRequiredFields(t *testing.T) {
	for _, tool := range []interface {
		Name() string
		ArgumentSchema() map[string]any
	}{
		NewQueryRANConfigTool(),
		NewApplyConfigChangeTool(),
		NewAnalyzePMMetricsTool(),
	} {
		schema := tool.ArgumentSchema()
		require.NotNil(t, schema, tool.Name())
		assert.Equal(t, "object", schema["type"], tool.Name())
		assert.NotEmpty(t, schema["required"], tool.Name())
	}
}
