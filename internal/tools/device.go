package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
)

// ===================================
// Fetch Device Data Tool
// ===================================

type Device struct {
	ID           string `json:"id"`
	SiteName     string `json:"site_name"`
	Vendor       string `json:"vendor"`
	ModelName    string `json:"model"`
	SoftwareRev  string `json:"software_rev"`
	Band         string `json:"band"`
	CellCount    int    `json:"cell_count"`
	AdminState   string `json:"admin_state"`
	OperState    string `json:"oper_state"`
	LastSyncTime string `json:"last_sync_time"`
}

type fetchDeviceDataTool struct{}

func NewFetchDeviceDataTool() model.Tool {
	return &fetchDeviceDataTool{}
}

func (t *fetchDeviceDataTool) Name() string {
	return "fetch_device_data"
}

func (t *fetchDeviceDataTool) Description() string {
	return "Fetch inventory and status data for RAN devices. Lookup by device ID (e.g. gnb-0142) or site name (e.g. STH-CENTRAL-07). Returns vendor, model, software revision, band, cell count and operational state. Use this tool whenever the user asks about a specific base station, gNB, eNB or site."
}

func (t *fetchDeviceDataTool) ArgumentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"device_id": map[string]any{
				"type":        "string",
				"description": "Device identifier, e.g. gnb-0142. Either device_id or site_name is required.",
			},
			"site_name": map[string]any{
				"type":        "string",
				"description": "Site name to look up devices at, e.g. STH-CENTRAL-07.",
			},
		},
	}
}

func (t *fetchDeviceDataTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	siteName, _ := args["site_name"].(string)
	if deviceID == "" && siteName == "" {
		return "", fmt.Errorf("either device_id or site_name is required")
	}

	var matched []Device
	for _, d := range MockDevices {
		if deviceID != "" && strings.EqualFold(d.ID, deviceID) {
			matched = append(matched, d)
			continue
		}
		if siteName != "" && strings.EqualFold(d.SiteName, siteName) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return "", fmt.Errorf("no device found for device_id=%q site_name=%q", deviceID, siteName)
	}

	b, err := json.Marshal(map[string]any{"devices": matched, "total": len(matched)})
	if err != nil {
		return "", fmt.Errorf("marshal device data: %w", err)
	}
	return string(b), nil
}

var MockDevices = []Device{
	{
		ID:           "gnb-0142",
		SiteName:     "STH-CENTRAL-07",
		Vendor:       "Ericsson",
		ModelName:    "AIR 6419",
		SoftwareRev:  "21.Q4.3",
		Band:         "n78",
		CellCount:    3,
		AdminState:   "unlocked",
		OperState:    "enabled",
		LastSyncTime: "2026-08-30T22:14:09Z",
	},
	{
		ID:           "gnb-0143",
		SiteName:     "STH-CENTRAL-07",
		Vendor:       "Ericsson",
		ModelName:    "AIR 3268",
		SoftwareRev:  "21.Q4.3",
		Band:         "n28",
		CellCount:    3,
		AdminState:   "unlocked",
		OperState:    "enabled",
		LastSyncTime: "2026-08-30T22:14:12Z",
	},
	{
		ID:           "enb-2210",
		SiteName:     "NRT-RIVERSIDE-12",
		Vendor:       "Nokia",
		ModelName:    "AirScale MRBTS",
		SoftwareRev:  "SBTS24R2",
		Band:         "B3",
		CellCount:    6,
		AdminState:   "unlocked",
		OperState:    "degraded",
		LastSyncTime: "2026-08-30T21:58:44Z",
	},
	{
		ID:           "gnb-0587",
		SiteName:     "WST-HARBOR-03",
		Vendor:       "Huawei",
		ModelName:    "BTS5900",
		SoftwareRev:  "V100R019C10",
		Band:         "n41",
		CellCount:    3,
		AdminState:   "locked",
		OperState:    "disabled",
		LastSyncTime: "2026-08-29T07:30:01Z",
	},
	{
		ID:           "gnb-0901",
		SiteName:     "EST-AIRPORT-01",
		Vendor:       "Samsung",
		ModelName:    "vRAN DU-E",
		SoftwareRev:  "R23B.07",
		Band:         "n77",
		CellCount:    9,
		AdminState:   "unlocked",
		OperState:    "enabled",
		LastSyncTime: "2026-08-30T22:15:33Z",
	},
}
