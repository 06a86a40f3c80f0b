package prompts

import (
	_ "embed"
)

//go:embed template/supervisor_prompt.txt
var SupervisorSystem string

//go:embed template/device_info_prompt.txt
var DeviceInfoSystem string

//go:embed template/ran_config_prompt.txt
var RANConfigSystem string

//go:embed template/ran_pm_prompt.txt
var RANPMSystem string

//go:embed template/config_change_prompt.txt
var ConfigChangeSystem string
