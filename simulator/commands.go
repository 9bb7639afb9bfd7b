package simulator

import (
	"fmt"
	"strings"
	"time"

	"github.com/proy1234/prplMesh/devices"
)

// ALid returns the AL MAC address that an emulated device reports.
func ALid(device devices.DeviceType) string {
	return fmt.Sprintf("02:9a:96:00:00:%02x", int(device))
}

func defaultHandlers() map[string]Handler {
	return map[string]Handler{
		"ping":              func(*Device, string) string { return "PONG" },
		"device_get_info":   deviceGetInfo,
		"dev_get_parameter": devGetParameter,
		"dev_reset_default": devResetDefault,
		"dev_set_config":    devSetConfig,
	}
}

// commandParams returns the name/value pairs that follow the command name.
func commandParams(command string) (map[string]string, error) {
	fields := strings.Split(command, ",")[1:]
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("parameter %q has no value", strings.TrimSpace(fields[len(fields)-1]))
	}
	params := make(map[string]string, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		params[strings.ToLower(strings.TrimSpace(fields[i]))] = strings.TrimSpace(fields[i+1])
	}
	return params, nil
}

func invalid(message string) string {
	return "status,INVALID,errorCode," + message
}

func deviceGetInfo(d *Device, _ string) string {
	return "status,COMPLETE,vendor,prplMesh,model,simulated-" + d.device.String() + ",version,1.0"
}

func devGetParameter(d *Device, command string) string {
	params, err := commandParams(command)
	if err != nil {
		return invalid(err.Error())
	}
	parameter, ok := params["parameter"]
	if !ok {
		return invalid("missing parameter")
	}
	switch strings.ToLower(parameter) {
	case "alid":
		return "status,COMPLETE,ALid," + ALid(d.device)
	default:
		return "status,ERROR,errorCode,unknown parameter " + parameter
	}
}

func devSetConfig(d *Device, command string) string {
	params, err := commandParams(command)
	if err != nil {
		return invalid(err.Error())
	}
	if len(params) == 0 {
		return invalid("no configuration given")
	}
	d.WriteLog(d.PrimaryLog(), "configuration applied: "+strings.Join(strings.Split(command, ",")[1:], ","))
	return "status,COMPLETE"
}

// devResetDefault restarts the device process. An agent or repeater then joins the controller
// again after the join delay, which shows up in its own log and in the controller log.
func devResetDefault(d *Device, _ string) string {
	d.WriteLog(d.PrimaryLog(), "reset to default configuration")
	if d.device == devices.Gateway {
		d.WriteLog(devices.BeerocksController, "controller started")
		return "status,COMPLETE"
	}
	time.AfterFunc(d.joinDelay, func() {
		d.WriteLog(d.PrimaryLog(), "connected to controller "+ALid(devices.Gateway))
		d.logs.append(devices.Gateway, devices.BeerocksController,
			fmt.Sprintf("agent %s (%s) joined the network", ALid(d.device), d.device))
	})
	return "status,COMPLETE"
}
