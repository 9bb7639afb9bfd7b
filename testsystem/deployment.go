package testsystem

import (
	"errors"
	"fmt"

	"github.com/proy1234/prplMesh/config"
	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/ucc"
)

var (
	// ErrNoSuchDevice is returned, possibly wrapped, for a device the deployment cannot resolve.
	ErrNoSuchDevice = errors.New("no such device")

	// ErrNotImplemented is returned, wrapped with the method name, by BaseDeployment methods
	// that a concrete deployment has to provide.
	ErrNotImplemented = errors.New("not implemented by this deployment")
)

//go:generate mockgen -destination testsystemmock/mock_deployment.go -package testsystemmock github.com/proy1234/prplMesh/testsystem Deployment

// Deployment describes how to reach the devices of one test topology. Every method must be
// safe to call repeatedly; TestSystem calls IP and Port for each command it sends.
type Deployment interface {
	// IP returns the address of the device's command endpoint.
	IP(device devices.DeviceType) (string, error)

	// Port returns the TCP port of the device's command endpoint.
	Port(device devices.DeviceType) (int, error)

	// Config returns the device's configuration.
	Config(device devices.DeviceType) (config.Config, error)

	// Log returns the current text of one of the device's logs.
	Log(device devices.DeviceType, log devices.LogType) (string, error)
}

// SocketConfigurer is optionally implemented by a Deployment whose devices need non-default
// command socket settings, such as a different reply framing.
type SocketConfigurer interface {
	SocketOptions(device devices.DeviceType) []ucc.Option
}

// BaseDeployment is the part of a Deployment that is the same everywhere: it holds the gateway
// and agent configurations. Concrete deployments embed it and provide IP, Port and Log.
type BaseDeployment struct {
	GatewayConfig config.Config
	AgentConfig   config.Config
}

func (b BaseDeployment) IP(devices.DeviceType) (string, error) {
	return "", notImplemented("IP")
}

func (b BaseDeployment) Port(devices.DeviceType) (int, error) {
	return 0, notImplemented("Port")
}

func (b BaseDeployment) Log(devices.DeviceType, devices.LogType) (string, error) {
	return "", notImplemented("Log")
}

// Config returns GatewayConfig for the gateway and AgentConfig for the agent. Any other device
// has no configuration of its own, and gets ErrNoSuchDevice.
func (b BaseDeployment) Config(device devices.DeviceType) (config.Config, error) {
	var c config.Config
	switch device {
	case devices.Gateway:
		c = b.GatewayConfig
	case devices.Agent:
		c = b.AgentConfig
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoSuchDevice, device)
	}
	if c == nil {
		return config.Empty(), nil
	}
	return c, nil
}

func notImplemented(method string) error {
	return fmt.Errorf("%s: %w", method, ErrNotImplemented)
}
