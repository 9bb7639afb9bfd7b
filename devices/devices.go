// Package devices identifies the units of a prplMesh test topology and the log channels they
// produce.
//
// Both enumerations are closed: values outside the declared constants are reported as invalid
// by IsValid, and parsing an unknown name fails. Which device actually hosts which log channel
// is a property of the deployment, not of these types.
package devices

import (
	"fmt"
)

// DeviceType identifies one physical or virtual unit under test.
type DeviceType int

const (
	// Gateway is the device running the prplMesh controller.
	Gateway DeviceType = iota + 1
	// Agent is the device running the prplMesh agent next to the controller.
	Agent
	// Repeater1 is the first extender in the topology.
	Repeater1
	// Repeater2 is the second extender in the topology.
	Repeater2
)

var deviceNames = map[DeviceType]string{ //nolint:gochecknoglobals
	Gateway:   "gateway",
	Agent:     "agent",
	Repeater1: "repeater1",
	Repeater2: "repeater2",
}

// AllDeviceTypes returns every device type in declaration order.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{Gateway, Agent, Repeater1, Repeater2}
}

// IsValid returns true if d is one of the declared device types.
func (d DeviceType) IsValid() bool {
	_, ok := deviceNames[d]
	return ok
}

func (d DeviceType) String() string {
	if name, ok := deviceNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DeviceType(%d)", int(d))
}

// ParseDeviceType returns the device type with the given name, such as "repeater1".
func ParseDeviceType(name string) (DeviceType, error) {
	for _, d := range AllDeviceTypes() {
		if deviceNames[d] == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown device type %q", name)
}

// MarshalText implements encoding.TextMarshaler so that device types can be used as map keys in
// YAML documents.
func (d DeviceType) MarshalText() ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid device type %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DeviceType) UnmarshalText(data []byte) error {
	parsed, err := ParseDeviceType(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
