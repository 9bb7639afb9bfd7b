package devices

import (
	"fmt"
)

// LogType identifies a named stream of diagnostic text produced by one subsystem of a device.
type LogType int

const (
	BeerocksAgent LogType = iota + 1
	BeerocksAgentWlan0
	BeerocksAgentWlan2
	BeerocksMonitorWlan0
	BeerocksMonitorWlan2
	BeerocksController
	Transport
	LocalBus
)

var logNames = map[LogType]string{ //nolint:gochecknoglobals
	BeerocksAgent:        "beerocks_agent",
	BeerocksAgentWlan0:   "beerocks_agent_wlan0",
	BeerocksAgentWlan2:   "beerocks_agent_wlan2",
	BeerocksMonitorWlan0: "beerocks_monitor_wlan0",
	BeerocksMonitorWlan2: "beerocks_monitor_wlan2",
	BeerocksController:   "beerocks_controller",
	Transport:            "transport",
	LocalBus:             "local_bus",
}

// AllLogTypes returns every log channel in declaration order.
func AllLogTypes() []LogType {
	return []LogType{
		BeerocksAgent,
		BeerocksAgentWlan0,
		BeerocksAgentWlan2,
		BeerocksMonitorWlan0,
		BeerocksMonitorWlan2,
		BeerocksController,
		Transport,
		LocalBus,
	}
}

// IsValid returns true if l is one of the declared log channels.
func (l LogType) IsValid() bool {
	_, ok := logNames[l]
	return ok
}

func (l LogType) String() string {
	if name, ok := logNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogType(%d)", int(l))
}

// FileName is the name under which the log is conventionally collected, such as
// "beerocks_agent.log".
func (l LogType) FileName() string {
	return l.String() + ".log"
}

// ParseLogType returns the log channel with the given name, such as "beerocks_controller".
func ParseLogType(name string) (LogType, error) {
	for _, l := range AllLogTypes() {
		if logNames[l] == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown log type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (l LogType) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid log type %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LogType) UnmarshalText(data []byte) error {
	parsed, err := ParseLogType(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
