// Package topology reads the YAML file that describes a test rig: where each device's command
// endpoint is, which reply framing it uses, its configuration values, and where its logs can be
// read from.
//
//	devices:
//	  gateway:
//	    ip: 192.168.250.2
//	    port: 8002
//	    framing: capi
//	    config:
//	      ucc_port: "8002"
//	  agent:
//	    ip: 192.168.250.3
//	    port: 8003
//	logs:
//	  source: http
//	  url: http://192.168.250.1:8080
package topology

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/ucc"
)

// Names of the supported log sources.
const (
	LogSourceNone     = ""
	LogSourceFile     = "file"
	LogSourceHTTP     = "http"
	LogSourceStream   = "stream"
	LogSourceRedis    = "redis"
	LogSourceDynamoDB = "dynamodb"
)

// Device is the entry for one device.
type Device struct {
	IP      string            `yaml:"ip"`
	Port    int               `yaml:"port"`
	Framing string            `yaml:"framing,omitempty"`
	Config  map[string]string `yaml:"config,omitempty"`
}

// Logs selects where device logs are read from. Which of the other fields are required depends on
// Source.
type Logs struct {
	Source string `yaml:"source,omitempty"`

	// Dir is the collection directory for "file": logs are at <dir>/<device>/<log>.log.
	Dir string `yaml:"dir,omitempty"`

	// URL is the base URL of the log service for "http" and "stream".
	URL string `yaml:"url,omitempty"`

	// Addr, Password and DB select the server for "redis".
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Prefix namespaces keys for "redis" and "dynamodb".
	Prefix string `yaml:"prefix,omitempty"`

	// Region, Endpoint and Table select the table for "dynamodb". Endpoint is only needed for a
	// local DynamoDB.
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Table    string `yaml:"table,omitempty"`
}

// Topology is a parsed and validated topology file.
type Topology struct {
	Devices map[devices.DeviceType]Device
	Logs    Logs
}

type fileFormat struct {
	Devices map[string]Device `yaml:"devices"`
	Logs    Logs              `yaml:"logs,omitempty"`
}

// Load reads and parses a topology file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read topology file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid topology file %s: %w", path, err)
	}
	return t, nil
}

// Parse parses and validates topology YAML.
func Parse(data []byte) (*Topology, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Devices) == 0 {
		return nil, errors.New("no devices defined")
	}
	t := &Topology{Devices: make(map[devices.DeviceType]Device, len(f.Devices)), Logs: f.Logs}
	for name, d := range f.Devices {
		device, err := devices.ParseDeviceType(name)
		if err != nil {
			return nil, err
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("device %s: %w", name, err)
		}
		t.Devices[device] = d
	}
	if err := f.Logs.validate(); err != nil {
		return nil, fmt.Errorf("logs: %w", err)
	}
	return t, nil
}

// Marshal renders the topology in the file format accepted by Parse.
func (t *Topology) Marshal() ([]byte, error) {
	f := fileFormat{Devices: make(map[string]Device, len(t.Devices)), Logs: t.Logs}
	for device, d := range t.Devices {
		f.Devices[device.String()] = d
	}
	return yaml.Marshal(f)
}

// Present returns the devices defined in the topology, in declaration order of DeviceType.
func (t *Topology) Present() []devices.DeviceType {
	ret := make([]devices.DeviceType, 0, len(t.Devices))
	for device := range t.Devices {
		ret = append(ret, device)
	}
	slices.Sort(ret)
	return ret
}

func (d Device) validate() error {
	if d.IP == "" {
		return errors.New("ip is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("invalid port %d", d.Port)
	}
	if _, err := ucc.ParseFraming(d.Framing); err != nil {
		return err
	}
	return nil
}

func (l Logs) validate() error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s is required for log source %q", field, l.Source)
		}
		return nil
	}
	switch l.Source {
	case LogSourceNone:
		return nil
	case LogSourceFile:
		return need("dir", l.Dir)
	case LogSourceHTTP, LogSourceStream:
		return need("url", l.URL)
	case LogSourceRedis:
		return need("addr", l.Addr)
	case LogSourceDynamoDB:
		if err := need("region", l.Region); err != nil {
			return err
		}
		return need("table", l.Table)
	default:
		return fmt.Errorf("unknown log source %q", l.Source)
	}
}
