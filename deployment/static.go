// Package deployment provides the Deployment implementations used to run flow tests against a
// real rig: one driven by a topology file, and one that looks devices up in Consul.
package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/proy1234/prplMesh/config"
	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/topology"
	"github.com/proy1234/prplMesh/ucc"
)

// DefaultLogTimeout bounds a single log retrieval.
const DefaultLogTimeout = time.Second * 10

// Static is a Deployment whose devices are fixed by a topology.
type Static struct {
	testsystem.BaseDeployment
	topology   *topology.Topology
	logs       logsource.Source
	logTimeout time.Duration
}

// NewStatic creates a Static deployment. If logs is nil, Log is not available.
func NewStatic(topo *topology.Topology, logs logsource.Source) *Static {
	s := &Static{topology: topo, logs: logs, logTimeout: DefaultLogTimeout}
	if d, ok := topo.Devices[devices.Gateway]; ok {
		s.GatewayConfig = config.Map(d.Config)
	}
	if d, ok := topo.Devices[devices.Agent]; ok {
		s.AgentConfig = config.Map(d.Config)
	}
	return s
}

// FromTopology creates a Static deployment whose log source is the one the topology names.
func FromTopology(topo *topology.Topology, logger framework.Logger) (*Static, error) {
	logs, err := logsource.Open(topo.Logs, logger)
	if err != nil {
		return nil, err
	}
	return NewStatic(topo, logs), nil
}

// Load reads a topology file and creates a Static deployment from it.
func Load(path string, logger framework.Logger) (*Static, error) {
	topo, err := topology.Load(path)
	if err != nil {
		return nil, err
	}
	return FromTopology(topo, logger)
}

// Topology returns the topology the deployment was created from.
func (s *Static) Topology() *topology.Topology { return s.topology }

func (s *Static) device(device devices.DeviceType) (topology.Device, error) {
	d, ok := s.topology.Devices[device]
	if !ok {
		return topology.Device{}, fmt.Errorf("%w: %s is not part of this topology", testsystem.ErrNoSuchDevice, device)
	}
	return d, nil
}

func (s *Static) IP(device devices.DeviceType) (string, error) {
	d, err := s.device(device)
	return d.IP, err
}

func (s *Static) Port(device devices.DeviceType) (int, error) {
	d, err := s.device(device)
	return d.Port, err
}

func (s *Static) Log(device devices.DeviceType, log devices.LogType) (string, error) {
	if _, err := s.device(device); err != nil {
		return "", err
	}
	if s.logs == nil {
		return s.BaseDeployment.Log(device, log)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.logTimeout)
	defer cancel()
	return s.logs.Log(ctx, device, log)
}

// SocketOptions selects the reply framing configured for the device.
func (s *Static) SocketOptions(device devices.DeviceType) []ucc.Option {
	d, err := s.device(device)
	if err != nil || d.Framing == "" {
		return nil
	}
	framing, err := ucc.ParseFraming(d.Framing)
	if err != nil {
		return nil // rejected by topology validation
	}
	return []ucc.Option{ucc.WithFraming(framing)}
}

// Close releases the log source.
func (s *Static) Close() error {
	if c, ok := s.logs.(logsource.Closer); ok {
		return c.Close()
	}
	return nil
}
