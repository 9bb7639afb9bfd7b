package deployment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/topology"
	"github.com/proy1234/prplMesh/ucc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTopology(t *testing.T, logsDir string) *topology.Topology {
	topo, err := topology.Parse([]byte(`
devices:
  gateway:
    ip: 10.0.0.2
    port: 8002
    framing: capi
    config:
      bridge: br-lan
  agent:
    ip: 10.0.0.3
    port: 8003
  repeater1:
    ip: 10.0.0.4
    port: 8004
logs:
  source: file
  dir: ` + logsDir + `
`))
	require.NoError(t, err)
	return topo
}

func TestStaticAddresses(t *testing.T) {
	s := NewStatic(sampleTopology(t, t.TempDir()), nil)

	ip, err := s.IP(devices.Agent)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", ip)

	port, err := s.Port(devices.Repeater1)
	require.NoError(t, err)
	assert.Equal(t, 8004, port)

	_, err = s.IP(devices.Repeater2)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
	_, err = s.Port(devices.Repeater2)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
}

func TestStaticConfig(t *testing.T) {
	s := NewStatic(sampleTopology(t, t.TempDir()), nil)

	gateway, err := s.Config(devices.Gateway)
	require.NoError(t, err)
	bridge, err := gateway.Get("bridge")
	require.NoError(t, err)
	assert.Equal(t, "br-lan", bridge)

	agent, err := s.Config(devices.Agent)
	require.NoError(t, err)
	assert.Empty(t, agent.Keys())

	_, err = s.Config(devices.Repeater1)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
}

func TestStaticLogs(t *testing.T) {
	dir := t.TempDir()
	topo := sampleTopology(t, dir)
	s, err := FromTopology(topo, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, logsource.NewFile(dir).Append(context.Background(), devices.Agent, devices.BeerocksAgent, "hello"))

	text, err := s.Log(devices.Agent, devices.BeerocksAgent)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", text)

	_, err = s.Log(devices.Agent, devices.Transport)
	assert.ErrorIs(t, err, logsource.ErrLogNotFound)

	_, err = s.Log(devices.Repeater2, devices.Transport)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
}

func TestStaticWithoutLogSource(t *testing.T) {
	s := NewStatic(sampleTopology(t, t.TempDir()), nil)
	_, err := s.Log(devices.Agent, devices.BeerocksAgent)
	assert.ErrorIs(t, err, testsystem.ErrNotImplemented)
	assert.NoError(t, s.Close())
}

func TestStaticSocketOptions(t *testing.T) {
	s := NewStatic(sampleTopology(t, t.TempDir()), nil)

	assert.Len(t, s.SocketOptions(devices.Gateway), 1)
	assert.Empty(t, s.SocketOptions(devices.Agent))
	assert.Empty(t, s.SocketOptions(devices.Repeater2))

	var _ testsystem.SocketConfigurer = s
	var _ testsystem.Deployment = s
	assert.Equal(t, []ucc.Option{ucc.WithFraming(ucc.CAPIFraming{})}, s.SocketOptions(devices.Gateway))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	data, err := sampleTopology(t, dir).Marshal()
	require.NoError(t, err)
	path := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, s.Topology().Devices, 3)

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}
