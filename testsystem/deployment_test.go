package testsystem

import (
	"testing"

	"github.com/proy1234/prplMesh/config"
	"github.com/proy1234/prplMesh/devices"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseDeploymentConfig(t *testing.T) {
	base := BaseDeployment{
		GatewayConfig: config.Map(map[string]string{"ucc_port": "8002"}),
		AgentConfig:   config.Map(map[string]string{"ucc_port": "8003"}),
	}

	gateway, err := base.Config(devices.Gateway)
	require.NoError(t, err)
	port, err := gateway.Get("ucc_port")
	require.NoError(t, err)
	assert.Equal(t, "8002", port)

	agent, err := base.Config(devices.Agent)
	require.NoError(t, err)
	port, err = agent.Get("ucc_port")
	require.NoError(t, err)
	assert.Equal(t, "8003", port)
}

func TestBaseDeploymentConfigForOtherDevices(t *testing.T) {
	base := BaseDeployment{GatewayConfig: config.Empty(), AgentConfig: config.Empty()}

	for _, device := range []devices.DeviceType{devices.Repeater1, devices.Repeater2, devices.DeviceType(0), devices.DeviceType(99)} {
		t.Run(device.String(), func(t *testing.T) {
			c, err := base.Config(device)
			assert.ErrorIs(t, err, ErrNoSuchDevice)
			assert.Nil(t, c)
		})
	}
}

func TestBaseDeploymentConfigDefaultsToEmpty(t *testing.T) {
	c, err := BaseDeployment{}.Config(devices.Gateway)
	require.NoError(t, err)
	assert.Empty(t, c.Keys())
}

func TestBaseDeploymentUnimplementedMethods(t *testing.T) {
	var d Deployment = BaseDeployment{}

	_, err := d.IP(devices.Agent)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorContains(t, err, "IP")

	_, err = d.Port(devices.Agent)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorContains(t, err, "Port")

	_, err = d.Log(devices.Agent, devices.BeerocksAgent)
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorContains(t, err, "Log")
}
