package flowtest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/testsystem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoDeployment runs one command endpoint per device; each replies "<device>:<command>".
type echoDeployment struct {
	testsystem.BaseDeployment
	ports    map[devices.DeviceType]int
	received chan string
}

func newEchoDeployment(t *testing.T) *echoDeployment {
	d := &echoDeployment{ports: map[devices.DeviceType]int{}, received: make(chan string, 20)}
	for _, device := range devices.AllDeviceTypes() {
		device := device
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = listener.Close() })
		d.ports[device] = listener.Addr().(*net.TCPAddr).Port
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				go func() {
					defer conn.Close()
					line, err := bufio.NewReader(conn).ReadString('\n')
					if err != nil {
						return
					}
					command := strings.TrimSuffix(line, "\n")
					d.received <- device.String() + ":" + command
					_, _ = io.WriteString(conn, device.String()+":"+command+"\n")
				}()
			}
		}()
	}
	return d
}

func (d *echoDeployment) IP(devices.DeviceType) (string, error) { return "127.0.0.1", nil }

func (d *echoDeployment) Port(device devices.DeviceType) (int, error) { return d.ports[device], nil }

func TestRoleBoundSenders(t *testing.T) {
	d := newEchoDeployment(t)
	b, _ := newBase(t, t, d, false)

	assert.Equal(t, "gateway:dev_reset_default", b.SendControllerCommand("dev_reset_default"))
	assert.Equal(t, "agent:PING", b.SendAgentCommand("PING"))
	assert.Equal(t, "repeater1:PING", b.SendRepeater1Command("PING"))
	assert.Equal(t, "repeater2:PING", b.SendRepeater2Command("PING"))
	assert.Equal(t, "repeater1:dev_get_parameter", b.SendCommand(devices.Repeater1, "dev_get_parameter"))
}

func TestSendCommandNoWait(t *testing.T) {
	d := newEchoDeployment(t)
	b, _ := newBase(t, t, d, false)

	b.SendCommandNoWait(devices.Repeater2, "dev_reset_default")
	got := helpers.RequireValueWithMessage(t, d.received, time.Second*5, "command was not received")
	assert.Equal(t, "repeater2:dev_reset_default", got)
	helpers.RequireNoMoreValues(t, d.received, time.Millisecond*50)
}

func TestSendFailureFailsTest(t *testing.T) {
	r := helpers.RunRecorded(func(r *helpers.TestRecorder) {
		b, _ := newBase(t, r, testsystem.BaseDeployment{}, false)
		b.SendAgentCommand("PING")
	})
	assert.True(t, r.Terminated)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], `command "PING" to agent failed`)
}

func TestWithContextBoundsCommands(t *testing.T) {
	d := newEchoDeployment(t)
	system, err := testsystem.New(d)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := helpers.RunRecorded(func(r *helpers.TestRecorder) {
		New(r, system, WithContext(ctx)).SendAgentCommand("PING")
	})
	assert.True(t, r.Terminated)
}

func TestConsoleOutput(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		b, out := newBase(t, t, testsystem.BaseDeployment{}, false)
		saved := color.NoColor
		color.NoColor = true
		defer func() { color.NoColor = saved }()

		b.Status("starting")
		b.Error("it broke")
		b.Success("it worked")
		b.Debug("hidden")
		assert.Equal(t, "starting\nit broke\n\nit worked\n\n", out.String())
	})

	t.Run("colored", func(t *testing.T) {
		b, out := newBase(t, t, testsystem.BaseDeployment{}, false)
		saved := color.NoColor
		color.NoColor = false
		defer func() { color.NoColor = saved }()

		b.Status("s")
		b.Error("e")
		b.Success("ok")
		lines := strings.Split(out.String(), "\n")
		assert.True(t, strings.HasPrefix(lines[0], "\x1b[1;35m"), lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "\x1b[1;31m"), lines[1])
		assert.True(t, strings.HasPrefix(lines[3], "\x1b[1;32m"), lines[3])
	})

	t.Run("verbose debug", func(t *testing.T) {
		var out bytes.Buffer
		system, err := testsystem.New(testsystem.BaseDeployment{}, testsystem.WithVerbose(true))
		require.NoError(t, err)
		New(t, system, WithOutput(&out)).Debug("shown")
		assert.Equal(t, "shown\n", out.String())
	})
}
