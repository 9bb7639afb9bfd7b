// Package flowtest contains the helpers that individual flow tests are written with: sending
// commands to a device by role, searching device logs, and printing progress to the console.
//
// A Base is created at the start of each test from the test's *testing.T and the shared
// TestSystem:
//
//	func TestAgentConnects(t *testing.T) {
//	    b := flowtest.New(t, system)
//	    b.SendAgentCommand("dev_reset_default")
//	    b.RequireInLogsEventually(devices.Agent, devices.BeerocksAgent, "connected", time.Second*10, time.Second)
//	}
package flowtest

import (
	"context"
	"io"
	"os"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/testsystem"
)

// Base binds a test to a TestSystem. Helpers that cannot continue after an error report it
// through the test's Errorf and then call FailNow.
type Base struct {
	t      helpers.TestContext
	system *testsystem.TestSystem
	ctx    context.Context
	out    io.Writer
}

// Option configures a Base.
type Option helpers.ConfigOption[Base]

type optionOutput struct{ out io.Writer }

func (o optionOutput) Configure(b *Base) error {
	b.out = o.out
	return nil
}

// WithOutput redirects console output, which otherwise goes to standard output.
func WithOutput(out io.Writer) Option { return optionOutput{out} }

type optionContext struct{ ctx context.Context }

func (o optionContext) Configure(b *Base) error {
	b.ctx = o.ctx
	return nil
}

// WithContext sets the context that bounds every command sent through the Base.
func WithContext(ctx context.Context) Option { return optionContext{ctx} }

// New creates a Base. Invalid options fail the test immediately.
func New(t helpers.TestContext, system *testsystem.TestSystem, options ...Option) *Base {
	b := &Base{
		t:      t,
		system: system,
		ctx:    context.Background(),
		out:    os.Stdout,
	}
	if err := helpers.ApplyOptions(b, options...); err != nil {
		t.Errorf("invalid flow test options: %s", err)
		t.FailNow()
	}
	return b
}

// System returns the TestSystem the Base sends commands through.
func (b *Base) System() *testsystem.TestSystem { return b.system }

// SendControllerCommand sends a command to the gateway, which runs the controller, and returns
// its reply.
func (b *Base) SendControllerCommand(command string) string {
	return b.send(devices.Gateway, command, true)
}

// SendAgentCommand sends a command to the agent and returns its reply.
func (b *Base) SendAgentCommand(command string) string {
	return b.send(devices.Agent, command, true)
}

// SendRepeater1Command sends a command to the first repeater and returns its reply.
func (b *Base) SendRepeater1Command(command string) string {
	return b.send(devices.Repeater1, command, true)
}

// SendRepeater2Command sends a command to the second repeater and returns its reply.
func (b *Base) SendRepeater2Command(command string) string {
	return b.send(devices.Repeater2, command, true)
}

// SendCommand sends a command to any device and returns its reply.
func (b *Base) SendCommand(device devices.DeviceType, command string) string {
	return b.send(device, command, true)
}

// SendCommandNoWait sends a command to any device without waiting for a reply.
func (b *Base) SendCommandNoWait(device devices.DeviceType, command string) {
	b.send(device, command, false)
}

func (b *Base) send(device devices.DeviceType, command string, wait bool) string {
	if h, ok := b.t.(interface{ Helper() }); ok {
		h.Helper()
	}
	reply, err := b.system.SendCommand(b.ctx, device, command, wait)
	if err != nil {
		b.t.Errorf("command %q to %s failed: %s", command, device, err)
		b.t.FailNow()
		return ""
	}
	return reply
}
