// Package testsystem is the entry point that flow tests use to talk to devices.
//
// A TestSystem combines a Deployment, which knows where each device lives and how to read its
// logs, with the command socket client. It is created once per test run and passed explicitly to
// whatever needs it.
package testsystem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/ucc"
)

// TestSystem sends commands to the devices of a Deployment. Its Deployment methods are available
// directly, so a TestSystem can be used wherever a Deployment lookup is needed.
//
// A TestSystem is configured only by New and may then be shared between goroutines.
type TestSystem struct {
	Deployment
	verbose        bool
	logger         framework.Logger
	socketOptions  []ucc.Option
	commandTimeout time.Duration
}

// Option configures a TestSystem.
type Option helpers.ConfigOption[TestSystem]

type optionVerbose bool

func (o optionVerbose) Configure(ts *TestSystem) error {
	ts.verbose = bool(o)
	return nil
}

// WithVerbose turns on debug output from the flow test helpers.
func WithVerbose(verbose bool) Option { return optionVerbose(verbose) }

type optionLogger struct{ logger framework.Logger }

func (o optionLogger) Configure(ts *TestSystem) error {
	if o.logger != nil {
		ts.logger = o.logger
	}
	return nil
}

// WithLogger sets the logger that receives a line for every command exchange.
func WithLogger(logger framework.Logger) Option { return optionLogger{logger} }

type optionSocketOptions []ucc.Option

func (o optionSocketOptions) Configure(ts *TestSystem) error {
	ts.socketOptions = append(ts.socketOptions, o...)
	return nil
}

// WithSocketOptions adds options for every command socket. They are applied after any
// per-device options from a SocketConfigurer deployment, so they take precedence.
func WithSocketOptions(options ...ucc.Option) Option { return optionSocketOptions(options) }

type optionCommandTimeout time.Duration

func (o optionCommandTimeout) Configure(ts *TestSystem) error {
	if o < 0 {
		return fmt.Errorf("invalid command timeout %s", time.Duration(o))
	}
	ts.commandTimeout = time.Duration(o)
	return nil
}

// WithCommandTimeout bounds each whole command exchange, from connecting to receiving the reply.
// Zero, the default, leaves only the socket's own reply timeout.
func WithCommandTimeout(timeout time.Duration) Option { return optionCommandTimeout(timeout) }

// New creates a TestSystem for the given deployment.
func New(deployment Deployment, options ...Option) (*TestSystem, error) {
	if deployment == nil {
		return nil, errors.New("a deployment is required")
	}
	ts := &TestSystem{
		Deployment: deployment,
		logger:     framework.NullLogger(),
	}
	if err := helpers.ApplyOptions(ts, options...); err != nil {
		return nil, err
	}
	return ts, nil
}

// Verbose reports whether debug output was requested.
func (ts *TestSystem) Verbose() bool { return ts.verbose }

// SendCommand opens a connection to the device's command endpoint, sends the command, and closes
// the connection again. If wait is true it first reads the reply and returns it unchanged;
// otherwise it returns "" without reading anything.
//
// Errors from resolving the device's address are returned as they are.
func (ts *TestSystem) SendCommand(
	ctx context.Context,
	device devices.DeviceType,
	command string,
	wait bool,
) (string, error) {
	if !device.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrNoSuchDevice, device)
	}
	ip, err := ts.IP(device)
	if err != nil {
		return "", err
	}
	port, err := ts.Port(device)
	if err != nil {
		return "", err
	}

	if ts.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ts.commandTimeout)
		defer cancel()
	}

	exchangeID := uuid.NewString()
	logger := framework.LoggerWithPrefix(ts.logger, fmt.Sprintf("[%s %s] ", device, exchangeID[:8]))
	logger.Printf("Command: %s (wait=%t)", command, wait)

	var reply string
	err = ucc.WithSocket(ctx, ip, port, func(s *ucc.Socket) error {
		if err := s.SendCmd(command); err != nil {
			return err
		}
		if !wait {
			return nil
		}
		var err error
		reply, err = s.GetReply()
		return err
	}, ts.socketOptionsFor(device, logger)...)
	if err != nil {
		logger.Printf("Command failed: %s", err)
		return "", err
	}
	if wait {
		logger.Printf("Reply: %s", reply)
	}
	return reply, nil
}

// WaitForDevice retries connecting to the device's command endpoint at each interval until a
// connection is accepted or ctx is done.
func (ts *TestSystem) WaitForDevice(ctx context.Context, device devices.DeviceType, interval time.Duration) error {
	if !device.IsValid() {
		return fmt.Errorf("%w: %s", ErrNoSuchDevice, device)
	}
	ip, err := ts.IP(device)
	if err != nil {
		return err
	}
	port, err := ts.Port(device)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s, err := ucc.Dial(ctx, ip, port, ts.socketOptionsFor(device, ts.logger)...)
		if err == nil {
			return s.Close()
		}
		ts.logger.Printf("Device %s not reachable yet: %s", device, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("device %s did not become reachable: %w", device, err)
		case <-ticker.C:
		}
	}
}

func (ts *TestSystem) socketOptionsFor(device devices.DeviceType, logger framework.Logger) []ucc.Option {
	options := []ucc.Option{ucc.WithLogger(logger)}
	if c, ok := ts.Deployment.(SocketConfigurer); ok {
		options = append(options, c.SocketOptions(device)...)
	}
	return append(options, ts.socketOptions...)
}
