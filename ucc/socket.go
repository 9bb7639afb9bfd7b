// Package ucc implements the client side of a device's command endpoint: a TCP connection that
// carries one text command and, optionally, one text reply.
//
// A Socket is meant to be short-lived. WithSocket opens one, hands it to a function and always
// closes it afterward, so a test suite that sends many commands never leaks connections.
package ucc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/framework/helpers"
)

const (
	// DefaultReplyTimeout is how long GetReply waits for a complete reply unless configured
	// otherwise.
	DefaultReplyTimeout = time.Second * 30

	// DefaultDialTimeout bounds connection establishment unless configured otherwise.
	DefaultDialTimeout = time.Second * 10
)

var (
	// ErrClosed is returned when a Socket is used after Close.
	ErrClosed = errors.New("command socket is closed")

	// ErrTimeout is returned, wrapped, when no complete reply arrives within the reply timeout.
	ErrTimeout = errors.New("timed out waiting for reply")
)

// ConnectionError means the command endpoint could not be reached.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to command endpoint %s: %s", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Socket is an open connection to one command endpoint.
type Socket struct {
	addr         string
	conn         net.Conn
	reader       *bufio.Reader
	ctx          context.Context
	framing      Framing
	replyTimeout time.Duration
	dialTimeout  time.Duration
	logger       framework.Logger
	stopWatching func() bool
	closed       bool
	closeOnce    sync.Once
	closeErr     error
}

// Option configures a Socket when it is opened.
type Option helpers.ConfigOption[Socket]

type optionFraming struct{ framing Framing }

func (o optionFraming) Configure(s *Socket) error {
	if o.framing == nil {
		return errors.New("framing must not be nil")
	}
	s.framing = o.framing
	return nil
}

// WithFraming selects how commands are terminated and how the end of a reply is recognized.
// The default is LineFraming.
func WithFraming(framing Framing) Option { return optionFraming{framing} }

type optionReplyTimeout struct{ timeout time.Duration }

func (o optionReplyTimeout) Configure(s *Socket) error {
	if o.timeout < 0 {
		return fmt.Errorf("invalid reply timeout %s", o.timeout)
	}
	s.replyTimeout = o.timeout
	return nil
}

// WithReplyTimeout sets how long GetReply waits. Zero means wait until the connection drops or
// the context given to Dial is done.
func WithReplyTimeout(timeout time.Duration) Option { return optionReplyTimeout{timeout} }

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(timeout time.Duration) Option {
	return helpers.ConfigOptionFunc[Socket](func(s *Socket) error {
		if timeout < 0 {
			return fmt.Errorf("invalid dial timeout %s", timeout)
		}
		s.dialTimeout = timeout
		return nil
	})
}

type optionLogger struct{ logger framework.Logger }

func (o optionLogger) Configure(s *Socket) error {
	if o.logger != nil {
		s.logger = o.logger
	}
	return nil
}

// WithLogger sends a debug line for every command and reply.
func WithLogger(logger framework.Logger) Option { return optionLogger{logger} }

// Dial opens a connection to the command endpoint at host:port.
//
// The context bounds the whole lifetime of the socket: once it is done, any pending send or
// receive fails.
func Dial(ctx context.Context, host string, port int, options ...Option) (*Socket, error) {
	s := &Socket{
		addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		ctx:          ctx,
		framing:      LineFraming{},
		replyTimeout: DefaultReplyTimeout,
		dialTimeout:  DefaultDialTimeout,
		logger:       framework.NullLogger(),
	}
	if err := helpers.ApplyOptions(s, options...); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, &ConnectionError{Addr: s.addr, Err: err}
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	// Unblock any I/O in progress as soon as the context ends.
	s.stopWatching = context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	s.logger.Printf("Connected to %s", s.addr)
	return s, nil
}

// Addr returns the host:port of the endpoint.
func (s *Socket) Addr() string { return s.addr }

// SendCmd transmits one command, followed by the framing's terminator.
func (s *Socket) SendCmd(command string) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("sending command to %s: %w", s.addr, err)
	}
	s.logger.Printf("Sending command to %s: %s", s.addr, command)
	if _, err := s.conn.Write(s.framing.Encode(command)); err != nil {
		return fmt.Errorf("sending command to %s: %w", s.addr, s.contextOr(err))
	}
	return nil
}

// GetReply blocks until the framing recognizes a complete reply, and returns it.
func (s *Socket) GetReply() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("waiting for reply from %s: %w", s.addr, err)
	}
	if deadline, ok := s.readDeadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}
	reply, err := s.framing.ReadReply(s.reader)
	if err != nil {
		var netErr net.Error
		if s.ctx.Err() != nil {
			return "", fmt.Errorf("waiting for reply from %s: %w", s.addr, s.ctx.Err())
		}
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w from %s after %s", ErrTimeout, s.addr, s.replyTimeout)
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("connection to %s dropped before a complete reply: %w", s.addr, err)
	}
	s.logger.Printf("Reply from %s: %s", s.addr, reply)
	return reply, nil
}

// Close releases the connection. It is safe to call more than once; later calls return the
// result of the first.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		if s.stopWatching != nil {
			s.stopWatching()
		}
		s.closeErr = s.conn.Close()
		s.logger.Printf("Closed connection to %s", s.addr)
	})
	return s.closeErr
}

// readDeadline is the reply timeout from now, or the context's deadline if that comes first.
func (s *Socket) readDeadline() (time.Time, bool) {
	deadline, ok := s.ctx.Deadline()
	if s.replyTimeout > 0 {
		if limit := time.Now().Add(s.replyTimeout); !ok || limit.Before(deadline) {
			return limit, true
		}
	}
	return deadline, ok
}

func (s *Socket) contextOr(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// WithSocket opens a Socket, passes it to fn, and closes it whether fn returns normally, returns
// an error, or panics. The error from fn takes precedence over an error from closing.
func WithSocket(
	ctx context.Context,
	host string,
	port int,
	fn func(*Socket) error,
	options ...Option,
) (err error) {
	s, err := Dial(ctx, host, port, options...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}
