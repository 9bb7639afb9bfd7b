package simulator

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/ucc"
)

// Handler produces the reply to one command. The command is passed as received, without its
// line terminator.
type Handler func(d *Device, command string) string

// Device is one emulated device: a TCP endpoint that answers line-framed commands.
type Device struct {
	device    devices.DeviceType
	listener  net.Listener
	logs      *logService
	logger    framework.Logger
	capi      bool
	joinDelay time.Duration

	lock     sync.Mutex
	handlers map[string]Handler
	received []string
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func startDevice(
	device devices.DeviceType,
	logs *logService,
	logger framework.Logger,
	capi bool,
	joinDelay time.Duration,
) (*Device, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("cannot start listener for %s: %w", device, err)
	}
	d := &Device{
		device:    device,
		listener:  listener,
		logs:      logs,
		logger:    framework.LoggerWithPrefix(logger, "["+device.String()+"] "),
		capi:      capi,
		joinDelay: joinDelay,
		handlers:  defaultHandlers(),
		conns:     make(map[net.Conn]struct{}),
	}
	d.wg.Add(1)
	go d.accept()
	return d, nil
}

// Type returns which device this is.
func (d *Device) Type() devices.DeviceType { return d.device }

// Port returns the port of the command endpoint, which listens on 127.0.0.1.
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// PrimaryLog is the log that the device's main process writes: the controller log on the
// gateway and the agent log everywhere else.
func (d *Device) PrimaryLog() devices.LogType {
	if d.device == devices.Gateway {
		return devices.BeerocksController
	}
	return devices.BeerocksAgent
}

// Handle replaces the handler for a command name. The name is the first comma-separated field of
// a command and is matched case-insensitively.
func (d *Device) Handle(name string, handler Handler) {
	d.lock.Lock()
	d.handlers[strings.ToLower(name)] = handler
	d.lock.Unlock()
}

// Reply makes the device answer a command name with a fixed reply.
func (d *Device) Reply(name, reply string) {
	d.Handle(name, func(*Device, string) string { return reply })
}

// Received returns the commands received so far, in order.
func (d *Device) Received() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]string(nil), d.received...)
}

// WriteLog appends a line to one of the device's logs.
func (d *Device) WriteLog(log devices.LogType, line string) {
	d.logs.append(d.device, log, line)
}

// Log returns the current text of one of the device's logs.
func (d *Device) Log(log devices.LogType) string {
	return d.logs.text(d.device, log)
}

func (d *Device) accept() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.logger.Printf("Accept failed: %s", err)
			}
			return
		}
		d.lock.Lock()
		if d.closed {
			d.lock.Unlock()
			_ = conn.Close()
			return
		}
		d.conns[conn] = struct{}{}
		d.wg.Add(1)
		d.lock.Unlock()
		go d.serve(conn)
	}
}

func (d *Device) serve(conn net.Conn) {
	defer d.wg.Done()
	defer func() {
		d.lock.Lock()
		delete(d.conns, conn)
		d.lock.Unlock()
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		command := strings.TrimRight(line, "\r\n")
		if command != "" {
			if werr := d.respond(conn, command); werr != nil {
				d.logger.Printf("Could not send reply: %s", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (d *Device) respond(conn net.Conn, command string) error {
	name := strings.ToLower(strings.TrimSpace(strings.SplitN(command, ",", 2)[0]))
	d.lock.Lock()
	d.received = append(d.received, command)
	handler, ok := d.handlers[name]
	d.lock.Unlock()

	d.logger.Printf("Received command: %s", command)
	d.WriteLog(d.PrimaryLog(), "ucc: received command "+command)

	var reply string
	if ok {
		reply = handler(d, command)
	} else {
		reply = "status,INVALID,errorCode,unknown command"
	}

	var out strings.Builder
	if d.capi && isCAPIReply(reply) {
		out.WriteString("status,RUNNING\n")
	}
	out.WriteString(reply)
	out.WriteString("\n")
	d.logger.Printf("Reply: %s", reply)
	_, err := conn.Write([]byte(out.String()))
	return err
}

func isCAPIReply(reply string) bool {
	_, err := ucc.ParseCAPIReply(reply)
	return err == nil
}

func (d *Device) close() error {
	d.lock.Lock()
	d.closed = true
	for conn := range d.conns {
		_ = conn.Close()
	}
	d.lock.Unlock()
	err := d.listener.Close()
	d.wg.Wait()
	return err
}
