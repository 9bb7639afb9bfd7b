// Package simulator emulates a prplMesh test topology inside the test process, so that the flow
// tests and the harness itself can run without a rig.
//
// Every emulated device has a command endpoint on 127.0.0.1 that answers line-framed commands
// with scripted replies. A shared HTTP log service makes the device logs available at
//
//	GET <URL>/devices/<device>/logs/<log>          the full text
//	GET <URL>/devices/<device>/logs/<log>/stream   server-sent events, history first
//
// which is the format read by the "http" and "stream" log sources. Devices keep a connection
// open for further commands after replying, so clients must use line or CAPI framing.
package simulator

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/proy1234/prplMesh/deployment"
	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/topology"
)

// DefaultJoinDelay is how long an emulated agent takes to rejoin the controller after a reset.
const DefaultJoinDelay = time.Millisecond * 100

const httpListenerTimeout = time.Second * 10

type simulatorConfig struct {
	devices   []devices.DeviceType
	logger    framework.Logger
	capi      bool
	joinDelay time.Duration
	sink      logsource.Sink
}

// Option configures a Simulator.
type Option helpers.ConfigOption[simulatorConfig]

type optionDevices []devices.DeviceType

func (o optionDevices) Configure(c *simulatorConfig) error {
	for _, d := range o {
		if !d.IsValid() {
			return fmt.Errorf("cannot emulate %s", d)
		}
	}
	c.devices = append([]devices.DeviceType(nil), o...)
	return nil
}

// WithDevices selects which devices are emulated. The default is all of them.
func WithDevices(d ...devices.DeviceType) Option { return optionDevices(d) }

type optionLogger struct{ logger framework.Logger }

func (o optionLogger) Configure(c *simulatorConfig) error {
	if o.logger != nil {
		c.logger = o.logger
	}
	return nil
}

// WithLogger sets the logger for the simulator's own diagnostics.
func WithLogger(logger framework.Logger) Option { return optionLogger{logger} }

type optionCAPI bool

func (o optionCAPI) Configure(c *simulatorConfig) error {
	c.capi = bool(o)
	return nil
}

// WithCAPI makes devices send a "status,RUNNING" line before every CAPI reply, as CAPI agents do.
func WithCAPI(capi bool) Option { return optionCAPI(capi) }

type optionJoinDelay time.Duration

func (o optionJoinDelay) Configure(c *simulatorConfig) error {
	if o < 0 {
		return fmt.Errorf("invalid join delay %s", time.Duration(o))
	}
	c.joinDelay = time.Duration(o)
	return nil
}

// WithJoinDelay sets how long an agent takes to rejoin after dev_reset_default.
func WithJoinDelay(delay time.Duration) Option { return optionJoinDelay(delay) }

type optionSink struct{ sink logsource.Sink }

func (o optionSink) Configure(c *simulatorConfig) error {
	c.sink = o.sink
	return nil
}

// WithLogSink copies every log line that a device writes to a sink, such as a Redis or DynamoDB
// log store, in addition to the simulator's own log service.
func WithLogSink(sink logsource.Sink) Option { return optionSink{sink} }

// Simulator is a running emulated topology.
type Simulator struct {
	devices  map[devices.DeviceType]*Device
	logs     *logService
	server   *http.Server
	listener net.Listener
	capi     bool
	logger   framework.Logger
}

// New starts the emulated devices and the log service.
func New(options ...Option) (*Simulator, error) {
	cfg := simulatorConfig{
		devices:   devices.AllDeviceTypes(),
		logger:    framework.NullLogger(),
		joinDelay: DefaultJoinDelay,
	}
	if err := helpers.ApplyOptions(&cfg, options...); err != nil {
		return nil, err
	}

	s := &Simulator{
		devices: make(map[devices.DeviceType]*Device),
		logs:    newLogService(cfg.logger, cfg.sink),
		capi:    cfg.capi,
		logger:  cfg.logger,
	}
	for _, d := range cfg.devices {
		if _, ok := s.devices[d]; ok {
			continue
		}
		device, err := startDevice(d, s.logs, cfg.logger, cfg.capi, cfg.joinDelay)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.devices[d] = device
	}
	if err := s.startLogServer(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Simulator) startLogServer() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("cannot start log service: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "HEAD" {
				w.WriteHeader(200)
				return
			}
			s.logs.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second, // arbitrary but non-infinite timeout to avoid Slowloris Attack
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Log service stopped: %s", err)
		}
	}()

	// Wait till the server is definitely answering requests before anyone uses it
	deadline := time.NewTimer(httpListenerTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for {
		select {
		case <-deadline.C:
			return fmt.Errorf("could not detect own listener at %s", s.URL())
		case <-ticker.C:
			resp, err := http.Head(s.URL()) //nolint:noctx
			if err == nil {
				_ = resp.Body.Close()
				return nil
			}
		}
	}
}

// URL returns the base URL of the log service.
func (s *Simulator) URL() string {
	return "http://" + s.listener.Addr().String()
}

// Device returns an emulated device, or nil if it is not part of this simulator.
func (s *Simulator) Device(device devices.DeviceType) *Device {
	return s.devices[device]
}

// Topology describes the emulated devices in the same form as a topology file, with logs read
// from the log service through the given source, which must be "http" or "stream".
func (s *Simulator) Topology(logSource string) (*topology.Topology, error) {
	if logSource != topology.LogSourceHTTP && logSource != topology.LogSourceStream {
		return nil, fmt.Errorf("the simulator cannot serve logs as %q", logSource)
	}
	topo := &topology.Topology{
		Devices: make(map[devices.DeviceType]topology.Device, len(s.devices)),
		Logs:    topology.Logs{Source: logSource, URL: s.URL()},
	}
	for d, device := range s.devices {
		entry := topology.Device{IP: "127.0.0.1", Port: device.Port()}
		if s.capi {
			entry.Framing = "capi"
		}
		if d == devices.Gateway || d == devices.Agent {
			entry.Config = map[string]string{
				"ucc_port": strconv.Itoa(device.Port()),
				"bridge":   "br-lan",
				"al_mac":   ALid(d),
			}
		}
		topo.Devices[d] = entry
	}
	return topo, nil
}

// Deployment returns a Deployment for the emulated devices that reads logs over plain HTTP.
func (s *Simulator) Deployment() *deployment.Static {
	topo, _ := s.Topology(topology.LogSourceHTTP)
	return deployment.NewStatic(topo, logsource.NewHTTP(s.URL(), nil))
}

// StreamingDeployment is like Deployment, but follows the logs over server-sent events. It must be
// closed to end the subscriptions.
func (s *Simulator) StreamingDeployment() *deployment.Static {
	topo, _ := s.Topology(topology.LogSourceStream)
	return deployment.NewStatic(topo, logsource.NewStream(s.URL(), s.logger))
}

// Close stops every device and the log service.
func (s *Simulator) Close() error {
	var errs []error
	for _, d := range s.devices {
		if err := d.close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.logs.close()
	return errors.Join(errs...)
}
