package simulator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/eventsource"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/logsource"
)

type eventSourceDebugLogger struct {
	logger framework.Logger
}

func (l eventSourceDebugLogger) Println(args ...interface{}) {
	l.logger.Printf("%s", fmt.Sprintln(args...))
}

func (l eventSourceDebugLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

// logService keeps the lines written to every emulated log and serves them over HTTP, both as
// plain text and as an event stream that replays the history before sending new lines.
type logService struct {
	streams *eventsource.Server
	router  *mux.Router
	logger  framework.Logger
	sink    logsource.Sink
	lock    sync.RWMutex
	lines   map[string][]string
	closed  bool
}

type lineEvent struct {
	seq  int
	text string
}

type syncEvent struct {
	seq int
}

func channelName(device devices.DeviceType, log devices.LogType) string {
	return device.String() + "/" + log.String()
}

func newLogService(logger framework.Logger, sink logsource.Sink) *logService {
	streams := eventsource.NewServer()
	streams.ReplayAll = true
	streams.Logger = eventSourceDebugLogger{logger}

	s := &logService{
		streams: streams,
		router:  mux.NewRouter(),
		logger:  logger,
		sink:    sink,
		lines:   make(map[string][]string),
	}
	for _, d := range devices.AllDeviceTypes() {
		for _, l := range devices.AllLogTypes() {
			streams.Register(channelName(d, l), s)
		}
	}
	s.router.HandleFunc("/devices/{device}/logs/{log}", s.getLog).Methods("GET")
	s.router.HandleFunc("/devices/{device}/logs/{log}/stream", s.streamLog).Methods("GET")
	return s
}

func (s *logService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func parseLogPath(r *http.Request) (devices.DeviceType, devices.LogType, bool) {
	vars := mux.Vars(r)
	device, err := devices.ParseDeviceType(vars["device"])
	if err != nil {
		return 0, 0, false
	}
	log, err := devices.ParseLogType(vars["log"])
	if err != nil {
		return 0, 0, false
	}
	return device, log, true
}

func (s *logService) getLog(w http.ResponseWriter, r *http.Request) {
	device, log, ok := parseLogPath(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.text(device, log)))
}

func (s *logService) streamLog(w http.ResponseWriter, r *http.Request) {
	device, log, ok := parseLogPath(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.streams.Handler(channelName(device, log))(w, r)
	s.logger.Printf("End of %s log stream for %s", log, device)
}

// append adds a line to a log, publishes it to subscribers, and copies it to the sink if there
// is one. Embedded newlines split the text into several lines.
func (s *logService) append(device devices.DeviceType, log devices.LogType, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\r\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		channel := channelName(device, log)
		s.lock.Lock()
		if s.closed {
			s.lock.Unlock()
			return
		}
		s.lines[channel] = append(s.lines[channel], line)
		seq := len(s.lines[channel])
		// Publishing under the lock keeps events in sequence order across goroutines.
		s.streams.Publish([]string{channel}, lineEvent{seq: seq, text: line})
		s.lock.Unlock()

		if s.sink != nil {
			if err := s.sink.Append(context.Background(), device, log, line); err != nil {
				s.logger.Printf("Could not copy %s log line of %s to sink: %s", log, device, err)
			}
		}
	}
}

func (s *logService) snapshot(channel string) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string(nil), s.lines[channel]...)
}

func (s *logService) text(device devices.DeviceType, log devices.LogType) string {
	lines := s.snapshot(channelName(device, log))
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Replay sends the lines after the given sequence number, then a sync event.
func (s *logService) Replay(channel, id string) chan eventsource.Event {
	after, _ := strconv.Atoi(id)
	lines := s.snapshot(channel)
	if after > len(lines) || after < 0 {
		after = 0
	}

	// The eventsource server expects a channel; it is simply pre-populated here.
	eventsCh := make(chan eventsource.Event, len(lines)-after+1)
	for i := after; i < len(lines); i++ {
		eventsCh <- lineEvent{seq: i + 1, text: lines[i]}
	}
	eventsCh <- syncEvent{seq: len(lines)}
	close(eventsCh)
	return eventsCh
}

func (s *logService) close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	s.streams.Close()
}

func (e lineEvent) Event() string { return logsource.StreamLineEvent }
func (e lineEvent) Id() string    { return strconv.Itoa(e.seq) } //nolint:stylecheck
func (e lineEvent) Data() string  { return e.text }

func (e syncEvent) Event() string { return logsource.StreamSyncEvent }
func (e syncEvent) Id() string    { return strconv.Itoa(e.seq) } //nolint:stylecheck
func (e syncEvent) Data() string  { return strconv.Itoa(e.seq) }
