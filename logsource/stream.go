package logsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/eventsource"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
)

// Event names used on a log stream.
const (
	// StreamLineEvent carries one log line. Its ID is the line's sequence number.
	StreamLineEvent = "line"

	// StreamSyncEvent follows the replayed history, so a subscriber knows it has caught up.
	StreamSyncEvent = "sync"
)

// Stream follows logs over server-sent events: <base>/devices/<device>/logs/<log>/stream sends
// the existing lines and then every new line as it is written. The first Log call for a log
// subscribes and waits until the history has arrived; later calls return what has been received
// so far without any request.
type Stream struct {
	baseURL  string
	client   *http.Client
	logger   framework.Logger
	lock     sync.Mutex
	channels map[streamKey]*streamChannel
	closed   bool
}

type streamKey struct {
	device devices.DeviceType
	log    devices.LogType
}

type streamChannel struct {
	lock     sync.Mutex
	lines    map[int]string
	synced   chan struct{}
	syncOnce sync.Once
	done     chan struct{}
	stream   *eventsource.Stream
}

// NewStream creates a Stream source. Nothing is requested until Log is called.
func NewStream(baseURL string, logger framework.Logger) *Stream {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &Stream{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   http.DefaultClient,
		logger:   logger,
		channels: make(map[streamKey]*streamChannel),
	}
}

// StreamURL returns the event stream resource for one log.
func (s *Stream) StreamURL(device devices.DeviceType, log devices.LogType) string {
	return fmt.Sprintf("%s/devices/%s/logs/%s/stream", s.baseURL, device, log)
}

func (s *Stream) Log(ctx context.Context, device devices.DeviceType, log devices.LogType) (string, error) {
	c, err := s.channel(device, log)
	if err != nil {
		return "", err
	}
	select {
	case <-c.synced:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for %s log on %s: %w", log, device, ctx.Err())
	}
	return c.text(), nil
}

// Close ends all subscriptions.
func (s *Stream) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	for key, c := range s.channels {
		close(c.done)
		c.stream.Close()
		delete(s.channels, key)
	}
	return nil
}

func (s *Stream) channel(device devices.DeviceType, log devices.LogType) (*streamChannel, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, errors.New("log stream source is closed")
	}
	key := streamKey{device, log}
	if c, ok := s.channels[key]; ok {
		return c, nil
	}

	req, err := http.NewRequest(http.MethodGet, s.StreamURL(device, log), nil)
	if err != nil {
		return nil, err
	}
	stream, err := eventsource.SubscribeWithRequestAndOptions(req,
		eventsource.StreamOptionHTTPClient(s.client),
		eventsource.StreamOptionInitialRetry(time.Millisecond*100),
		eventsource.StreamOptionLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to %s log on %s: %w", log, device, err)
	}
	c := &streamChannel{
		lines:  make(map[int]string),
		synced: make(chan struct{}),
		done:   make(chan struct{}),
		stream: stream,
	}
	s.channels[key] = c
	go c.consume(s.logger)
	return c, nil
}

func (c *streamChannel) consume(logger framework.Logger) {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.stream.Events:
			if !ok {
				return
			}
			c.handle(event)
		case err, ok := <-c.stream.Errors:
			if !ok {
				return
			}
			logger.Printf("Log stream error: %s", err)
		}
	}
}

func (c *streamChannel) handle(event eventsource.Event) {
	switch event.Event() {
	case StreamSyncEvent:
		c.syncOnce.Do(func() { close(c.synced) })
	case StreamLineEvent:
		seq, err := strconv.Atoi(event.Id())
		c.lock.Lock()
		if err != nil {
			// Lines without a sequence number can only be placed at the end.
			seq = len(c.lines) + 1
			for _, taken := c.lines[seq]; taken; _, taken = c.lines[seq] {
				seq++
			}
		}
		// A line can arrive twice after a reconnect; the sequence number identifies it.
		c.lines[seq] = event.Data()
		c.lock.Unlock()
	}
}

func (c *streamChannel) text() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	seqs := maps.Keys(c.lines)
	slices.Sort(seqs)
	var b strings.Builder
	for _, seq := range seqs {
		b.WriteString(c.lines[seq])
		b.WriteString("\n")
	}
	return b.String()
}
