// Package logsource retrieves the text of device logs from wherever a rig collects them, and can
// also write logs into those same places.
package logsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/topology"
)

// ErrLogNotFound is returned, wrapped, when a source has no such log for the device.
var ErrLogNotFound = errors.New("log not found")

// Source returns the current full text of a device log.
type Source interface {
	Log(ctx context.Context, device devices.DeviceType, log devices.LogType) (string, error)
}

// Sink stores log lines. A line must not contain a newline.
type Sink interface {
	Append(ctx context.Context, device devices.DeviceType, log devices.LogType, line string) error
}

// Closer is implemented by sources that hold connections or background goroutines.
type Closer interface {
	Close() error
}

func notFound(device devices.DeviceType, log devices.LogType) error {
	return fmt.Errorf("%w: %s on %s", ErrLogNotFound, log, device)
}

// Open creates the source described by a topology's logs section. A "none" source returns
// (nil, nil).
func Open(cfg topology.Logs, logger framework.Logger) (Source, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	switch cfg.Source {
	case topology.LogSourceNone:
		return nil, nil
	case topology.LogSourceFile:
		return NewFile(cfg.Dir), nil
	case topology.LogSourceHTTP:
		return NewHTTP(cfg.URL, nil), nil
	case topology.LogSourceStream:
		return NewStream(cfg.URL, logger), nil
	case topology.LogSourceRedis:
		return NewRedis(RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB, Prefix: cfg.Prefix}), nil
	case topology.LogSourceDynamoDB:
		d, err := NewDynamoDB(DynamoDBOptions{
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Table:    cfg.Table,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown log source %q", cfg.Source)
	}
}
