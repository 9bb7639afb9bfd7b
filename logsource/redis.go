package logsource

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/proy1234/prplMesh/devices"
)

// DefaultRedisPrefix is the key prefix used when none is configured.
const DefaultRedisPrefix = "prplmesh:logs"

// RedisOptions selects the Redis server that a log aggregator writes to.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis reads logs that an aggregator keeps as Redis lists, one element per line, under the key
// <prefix>:<device>:<log>.
type Redis struct {
	redis  *redis.Client
	prefix string
}

func NewRedis(o RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	return NewRedisWithClient(client, o.Prefix)
}

// NewRedisWithClient uses an existing client. An empty prefix means DefaultRedisPrefix.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{redis: client, prefix: prefix}
}

// Key returns the list that holds a log.
func (r *Redis) Key(device devices.DeviceType, log devices.LogType) string {
	return r.prefix + ":" + device.String() + ":" + log.String()
}

func (r *Redis) Log(ctx context.Context, device devices.DeviceType, log devices.LogType) (string, error) {
	key := r.Key(device, log)
	lines, err := r.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		n, err := r.redis.Exists(ctx, key).Result()
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", notFound(device, log)
		}
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (r *Redis) Append(ctx context.Context, device devices.DeviceType, log devices.LogType, line string) error {
	return r.redis.RPush(ctx, r.Key(device, log), line).Err()
}

// Reset deletes every log under the prefix.
func (r *Redis) Reset(ctx context.Context) error {
	iter := r.redis.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *Redis) Close() error {
	return r.redis.Close()
}
