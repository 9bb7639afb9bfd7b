package logsource

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proy1234/prplMesh/devices"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireRedis returns a client for a local Redis, or skips the test if there is none.
func requireRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DialTimeout: time.Millisecond * 200})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("no Redis server at localhost:6379: %s", err)
	}
	return client
}

func TestRedisKey(t *testing.T) {
	r := NewRedis(RedisOptions{Addr: "localhost:6379"})
	defer r.Close()
	assert.Equal(t, "prplmesh:logs:agent:beerocks_agent_wlan0", r.Key(devices.Agent, devices.BeerocksAgentWlan0))

	r2 := NewRedis(RedisOptions{Addr: "localhost:6379", Prefix: "rig7"})
	defer r2.Close()
	assert.Equal(t, "rig7:gateway:local_bus", r2.Key(devices.Gateway, devices.LocalBus))
}

func TestRedisSource(t *testing.T) {
	client := requireRedis(t)
	r := NewRedisWithClient(client, "prplmesh-harness-test:"+t.Name())
	defer r.Close()
	ctx := context.Background()
	require.NoError(t, r.Reset(ctx))
	defer func() { _ = r.Reset(ctx) }()

	_, err := r.Log(ctx, devices.Agent, devices.BeerocksAgent)
	assert.ErrorIs(t, err, ErrLogNotFound)

	require.NoError(t, r.Append(ctx, devices.Agent, devices.BeerocksAgent, "first"))
	require.NoError(t, r.Append(ctx, devices.Agent, devices.BeerocksAgent, "second"))

	text, err := r.Log(ctx, devices.Agent, devices.BeerocksAgent)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", text)

	require.NoError(t, r.Reset(ctx))
	_, err = r.Log(ctx, devices.Agent, devices.BeerocksAgent)
	assert.ErrorIs(t, err, ErrLogNotFound)
}
