package deployment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	consul "github.com/hashicorp/consul/api"

	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/testsystem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsul implements the parts of the Consul KV HTTP API that the deployment uses.
type fakeConsul struct {
	lock sync.Mutex
	kv   map[string]string
	txns int
}

func (f *fakeConsul) handler() http.Handler {
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Consul-Index", "1")
			w.Header().Set("X-Consul-LastContact", "0")
			w.Header().Set("X-Consul-KnownLeader", "true")
			next.ServeHTTP(w, r)
		})
	})
	router.HandleFunc("/v1/kv/{key:.*}", f.getKV).Methods("GET")
	router.HandleFunc("/v1/txn", f.txn).Methods("PUT")
	return router
}

func (f *fakeConsul) getKV(w http.ResponseWriter, r *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()
	key := mux.Vars(r)["key"]
	var pairs []*consul.KVPair
	if _, recurse := r.URL.Query()["recurse"]; recurse {
		for k, v := range f.kv {
			if strings.HasPrefix(k, key) {
				pairs = append(pairs, &consul.KVPair{Key: k, Value: []byte(v)})
			}
		}
	} else if v, ok := f.kv[key]; ok {
		pairs = append(pairs, &consul.KVPair{Key: key, Value: []byte(v)})
	}
	if len(pairs) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pairs)
}

func (f *fakeConsul) txn(w http.ResponseWriter, r *http.Request) {
	var ops consul.TxnOps
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.txns++
	for _, op := range ops {
		switch op.KV.Verb {
		case consul.KVSet:
			f.kv[op.KV.Key] = string(op.KV.Value)
		case consul.KVDelete:
			delete(f.kv, op.KV.Key)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(consul.TxnResponse{})
}

func startFakeConsul(t *testing.T, kv map[string]string) (*fakeConsul, *consul.Client) {
	f := &fakeConsul{kv: kv}
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	cfg := consul.DefaultConfig()
	cfg.Address = strings.TrimPrefix(server.URL, "http://")
	cfg.Scheme = "http"
	client, err := consul.NewClient(cfg)
	require.NoError(t, err)
	return f, client
}

func TestConsulAddresses(t *testing.T) {
	_, client := startFakeConsul(t, map[string]string{
		"prplmesh/devices/agent/ip":       "10.0.0.3",
		"prplmesh/devices/agent/port":     "8003\n",
		"prplmesh/devices/repeater1/ip":   "10.0.0.4",
		"prplmesh/devices/repeater1/port": "not a number",
	})
	c := NewConsul(client, "", nil)

	ip, err := c.IP(devices.Agent)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", ip)

	port, err := c.Port(devices.Agent)
	require.NoError(t, err)
	assert.Equal(t, 8003, port)

	_, err = c.Port(devices.Repeater1)
	assert.ErrorContains(t, err, `invalid port "not a number"`)

	_, err = c.IP(devices.Gateway)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
	assert.ErrorContains(t, err, "gateway has no ip registered in Consul")

	_, err = c.IP(devices.DeviceType(0))
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
}

func TestConsulConfig(t *testing.T) {
	_, client := startFakeConsul(t, map[string]string{
		"rig/gateway/config/bridge":   "br-lan",
		"rig/gateway/config/ucc_port": "8002",
		"rig/gateway/ip":              "10.0.0.2",
	})
	c := NewConsul(client, "rig/", nil)

	gateway, err := c.Config(devices.Gateway)
	require.NoError(t, err)
	assert.Equal(t, []string{"bridge", "ucc_port"}, gateway.Keys())

	agent, err := c.Config(devices.Agent)
	require.NoError(t, err)
	assert.Empty(t, agent.Keys())

	_, err = c.Config(devices.Repeater2)
	assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
}

func TestConsulWithoutLogs(t *testing.T) {
	_, client := startFakeConsul(t, map[string]string{})
	_, err := NewConsul(client, "", nil).Log(devices.Agent, devices.BeerocksAgent)
	assert.ErrorIs(t, err, testsystem.ErrNotImplemented)
}

func TestConsulLogRejectsInvalidDevice(t *testing.T) {
	_, client := startFakeConsul(t, map[string]string{})
	for _, logs := range []logsource.Source{nil, logsource.NewFile(t.TempDir())} {
		_, err := NewConsul(client, "", logs).Log(devices.DeviceType(0), devices.BeerocksAgent)
		assert.ErrorIs(t, err, testsystem.ErrNoSuchDevice)
	}
}

func TestConsulPublish(t *testing.T) {
	f, client := startFakeConsul(t, map[string]string{
		"prplmesh/devices/repeater2/ip":   "10.0.0.9",
		"prplmesh/devices/repeater2/port": "9",
	})
	c := NewConsul(client, "", nil)

	require.NoError(t, c.Publish(sampleTopology(t, t.TempDir())))
	assert.Equal(t, map[string]string{
		"prplmesh/devices/gateway/ip":            "10.0.0.2",
		"prplmesh/devices/gateway/port":          "8002",
		"prplmesh/devices/gateway/config/bridge": "br-lan",
		"prplmesh/devices/agent/ip":              "10.0.0.3",
		"prplmesh/devices/agent/port":            "8003",
		"prplmesh/devices/repeater1/ip":          "10.0.0.4",
		"prplmesh/devices/repeater1/port":        "8004",
	}, f.kv)
	assert.Equal(t, 1, f.txns)

	port, err := c.Port(devices.Gateway)
	require.NoError(t, err)
	assert.Equal(t, 8002, port)
}
