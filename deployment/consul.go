package deployment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	consul "github.com/hashicorp/consul/api"

	"github.com/proy1234/prplMesh/config"
	"github.com/proy1234/prplMesh/devices"
	o "github.com/proy1234/prplMesh/framework/opt"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/topology"
)

// DefaultConsulPrefix is the KV folder used when none is configured.
const DefaultConsulPrefix = "prplmesh/devices"

// Consul is a Deployment for rigs whose devices register themselves in Consul KV:
//
//	<prefix>/<device>/ip
//	<prefix>/<device>/port
//	<prefix>/<device>/config/<key>
//
// Every lookup reads Consul again, so devices that are re-provisioned during a run are found at
// their new address.
type Consul struct {
	testsystem.BaseDeployment
	consul     *consul.Client
	prefix     string
	logs       logsource.Source
	logTimeout time.Duration
}

// NewConsul creates a Consul deployment. An empty prefix means DefaultConsulPrefix. If logs is
// nil, Log is not available.
func NewConsul(client *consul.Client, prefix string, logs logsource.Source) *Consul {
	if prefix == "" {
		prefix = DefaultConsulPrefix
	}
	return &Consul{consul: client, prefix: strings.TrimSuffix(prefix, "/"), logs: logs, logTimeout: DefaultLogTimeout}
}

// NewConsulFromAddress connects to the Consul agent at address, such as "localhost:8500".
func NewConsulFromAddress(address, prefix string, logs logsource.Source) (*Consul, error) {
	cfg := consul.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create Consul client: %w", err)
	}
	return NewConsul(client, prefix, logs), nil
}

func (c *Consul) key(device devices.DeviceType, name string) string {
	return c.prefix + "/" + device.String() + "/" + name
}

func (c *Consul) get(device devices.DeviceType, name string) (o.Maybe[string], error) {
	pair, _, err := c.consul.KV().Get(c.key(device, name), nil)
	if err != nil || pair == nil {
		return o.None[string](), err
	}
	return o.Some(string(pair.Value)), nil
}

func (c *Consul) require(device devices.DeviceType, name string) (string, error) {
	if !device.IsValid() {
		return "", fmt.Errorf("%w: %s", testsystem.ErrNoSuchDevice, device)
	}
	value, err := c.get(device, name)
	if err != nil {
		return "", fmt.Errorf("Consul lookup of %s failed: %w", c.key(device, name), err) //nolint:stylecheck
	}
	if !value.IsDefined() {
		return "", fmt.Errorf("%w: %s has no %s registered in Consul", testsystem.ErrNoSuchDevice, device, name)
	}
	return value.Value(), nil
}

func (c *Consul) IP(device devices.DeviceType) (string, error) {
	return c.require(device, "ip")
}

func (c *Consul) Port(device devices.DeviceType) (int, error) {
	value, err := c.require(device, "port")
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q registered for %s", value, device)
	}
	return port, nil
}

// Config reads the gateway or agent configuration from the device's config folder. Other devices
// have no configuration.
func (c *Consul) Config(device devices.DeviceType) (config.Config, error) {
	if device != devices.Gateway && device != devices.Agent {
		return c.BaseDeployment.Config(device)
	}
	folder := c.key(device, "config")
	pairs, _, err := c.consul.KV().List(folder, nil)
	if err != nil {
		return nil, fmt.Errorf("list failed for %s: %w", folder, err)
	}
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key := strings.TrimPrefix(pair.Key, folder+"/")
		if key == "" || key == pair.Key {
			continue
		}
		values[key] = string(pair.Value)
	}
	return config.Map(values), nil
}

func (c *Consul) Log(device devices.DeviceType, log devices.LogType) (string, error) {
	if !device.IsValid() {
		return "", fmt.Errorf("%w: %s", testsystem.ErrNoSuchDevice, device)
	}
	if c.logs == nil {
		return c.BaseDeployment.Log(device, log)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.logTimeout)
	defer cancel()
	return c.logs.Log(ctx, device, log)
}

// Publish registers every device of a topology, replacing whatever was registered under the
// prefix before.
func (c *Consul) Publish(topo *topology.Topology) error {
	kv := c.consul.KV()

	// Start by reading the existing keys; any that are not rewritten get deleted.
	pairs, _, err := kv.List(c.prefix, nil)
	if err != nil {
		return fmt.Errorf("failed to list existing registrations: %w", err)
	}
	oldKeys := make(map[string]struct{})
	for _, p := range pairs {
		oldKeys[p.Key] = struct{}{}
	}

	ops := make([]*consul.KVTxnOp, 0)
	set := func(key, value string) {
		ops = append(ops, &consul.KVTxnOp{Verb: consul.KVSet, Key: key, Value: []byte(value)})
		delete(oldKeys, key)
	}
	for _, device := range topo.Present() {
		d := topo.Devices[device]
		set(c.key(device, "ip"), d.IP)
		set(c.key(device, "port"), strconv.Itoa(d.Port))
		for k, v := range d.Config {
			set(c.key(device, "config/"+k), v)
		}
	}
	for k := range oldKeys {
		ops = append(ops, &consul.KVTxnOp{Verb: consul.KVDelete, Key: k})
	}
	return batchOperations(kv, ops)
}

// batchOperations applies operations in transactions of at most 64 operations, which is the most
// Consul accepts in one transaction.
func batchOperations(kv *consul.KV, ops []*consul.KVTxnOp) error {
	for i := 0; i < len(ops); {
		j := min(i+64, len(ops))
		ok, resp, _, err := kv.Txn(ops[i:j], nil)
		if err != nil {
			return err
		}
		if !ok {
			errs := make([]string, 0, len(resp.Errors))
			for _, te := range resp.Errors {
				errs = append(errs, te.What)
			}
			return fmt.Errorf("Consul transaction failed: %s", strings.Join(errs, ", ")) //nolint:stylecheck
		}
		i = j
	}
	return nil
}
