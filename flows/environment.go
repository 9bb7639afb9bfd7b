// Package flows is the prplMesh multi-device flow test suite. The tests live in this package's
// _test.go files and run with "go test ./flows".
//
// By default the suite starts an in-process simulator. To run it against a rig, point
// PRPLMESH_TOPOLOGY at a topology file, or PRPLMESH_CONSUL_ADDR at a Consul agent in which the
// devices are registered. Settings can also come from a .env file in the working directory.
package flows

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/proy1234/prplMesh/deployment"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/simulator"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/topology"
)

// Names of the environment variables that select what the suite runs against.
const (
	EnvTopology      = "PRPLMESH_TOPOLOGY"
	EnvConsulAddress = "PRPLMESH_CONSUL_ADDR"
	EnvConsulPrefix  = "PRPLMESH_CONSUL_PREFIX"
	EnvLogURL        = "PRPLMESH_LOG_URL"
	EnvVerbose       = "PRPLMESH_VERBOSE"
	EnvCAPI          = "PRPLMESH_CAPI"
	EnvTimeout       = "PRPLMESH_COMMAND_TIMEOUT"
)

// DefaultCommandTimeout bounds each command exchange unless PRPLMESH_COMMAND_TIMEOUT says
// otherwise.
const DefaultCommandTimeout = time.Second * 30

// Environment is what a test run talks to.
type Environment struct {
	System *testsystem.TestSystem

	// Simulator is set when the suite runs without a rig.
	Simulator *simulator.Simulator

	closers []func() error
}

// Setup reads the environment, starts a simulator if no rig is configured, and creates the
// TestSystem. A missing .env file is not an error.
func Setup(logger framework.Logger) (*Environment, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot read .env file: %w", err)
	}
	if logger == nil {
		logger = framework.NullLogger()
	}

	verbose, err := boolSetting(EnvVerbose)
	if err != nil {
		return nil, err
	}
	timeout := DefaultCommandTimeout
	if value := os.Getenv(EnvTimeout); value != "" {
		if timeout, err = time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvTimeout, value, err)
		}
	}

	env := &Environment{}
	var d testsystem.Deployment
	switch {
	case os.Getenv(EnvTopology) != "":
		static, err := deployment.Load(os.Getenv(EnvTopology), logger)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, static.Close)
		d = static
	case os.Getenv(EnvConsulAddress) != "":
		var logs logsource.Source
		if url := os.Getenv(EnvLogURL); url != "" {
			logs = logsource.NewHTTP(url, nil)
		}
		c, err := deployment.NewConsulFromAddress(os.Getenv(EnvConsulAddress), os.Getenv(EnvConsulPrefix), logs)
		if err != nil {
			return nil, err
		}
		d = c
	default:
		capi, err := boolSetting(EnvCAPI)
		if err != nil {
			return nil, err
		}
		sim, err := simulator.New(simulator.WithLogger(logger), simulator.WithCAPI(capi))
		if err != nil {
			return nil, err
		}
		env.Simulator = sim
		env.closers = append(env.closers, sim.Close)
		static := sim.Deployment()
		env.closers = append(env.closers, static.Close)
		d = static
	}

	env.System, err = testsystem.New(d,
		testsystem.WithVerbose(verbose),
		testsystem.WithLogger(logger),
		testsystem.WithCommandTimeout(timeout),
	)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	return env, nil
}

// Topology describes the devices being tested, if the deployment can say.
func (e *Environment) Topology() *topology.Topology {
	if s, ok := e.System.Deployment.(*deployment.Static); ok {
		return s.Topology()
	}
	return nil
}

// Close stops whatever Setup started, in reverse order.
func (e *Environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func boolSetting(name string) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return b, nil
}
