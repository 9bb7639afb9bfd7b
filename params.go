package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/proy1234/prplMesh/deployment"
	"github.com/proy1234/prplMesh/framework"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/ucc"
)

const envPrefix = "PRPLMESH"

const defaultCommandTimeout = time.Second * 30

// commandParams holds the settings shared by every subcommand. Each one can be given as a flag or
// as a PRPLMESH_ environment variable, such as PRPLMESH_CONSUL_ADDR for --consul-addr, and
// environment variables can also come from a .env file.
type commandParams struct {
	topologyFile   string
	consulAddr     string
	consulPrefix   string
	logURL         string
	framing        string
	commandTimeout time.Duration
	verbose        bool
	debug          bool

	logger framework.Logger
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("topology", "", "topology file describing the rig")
	fs.String("consul-addr", "", "Consul agent in which the rig's devices are registered")
	fs.String("consul-prefix", deployment.DefaultConsulPrefix, "Consul KV folder of the device registrations")
	fs.String("log-url", "", "log service to read device logs from when using Consul")
	fs.String("framing", "", "reply framing for every device: line, capi or eof")
	fs.Duration("command-timeout", defaultCommandTimeout, "bound on each command exchange")
	fs.BoolP("verbose", "v", false, "print debug output from log searches")
	fs.Bool("debug", false, "enable debug logging")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// Read loads the .env file, if there is one, and resolves every setting.
func (c *commandParams) Read(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot read .env file: %w", err)
	}
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	c.topologyFile = v.GetString("topology")
	c.consulAddr = v.GetString("consul-addr")
	c.consulPrefix = v.GetString("consul-prefix")
	c.logURL = v.GetString("log-url")
	c.framing = v.GetString("framing")
	c.commandTimeout = v.GetDuration("command-timeout")
	c.verbose = v.GetBool("verbose")
	c.debug = v.GetBool("debug")

	if _, err := ucc.ParseFraming(c.framing); err != nil {
		return err
	}
	c.logger = framework.NullLogger()
	if c.debug {
		z, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		c.logger = framework.ZapLogger(z)
	}
	return nil
}

// deployment creates the Deployment that the settings describe. The returned function releases
// it.
func (c *commandParams) deployment() (testsystem.Deployment, func() error, error) {
	switch {
	case c.topologyFile != "":
		s, err := deployment.Load(c.topologyFile, c.logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case c.consulAddr != "":
		var logs logsource.Source
		if c.logURL != "" {
			logs = logsource.NewHTTP(c.logURL, nil)
		}
		d, err := deployment.NewConsulFromAddress(c.consulAddr, c.consulPrefix, logs)
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { return nil }, nil
	default:
		return nil, nil, errors.New("either --topology or --consul-addr is required")
	}
}

// testSystem creates a TestSystem over the configured deployment.
func (c *commandParams) testSystem() (*testsystem.TestSystem, func() error, error) {
	d, closer, err := c.deployment()
	if err != nil {
		return nil, nil, err
	}
	options := []testsystem.Option{
		testsystem.WithVerbose(c.verbose),
		testsystem.WithLogger(c.logger),
		testsystem.WithCommandTimeout(c.commandTimeout),
	}
	if c.framing != "" {
		framing, _ := ucc.ParseFraming(c.framing)
		options = append(options, testsystem.WithSocketOptions(ucc.WithFraming(framing)))
	}
	ts, err := testsystem.New(d, options...)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return ts, closer, nil
}
