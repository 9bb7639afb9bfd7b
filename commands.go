package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/proy1234/prplMesh/deployment"
	"github.com/proy1234/prplMesh/devices"
	"github.com/proy1234/prplMesh/flowtest"
	"github.com/proy1234/prplMesh/framework/helpers"
	"github.com/proy1234/prplMesh/logsource"
	"github.com/proy1234/prplMesh/simulator"
	"github.com/proy1234/prplMesh/testsystem"
	"github.com/proy1234/prplMesh/topology"
)

func newSendCommand(params *commandParams) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "send <device> <command>",
		Short: "Send a command to a device and print its reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := devices.ParseDeviceType(args[0])
			if err != nil {
				return err
			}
			ts, closer, err := params.testSystem()
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck

			reply, err := ts.SendCommand(cmd.Context(), device, args[1], !noWait)
			if err != nil {
				return err
			}
			if !noWait {
				helpers.MustFprintln(cmd.OutOrStdout(), reply)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return as soon as the command is sent")
	return cmd
}

func newFindLogCommand(params *commandParams) *cobra.Command {
	var (
		isRegexp      bool
		caseSensitive bool
		timeout       time.Duration
		interval      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "find-log <device> <log> <text>",
		Short: "Check whether a device log contains some text",
		Long: `find-log searches a device log once, or with --timeout keeps searching until the ` +
			`text appears. It exits with an error if the text was not found.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := devices.ParseDeviceType(args[0])
			if err != nil {
				return err
			}
			log, err := devices.ParseLogType(args[1])
			if err != nil {
				return err
			}
			text := args[2]
			ts, closer, err := params.testSystem()
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck

			options := []flowtest.SearchOption{flowtest.Regexp(isRegexp), flowtest.IgnoreCase(!caseSensitive)}
			result := helpers.RunRecorded(func(r *helpers.TestRecorder) {
				b := flowtest.New(r, ts, flowtest.WithOutput(cmd.OutOrStdout()), flowtest.WithContext(cmd.Context()))
				if timeout <= 0 {
					if !b.FindInLogs(device, log, text, options...) {
						r.Errorf("'%s' not found in %s log on %s", text, log, device)
					}
					return
				}
				b.RequireInLogsEventually(device, log, text, timeout, interval, options...)
			})
			if result.Failed() {
				return result.Err()
			}
			helpers.MustFprintf(cmd.OutOrStdout(), "found '%s' in %s log on %s\n", text, log, device)
			return nil
		},
	}
	cmd.Flags().BoolVar(&isRegexp, "regexp", false, "treat the text as a regular expression")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "match case exactly")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "keep searching for this long")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between searches when waiting")
	return cmd
}

func newWaitCommand(params *commandParams) *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait <device>...",
		Short: "Wait until the command endpoints of devices accept connections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var targets []devices.DeviceType
			for _, arg := range args {
				device, err := devices.ParseDeviceType(arg)
				if err != nil {
					return err
				}
				targets = append(targets, device)
			}
			ts, closer, err := params.testSystem()
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			for _, device := range targets {
				if err := ts.WaitForDevice(ctx, device, interval); err != nil {
					return err
				}
				helpers.MustFprintf(cmd.OutOrStdout(), "%s is reachable\n", device)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between connection attempts")
	return cmd
}

// sinkParams selects where the simulate and collect commands write log lines.
type sinkParams struct {
	dir            string
	redisAddr      string
	redisPrefix    string
	dynamoTable    string
	dynamoRegion   string
	dynamoEndpoint string
	createTable    bool
}

func (s *sinkParams) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.dir, "sink-dir", "", "write logs to files under this directory")
	fs.StringVar(&s.redisAddr, "sink-redis", "", "write logs to the Redis server at this address")
	fs.StringVar(&s.redisPrefix, "sink-redis-prefix", logsource.DefaultRedisPrefix, "Redis key prefix")
	fs.StringVar(&s.dynamoTable, "sink-dynamodb-table", "", "write logs to this DynamoDB table")
	fs.StringVar(&s.dynamoRegion, "sink-dynamodb-region", "", "AWS region of the DynamoDB table")
	fs.StringVar(&s.dynamoEndpoint, "sink-dynamodb-endpoint", "", "DynamoDB endpoint, such as a local emulator")
	fs.BoolVar(&s.createTable, "sink-dynamodb-create", false, "create the DynamoDB table first")
}

// open returns the selected sink, or nil if none was selected.
func (s *sinkParams) open(ctx context.Context) (logsource.Sink, func() error, error) {
	noop := func() error { return nil }
	switch {
	case s.dir != "":
		return logsource.NewFile(s.dir), noop, nil
	case s.redisAddr != "":
		r := logsource.NewRedis(logsource.RedisOptions{Addr: s.redisAddr, Prefix: s.redisPrefix})
		return r, r.Close, nil
	case s.dynamoTable != "":
		d, err := logsource.NewDynamoDB(logsource.DynamoDBOptions{
			Region:   s.dynamoRegion,
			Endpoint: s.dynamoEndpoint,
			Table:    s.dynamoTable,
		})
		if err != nil {
			return nil, nil, err
		}
		if s.createTable {
			if err := d.CreateTable(ctx); err != nil {
				return nil, nil, err
			}
		}
		return d, noop, nil
	default:
		return nil, noop, nil
	}
}

func newSimulateCommand(params *commandParams) *cobra.Command {
	var (
		sink          sinkParams
		capi          bool
		joinDelay     time.Duration
		logSource     string
		topologyOut   string
		publishConsul bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Emulate a rig locally until interrupted",
		Long: `simulate starts emulated devices and a log service, and prints a topology file ` +
			`that describes them. With --publish-consul the devices are also registered in Consul.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logSink, closeSink, err := sink.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSink() //nolint:errcheck

			sim, err := simulator.New(
				simulator.WithLogger(params.logger),
				simulator.WithCAPI(capi),
				simulator.WithJoinDelay(joinDelay),
				simulator.WithLogSink(logSink),
			)
			if err != nil {
				return err
			}
			defer sim.Close() //nolint:errcheck

			topo, err := sim.Topology(logSource)
			if err != nil {
				return err
			}
			data, err := topo.Marshal()
			if err != nil {
				return err
			}
			if topologyOut != "" {
				if err := os.WriteFile(topologyOut, data, 0o600); err != nil {
					return err
				}
				helpers.MustFprintf(cmd.OutOrStdout(), "topology written to %s\n", topologyOut)
			} else {
				helpers.MustFprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
			}

			if publishConsul {
				if params.consulAddr == "" {
					return errors.New("--publish-consul needs --consul-addr")
				}
				c, err := deployment.NewConsulFromAddress(params.consulAddr, params.consulPrefix, nil)
				if err != nil {
					return err
				}
				if err := c.Publish(topo); err != nil {
					return fmt.Errorf("cannot register devices in Consul: %w", err)
				}
				helpers.MustFprintf(cmd.OutOrStdout(), "devices registered in Consul under %s\n", params.consulPrefix)
			}

			helpers.MustFprintf(cmd.OutOrStdout(), "simulating %d devices, logs at %s\n", len(topo.Devices), sim.URL())
			<-cmd.Context().Done()
			return nil
		},
	}
	sink.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&capi, "capi", false, "answer in CAPI style with a RUNNING line first")
	cmd.Flags().DurationVar(&joinDelay, "join-delay", simulator.DefaultJoinDelay, "time an agent takes to rejoin after a reset")
	cmd.Flags().StringVar(&logSource, "log-source", topology.LogSourceHTTP, "log source in the printed topology: http or stream")
	cmd.Flags().StringVar(&topologyOut, "write-topology", "", "write the topology to this file instead of printing it")
	cmd.Flags().BoolVar(&publishConsul, "publish-consul", false, "register the emulated devices in Consul")
	return cmd
}

func newCollectCommand(params *commandParams) *cobra.Command {
	var sink sinkParams
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Copy every device log of the rig to a log store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logSink, closeSink, err := sink.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSink() //nolint:errcheck
			if logSink == nil {
				return errors.New("one of --sink-dir, --sink-redis or --sink-dynamodb-table is required")
			}
			ts, closer, err := params.testSystem()
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck

			logs, lines, err := collect(cmd.Context(), ts, logSink)
			if err != nil {
				return err
			}
			helpers.MustFprintf(cmd.OutOrStdout(), "collected %d lines from %d logs\n", lines, logs)
			return nil
		},
	}
	sink.addFlags(cmd.Flags())
	return cmd
}

// storer is implemented by sinks that can write a whole log at once.
type storer interface {
	Store(ctx context.Context, device devices.DeviceType, log devices.LogType, text string) error
}

func collect(ctx context.Context, ts *testsystem.TestSystem, sink logsource.Sink) (int, int, error) {
	var logCount, lineCount int
	for _, device := range devices.AllDeviceTypes() {
		for _, log := range devices.AllLogTypes() {
			text, err := ts.Log(device, log)
			if errors.Is(err, testsystem.ErrNoSuchDevice) || errors.Is(err, logsource.ErrLogNotFound) {
				continue
			}
			if err != nil {
				return logCount, lineCount, fmt.Errorf("cannot read %s log on %s: %w", log, device, err)
			}
			text = strings.TrimRight(text, "\n")
			if text == "" {
				continue
			}
			lines := strings.Split(text, "\n")
			if s, ok := sink.(storer); ok {
				err = s.Store(ctx, device, log, text)
			} else {
				for _, line := range lines {
					if err = sink.Append(ctx, device, log, line); err != nil {
						break
					}
				}
			}
			if err != nil {
				return logCount, lineCount, fmt.Errorf("cannot store %s log of %s: %w", log, device, err)
			}
			logCount++
			lineCount += len(lines)
		}
	}
	return logCount, lineCount, nil
}
