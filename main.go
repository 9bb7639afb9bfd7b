package main

import (
	"context"
	_ "embed" // this is required in order for go:embed to work
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	params := &commandParams{}
	root := &cobra.Command{
		Use:   "prplmesh-harness",
		Short: "Drive the devices of a prplMesh test rig",
		Long: `prplmesh-harness sends commands to the devices of a prplMesh test rig, searches ` +
			`their logs, and can emulate a whole rig locally.`,
		Version:       strings.TrimSpace(versionString),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return params.Read(cmd)
		},
	}
	addGlobalFlags(root.PersistentFlags())
	root.AddCommand(
		newSendCommand(params),
		newFindLogCommand(params),
		newWaitCommand(params),
		newSimulateCommand(params),
		newCollectCommand(params),
	)
	return root
}
