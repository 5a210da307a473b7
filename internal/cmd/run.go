package cmd

import (
	"github.com/AlexxIT/framepump/internal/capture"
	"github.com/AlexxIT/framepump/internal/codec"
	"github.com/AlexxIT/framepump/internal/runner"
	"github.com/AlexxIT/framepump/pkg/shell"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture, convert and write frames until interrupted",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	capCfg := capture.LoadConfig()
	codecCfg := codec.LoadConfig()
	cfg := runner.LoadConfig()

	ctx, cancel := shell.SignalContext(cmd.Context())
	defer cancel()

	return runner.Run(ctx, capCfg, codecCfg, cfg)
}
