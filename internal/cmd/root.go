package cmd

import (
	"github.com/AlexxIT/framepump/internal/app"
	"github.com/spf13/cobra"
)

var confs []string

var rootCmd = &cobra.Command{
	Use:   "framepump",
	Short: "V4L2 capture with hardware codec pipeline",
	Long: `Framepump captures frames from a V4L2 camera through a ring of mapped
buffers, passes them through a decoder or encoder and writes the result
to a file or stdout.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if len(confs) == 0 {
			app.Init(nil) // default config file
		} else {
			app.Init(confs)
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(
		&confs, "config", "c", nil,
		"config file path, inline YAML or key=value (default is "+app.DefaultConfig+")",
	)
}
