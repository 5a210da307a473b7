package cmd

import (
	"fmt"

	"github.com/AlexxIT/framepump/internal/app"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build info",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.VersionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
