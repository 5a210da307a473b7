package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/AlexxIT/framepump/internal/capture"
	"github.com/AlexxIT/framepump/pkg/shell"
	"github.com/AlexxIT/framepump/pkg/yaml"
	"github.com/spf13/cobra"
)

var devicesWatch bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices with formats, sizes and frame rates",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().BoolVarP(&devicesWatch, "watch", "w", false, "print devices as they are plugged in or out")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := capture.Devices()
	if err != nil {
		return err
	}

	b, err := yaml.Encode(map[string]any{"devices": devices}, 2)
	if err != nil {
		return err
	}
	_, _ = cmd.OutOrStdout().Write(b)

	if !devicesWatch {
		return nil
	}

	ctx, cancel := shell.SignalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	return capture.Watch(ctx, filepath.Dir(capture.DefaultDevice), func(path string, added bool) {
		if added {
			_, _ = fmt.Fprintln(out, "+", path)
		} else {
			_, _ = fmt.Fprintln(out, "-", path)
		}
	})
}
