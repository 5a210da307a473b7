package cmd

import (
	"github.com/AlexxIT/framepump/internal/codec"
	"github.com/AlexxIT/framepump/pkg/yaml"
	"github.com/spf13/cobra"
)

var hardwareCmd = &cobra.Command{
	Use:   "hardware",
	Short: "Probe ffmpeg hardware encoders and decoders",
	RunE:  runHardware,
}

func init() {
	rootCmd.AddCommand(hardwareCmd)
}

func runHardware(cmd *cobra.Command, args []string) error {
	cfg := codec.LoadConfig()

	probes, err := codec.Probe(cfg.FFmpeg.Bin)
	if err != nil {
		return err
	}

	b, err := yaml.Encode(map[string]any{"hardware": probes}, 2)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
