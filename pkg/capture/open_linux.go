package capture

import (
	"fmt"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/v4l2/device"
	"github.com/rs/zerolog"
)

// Open checks the node is a streaming capture device
func Open(path string, log zerolog.Logger) (*Ring, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w: %w", path, core.ErrDevice, err)
	}

	caps, err := dev.Capability()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("capture: querycap %s: %w: %w", path, core.ErrDevice, err)
	}
	if !caps.Capture || !caps.Streaming {
		_ = dev.Close()
		return nil, fmt.Errorf("capture: %s is not a streaming capture device: %w", path, core.ErrConfig)
	}

	r := New(dev, log.With().Str("device", path).Logger())
	r.log.Debug().Str("driver", caps.Driver).Str("card", caps.Card).Msg("[capture] open")
	return r, nil
}
