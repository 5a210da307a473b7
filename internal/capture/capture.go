package capture

import (
	"fmt"
	"time"

	"github.com/AlexxIT/framepump/internal/app"
	"github.com/AlexxIT/framepump/pkg/capture"
	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/v4l2/device"
	"github.com/rs/zerolog"
)

const DefaultDevice = "/dev/video0"

type Config struct {
	Device  string        `yaml:"device"`
	Format  string        `yaml:"format"` // mjpeg, yuyv, h264, ffmpeg names are fine
	Size    string        `yaml:"size"`   // 1280x960
	FPS     int           `yaml:"fps"`
	Buffers int           `yaml:"buffers"`
	Timeout time.Duration `yaml:"timeout"` // no frame for this long is an error
}

func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"capture"`
	}

	cfg.Mod = Config{
		Device:  DefaultDevice,
		Format:  "mjpeg",
		Size:    "1280x960",
		Buffers: capture.DefaultBuffers,
		Timeout: 5 * time.Second,
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("capture")

	return cfg.Mod
}

var log = zerolog.Nop()

// Open the ring, negotiate format and frame rate, map buffers and start streaming
func Open(cfg Config) (*capture.Ring, error) {
	format := device.FormatByCodec(core.ParseCodec(cfg.Format))
	if format.FourCC == 0 {
		return nil, fmt.Errorf("capture: unsupported format %q: %w", cfg.Format, core.ErrConfig)
	}

	width, height := core.ParseSize(cfg.Size)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: wrong size %q: %w", cfg.Size, core.ErrConfig)
	}

	ring, err := capture.Open(cfg.Device, log)
	if err != nil {
		return nil, err
	}

	if err = start(ring, cfg, format.FourCC, uint32(width), uint32(height)); err != nil {
		_ = ring.Close()
		return nil, err
	}

	f := ring.Format()
	log.Info().Str("device", cfg.Device).Str("format", format.Name).
		Uint32("width", f.Width).Uint32("height", f.Height).Msg("[capture] streaming")

	return ring, nil
}

func start(ring *capture.Ring, cfg Config, fourCC, width, height uint32) error {
	if err := ring.Configure(width, height, fourCC); err != nil {
		return err
	}

	if cfg.FPS > 0 {
		fps, err := ring.SetFrameRate(uint32(cfg.FPS))
		if err != nil {
			// many drivers have no frame rate control
			log.Warn().Err(err).Msg("[capture] set frame rate")
		} else if fps != uint32(cfg.FPS) {
			log.Warn().Uint32("fps", fps).Msg("[capture] frame rate adjusted by driver")
		}
	}

	if err := ring.Allocate(cfg.Buffers); err != nil {
		return err
	}

	return ring.Start()
}

// CodecFormat - codec port format for the negotiated capture format
func CodecFormat(f device.PixFormat) codec.Format {
	return codec.Format{
		Encoding: device.FormatByFourCC(f.PixelFormat).Codec,
		Width:    int(f.Width),
		Height:   int(f.Height),
	}
}
