package capture

import (
	"fmt"
	"os"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/AlexxIT/framepump/pkg/v4l2/device"
)

// Devices lists capture nodes in /dev with formats, sizes and frame rates
func Devices() ([]Device, error) {
	files, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}

	var devices []Device

	for _, file := range files {
		if !isVideo(file.Name()) {
			continue
		}

		if d, err := probe("/dev/" + file.Name()); err == nil {
			devices = append(devices, *d)
		} else {
			log.Trace().Err(err).Str("path", file.Name()).Msg("[capture] probe")
		}
	}

	return devices, nil
}

func probe(path string) (*Device, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	caps, err := dev.Capability()
	if err != nil {
		return nil, err
	}
	// metadata nodes of UVC cameras
	if !caps.Capture {
		return nil, fmt.Errorf("capture: %s: no video capture: %w", path, core.ErrConfig)
	}

	d := &Device{Path: path, Driver: caps.Driver, Card: caps.Card, BusInfo: caps.BusInfo}

	fourCCs, _ := dev.ListFormats()
	for _, fourCC := range fourCCs {
		f := device.FormatByFourCC(fourCC)
		format := Format{Name: f.Name, FourCC: core.FourCCString(fourCC), FFmpeg: f.FFmpeg}

		sizes, _ := dev.ListSizes(fourCC)
		for _, size := range sizes {
			fps, _ := dev.ListFrameRates(fourCC, size[0], size[1])
			format.Sizes = append(format.Sizes, Size{
				Size: fmt.Sprintf("%dx%d", size[0], size[1]),
				FPS:  fps,
			})
		}

		d.Formats = append(d.Formats, format)
	}

	return d, nil
}
