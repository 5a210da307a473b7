package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

const kindVideo = "video"

type Device struct {
	Path    string   `json:"path" yaml:"path"`
	Driver  string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	Card    string   `json:"card,omitempty" yaml:"card,omitempty"`
	BusInfo string   `json:"bus_info,omitempty" yaml:"bus_info,omitempty"`
	Formats []Format `json:"formats,omitempty" yaml:"formats,omitempty"`
}

type Format struct {
	Name   string `json:"name" yaml:"name"`
	FourCC string `json:"fourcc" yaml:"fourcc"`
	FFmpeg string `json:"ffmpeg,omitempty" yaml:"ffmpeg,omitempty"`
	Sizes  []Size `json:"sizes,omitempty" yaml:"sizes,omitempty"`
}

type Size struct {
	Size string   `json:"size" yaml:"size"`
	FPS  []uint32 `json:"fps,omitempty" yaml:"fps,omitempty,flow"`
}

func isVideo(path string) bool {
	return strings.HasPrefix(filepath.Base(path), kindVideo)
}

// Watch calls fn for every video node created or removed in dir until ctx is done
func Watch(ctx context.Context, dir string, fn func(path string, added bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("capture: watch: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("capture: watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isVideo(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Create):
				log.Debug().Str("path", event.Name).Msg("[capture] device added")
				fn(event.Name, true)
			case event.Has(fsnotify.Remove):
				log.Debug().Str("path", event.Name).Msg("[capture] device removed")
				fn(event.Name, false)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("[capture] watch")
		}
	}
}
