//go:build !linux

package capture

import (
	"fmt"

	"github.com/AlexxIT/framepump/pkg/core"
	"github.com/rs/zerolog"
)

func Open(path string, _ zerolog.Logger) (*Ring, error) {
	return nil, fmt.Errorf("capture: V4L2 is linux only: %w", core.ErrConfig)
}
