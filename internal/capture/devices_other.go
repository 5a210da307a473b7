//go:build !linux

package capture

import (
	"fmt"

	"github.com/AlexxIT/framepump/pkg/core"
)

func Devices() ([]Device, error) {
	return nil, fmt.Errorf("capture: V4L2 is linux only: %w", core.ErrConfig)
}
