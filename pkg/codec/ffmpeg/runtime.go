package ffmpeg

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/AlexxIT/framepump/pkg/codec"
	"github.com/AlexxIT/framepump/pkg/core"
)

// better to compare libavformat, because nightly/master builds, 59.27 is ffmpeg 5.1
const minLibavformat = "59.27.100"

type version struct {
	ffmpeg string
	err    error
}

var verMu sync.Mutex
var versions = map[string]version{}

// Version of the ffmpeg binary, checked once per binary
func Version(bin string) (string, error) {
	verMu.Lock()
	defer verMu.Unlock()

	if v, ok := versions[bin]; ok {
		return v.ffmpeg, v.err
	}

	var v version

	b, err := exec.Command(bin, "-version").Output()
	if err != nil {
		v.ffmpeg = "-"
		v.err = fmt.Errorf("ffmpeg: %w: %w", core.ErrResource, err)
	} else {
		var av string
		if v.ffmpeg, av = ParseVersion(b); v.ffmpeg == "" {
			v.ffmpeg = "?"
		}
		if av != "" && av < minLibavformat {
			v.err = fmt.Errorf("ffmpeg: unsupported version %s: %w", v.ffmpeg, core.ErrResource)
		}
	}

	versions[bin] = v
	return v.ffmpeg, v.err
}

var rtMu sync.Mutex
var runtimes = map[string]*codec.Runtime{}

// Runtime - one shared handle per binary, first component checks the version
func Runtime(bin string) *codec.Runtime {
	rtMu.Lock()
	defer rtMu.Unlock()

	rt := runtimes[bin]
	if rt == nil {
		rt = codec.NewRuntime(func() error {
			_, err := Version(bin)
			return err
		}, nil)
		runtimes[bin] = rt
	}
	return rt
}
