package ffmpeg

import (
	"bytes"
	"strings"
)

type Args struct {
	Bin     string   // ffmpeg
	Global  string   // -hide_banner -v error
	Input   string   // -f mjpeg -i -
	Codecs  []string // -c:v mjpeg -q:v 5
	Filters []string // scale=1280:960
	Output  string   // -f rawvideo -
}

func (a *Args) AddCodec(codec string) {
	a.Codecs = append(a.Codecs, codec)
}

func (a *Args) AddFilter(filter string) {
	a.Filters = append(a.Filters, filter)
}

func (a *Args) InsertFilter(filter string) {
	a.Filters = append([]string{filter}, a.Filters...)
}

func (a *Args) HasFilters(filters ...string) bool {
	for _, f1 := range a.Filters {
		for _, f2 := range filters {
			if strings.HasPrefix(f1, f2) {
				return true
			}
		}
	}

	return false
}

func (a *Args) String() string {
	b := bytes.NewBuffer(make([]byte, 0, 512))

	b.WriteString(a.Bin)

	if a.Global != "" {
		b.WriteByte(' ')
		b.WriteString(a.Global)
	}

	b.WriteByte(' ')
	b.WriteString(a.Input)

	for _, codec := range a.Codecs {
		b.WriteByte(' ')
		b.WriteString(codec)
	}

	if len(a.Filters) > 0 {
		for i, filter := range a.Filters {
			if i == 0 {
				b.WriteString(` -vf "`)
			} else {
				b.WriteByte(',')
			}
			b.WriteString(filter)
		}
		b.WriteByte('"')
	}

	b.WriteByte(' ')
	b.WriteString(a.Output)

	return b.String()
}

// ParseVersion returns ffmpeg and libavformat versions from `ffmpeg -version` output
func ParseVersion(b []byte) (ffmpeg, libavformat string) {
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		switch {
		case len(fields) >= 3 && fields[0] == "ffmpeg" && fields[1] == "version":
			ffmpeg = fields[2]
		case len(fields) >= 2 && fields[0] == "libavformat":
			// libavformat    60. 16.100 / 60. 16.100
			s, _, _ := strings.Cut(strings.TrimSpace(line)[len("libavformat"):], "/")
			libavformat = strings.Join(strings.Fields(s), "")
		}
	}
	return
}
