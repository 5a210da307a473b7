package ffmpeg

import (
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/AlexxIT/framepump/pkg/core"
)

const (
	EngineSoftware     = "software"
	EngineAuto         = "auto"
	EngineVAAPI        = "vaapi"        // Intel iGPU and AMD GPU
	EngineV4L2M2M      = "v4l2m2m"      // Raspberry Pi 3 and 4
	EngineCUDA         = "cuda"         // NVidia on Windows and Linux
	EngineVideoToolbox = "videotoolbox" // macOS
	EngineRKMPP        = "rkmpp"        // Rockchip
)

// encoder presets, key is codec or codec/engine
var presets = map[string]string{
	// `-tune zerolatency` - for minimal latency, no frames delay inside the encoder
	"h264":  "-c:v libx264 -g 50 -profile:v high -level:v 4.1 -preset:v superfast -tune:v zerolatency -pix_fmt:v yuv420p",
	"h265":  "-c:v libx265 -g 50 -profile:v main -level:v 5.1 -preset:v superfast -tune:v zerolatency -pix_fmt:v yuv420p",
	"mjpeg": "-c:v mjpeg -pix_fmt:v yuvj420p",
	"raw":   "-c:v rawvideo -pix_fmt:v yuv420p",

	// `-bf 0` - disable B-frames is very important
	"h264/vaapi":  "-c:v h264_vaapi -g 50 -bf 0 -profile:v high -level:v 4.1 -sei:v 0",
	"h265/vaapi":  "-c:v hevc_vaapi -g 50 -bf 0 -profile:v main -level:v 5.1 -sei:v 0",
	"mjpeg/vaapi": "-c:v mjpeg_vaapi",

	"h264/v4l2m2m": "-c:v h264_v4l2m2m -g 50 -bf 0",
	"h265/v4l2m2m": "-c:v hevc_v4l2m2m -g 50 -bf 0",

	// important to use custom ffmpeg with rkmpp encoders
	"h264/rkmpp": "-c:v h264_rkmpp_encoder -g 50 -bf 0 -profile:v high -level:v 4.1",
	"h265/rkmpp": "-c:v hevc_rkmpp_encoder -g 50 -bf 0 -level:v 5.1",

	// preset=p2 - faster, tune=ll - low latency
	"h264/cuda": "-c:v h264_nvenc -g 50 -bf 0 -profile:v high -level:v auto -preset:v p2 -tune:v ll",
	"h265/cuda": "-c:v hevc_nvenc -g 50 -bf 0 -profile:v main -level:v auto",

	"h264/videotoolbox": "-c:v h264_videotoolbox -g 50 -bf 0 -profile:v high -level:v 4.1",
	"h265/videotoolbox": "-c:v hevc_videotoolbox -g 50 -bf 0 -profile:v main -level:v 5.1",
}

const (
	ProbeV4L2M2MH264 = "-f lavfi -i testsrc2 -t 1 -c h264_v4l2m2m -f null -"
	ProbeV4L2M2MH265 = "-f lavfi -i testsrc2 -t 1 -c hevc_v4l2m2m -f null -"
	ProbeVAAPIH264   = "-init_hw_device vaapi -f lavfi -i testsrc2 -t 1 -vf format=nv12,hwupload -c h264_vaapi -f null -"
	ProbeVAAPIH265   = "-init_hw_device vaapi -f lavfi -i testsrc2 -t 1 -vf format=nv12,hwupload -c hevc_vaapi -f null -"
	ProbeVAAPIJPEG   = "-init_hw_device vaapi -f lavfi -i testsrc2 -t 1 -vf format=nv12,hwupload -c mjpeg_vaapi -f null -"
	ProbeCUDAH264    = "-init_hw_device cuda -f lavfi -i testsrc2 -t 1 -c h264_nvenc -f null -"
	ProbeCUDAH265    = "-init_hw_device cuda -f lavfi -i testsrc2 -t 1 -c hevc_nvenc -f null -"
	ProbeRKMPPH264   = "-f lavfi -i testsrc2 -t 1 -c h264_rkmpp_encoder -f null -"
)

// codecName - preset key for a core codec
func codecName(codec string) string {
	switch codec {
	case core.CodecH264:
		return "h264"
	case core.CodecH265:
		return "h265"
	case core.CodecJPEG, core.CodecMJPEG:
		return "mjpeg"
	case core.CodecI420:
		return "raw"
	}
	return ""
}

// MakeHardware converts software encoder args to the engine args.
// Codecs without a preset for the engine stay on software.
func MakeHardware(args *Args, name, engine string) string {
	preset, ok := presets[name+"/"+engine]
	if !ok {
		return EngineSoftware
	}

	for i, codec := range args.Codecs {
		if !strings.HasPrefix(codec, "-c:v ") {
			continue
		}

		args.Codecs[i] = preset

		switch engine {
		case EngineVAAPI:
			args.Global += " -init_hw_device vaapi"
			for j, filter := range args.Filters {
				if strings.HasPrefix(filter, "scale=") {
					args.Filters[j] = "scale_vaapi=" + filter[6:]
				}
			}
			// raw frames come from memory, insert before hardware scale
			args.InsertFilter("format=nv12,hwupload")

		case EngineCUDA:
			args.Global += " -init_hw_device cuda"

		case EngineRKMPP:
			for j, filter := range args.Filters {
				if strings.HasPrefix(filter, "scale=") {
					args.Filters = append(args.Filters[:j], args.Filters[j+1:]...)

					width, height, _ := strings.Cut(filter[6:], ":")
					if width != "-1" {
						args.Codecs[i] += " -width " + width
					}
					if height != "-1" {
						args.Codecs[i] += " -height " + height
					}
					break
				}
			}
		}
	}

	return engine
}

// MakeHWAccel adds hardware decoding to the input. Decoded frames are
// downloaded to memory because the output is raw video on a pipe.
func MakeHWAccel(args *Args, engine string) string {
	switch engine {
	case EngineVAAPI, EngineCUDA, EngineVideoToolbox:
		args.Input = "-hwaccel " + engine + " " + args.Input
		return engine
	}
	return EngineSoftware
}

type Probe struct {
	Engine string `json:"engine" yaml:"engine"`
	Codec  string `json:"codec" yaml:"codec"`
	OK     bool   `json:"ok" yaml:"ok"`
}

func ProbeAll(bin string) []Probe {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		return []Probe{
			{Engine: EngineV4L2M2M, Codec: "h264", OK: run(bin, ProbeV4L2M2MH264)},
			{Engine: EngineV4L2M2M, Codec: "h265", OK: run(bin, ProbeV4L2M2MH265)},
			{Engine: EngineRKMPP, Codec: "h264", OK: run(bin, ProbeRKMPPH264)},
		}
	}

	return []Probe{
		{Engine: EngineVAAPI, Codec: "h264", OK: run(bin, ProbeVAAPIH264)},
		{Engine: EngineVAAPI, Codec: "h265", OK: run(bin, ProbeVAAPIH265)},
		{Engine: EngineVAAPI, Codec: "mjpeg", OK: run(bin, ProbeVAAPIJPEG)},
		{Engine: EngineCUDA, Codec: "h264", OK: run(bin, ProbeCUDAH264)},
		{Engine: EngineCUDA, Codec: "h265", OK: run(bin, ProbeCUDAH265)},
	}
}

var cache = map[string]string{}
var cacheMu sync.Mutex

// ProbeHardware returns the first working engine for the codec, result is cached
func ProbeHardware(bin, name string) string {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := bin + "/" + name
	if engine, ok := cache[key]; ok {
		return engine
	}

	engine := probeHardware(bin, name)
	cache[key] = engine
	return engine
}

func probeHardware(bin, name string) string {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		switch name {
		case "h264":
			if run(bin, ProbeV4L2M2MH264) {
				return EngineV4L2M2M
			}
			if run(bin, ProbeRKMPPH264) {
				return EngineRKMPP
			}
		case "h265":
			if run(bin, ProbeV4L2M2MH265) {
				return EngineV4L2M2M
			}
		}

		return EngineSoftware
	}

	switch name {
	case "h264":
		if run(bin, ProbeCUDAH264) {
			return EngineCUDA
		}
		if run(bin, ProbeVAAPIH264) {
			return EngineVAAPI
		}

	case "h265":
		if run(bin, ProbeCUDAH265) {
			return EngineCUDA
		}
		if run(bin, ProbeVAAPIH265) {
			return EngineVAAPI
		}

	case "mjpeg":
		if run(bin, ProbeVAAPIJPEG) {
			return EngineVAAPI
		}
	}

	return EngineSoftware
}

func run(bin string, args string) bool {
	err := exec.Command(bin, strings.Split(args, " ")...).Run()
	return err == nil
}
