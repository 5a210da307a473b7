package core

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID - short instance ID for log context
func NewID() string {
	return uuid.NewString()[:8]
}

func Atoi(s string) (i int) {
	if s != "" {
		i, _ = strconv.Atoi(s)
	}
	return
}

// ParseSize - "1280x960" to width and height
func ParseSize(s string) (width, height int) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0
	}
	return Atoi(w), Atoi(h)
}

// FourCC - V4L2 style little-endian code from 4 chars
func FourCC(s string) uint32 {
	if len(s) != 4 {
		return 0
	}
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

func FourCCString(code uint32) string {
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return strings.TrimRight(string(b), "\x00 ")
}
