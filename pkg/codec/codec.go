package codec

import (
	"fmt"

	"github.com/AlexxIT/framepump/pkg/buffer"
)

type Direction byte

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Format of one port. BufferSize and BufferNum are minimums set by the component.
type Format struct {
	Encoding string
	Width    int
	Height   int

	BufferSize int
	BufferNum  int
}

func (f Format) String() string {
	if f.Width == 0 {
		return f.Encoding
	}
	return fmt.Sprintf("%s %dx%d", f.Encoding, f.Width, f.Height)
}

type EventKind byte

const (
	EventFormatChanged EventKind = iota + 1
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventFormatChanged:
		return "format_changed"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event - out of band notice from the component instead of data
type Event struct {
	Kind   EventKind
	Format Format // new output format for EventFormatChanged
	Status int32
	Fatal  bool // component is unusable
}

// Callback runs in the component context and must not block.
// Slot may be nil only for an event. Event is nil for data.
type Callback func(dir Direction, s *buffer.Slot, ev *Event)

// Component - accelerator boundary. Slots sent to a port are owned by Hardware
// until the component returns them through the callback.
type Component interface {
	// Commit returns the format the component accepted, it may differ from the request
	Commit(dir Direction, f Format) (Format, error)
	Enable(dir Direction, cb Callback) error
	// Disable returns every in-flight slot through the callback before it returns
	Disable(dir Direction) error
	Send(dir Direction, s *buffer.Slot) error
	Close() error
}

// Event status codes, same values as MMAL
const (
	StatusNoMemory int32 = 1
	StatusNoSpace  int32 = 2
	StatusInvalid  int32 = 3
	StatusIO       int32 = 7
	StatusCorrupt  int32 = 9
)
