package buffer

// Owner of a slot. Exactly one at any time.
type Owner byte

const (
	Free Owner = iota
	Kernel
	Hardware
	Application
)

func (o Owner) String() string {
	switch o {
	case Free:
		return "free"
	case Kernel:
		return "kernel"
	case Hardware:
		return "hardware"
	case Application:
		return "application"
	}
	return "unknown"
}

type Flags byte

const (
	FlagEvent Flags = 1 << iota // slot carries an out-of-band event, not frame data
	FlagError                   // event is an error, Status holds the code
)

// Slot - fixed region of memory that moves between owners without copying.
// Data is the whole region, Length is the filled part.
type Slot struct {
	Index  int
	Data   []byte
	Length int
	Flags  Flags
	Status int32

	owner Owner
	pool  *Pool
}

func (s *Slot) Bytes() []byte {
	return s.Data[:s.Length]
}

func (s *Slot) Cap() int {
	return len(s.Data)
}

func (s *Slot) Pool() *Pool {
	return s.pool
}

// Owner - current owner, safe to call from any goroutine
func (s *Slot) Owner() Owner {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.owner
}

func (s *Slot) IsEvent() bool {
	return s.Flags&FlagEvent != 0
}

func (s *Slot) IsError() bool {
	return s.Flags&FlagError != 0
}

func (s *Slot) reset() {
	s.Length = 0
	s.Flags = 0
	s.Status = 0
}
