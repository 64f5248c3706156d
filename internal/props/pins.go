package props

import "sync"

// Pull selects the pull resistor applied to an input pin.
type Pull int

const (
	PullNone Pull = iota
	PullDown
)

// PinBank is the hardware surface the GPIO props talk to. On a real
// controller this would wrap the GPIO daemon; tests and mock runs use the
// simulators below.
type PinBank interface {
	// SetInput configures pin as an input with the given pull.
	SetInput(pin int, pull Pull)
	// SetOutput configures pin as an output driving level.
	SetOutput(pin int, level bool)
	// Read samples a single pin.
	Read(pin int) bool
	// ReadBank samples pins 0-31 as a bitmask.
	ReadBank() uint32
}

// SimFuseBank simulates a board of fuses. Each fuse connects a blowing
// pin to a measurement pin; an intact fuse reads high on its measurement
// pin, and driving its blowing pin high blows it permanently.
type SimFuseBank struct {
	mu      sync.Mutex
	blowing map[int]int // blowing pin -> fuse index
	measure map[int]int // measure pin -> fuse index
	blown   []bool
}

// NewSimFuseBank creates a simulated fuse board wired with the given
// blowing and measurement pin arrays. The slices must be the same length.
func NewSimFuseBank(blowing, measure []int) *SimFuseBank {
	b := &SimFuseBank{
		blowing: make(map[int]int, len(blowing)),
		measure: make(map[int]int, len(measure)),
		blown:   make([]bool, len(blowing)),
	}
	for i, pin := range blowing {
		b.blowing[pin] = i
	}
	for i, pin := range measure {
		b.measure[pin] = i
	}
	return b
}

func (b *SimFuseBank) SetInput(pin int, pull Pull) {}

func (b *SimFuseBank) SetOutput(pin int, level bool) {
	if !level {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.blowing[pin]; ok {
		b.blown[i] = true
	}
}

func (b *SimFuseBank) Read(pin int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.measure[pin]
	if !ok {
		return false
	}
	return !b.blown[i]
}

func (b *SimFuseBank) ReadBank() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var bank uint32
	for pin, i := range b.measure {
		if pin >= 0 && pin < 32 && !b.blown[i] {
			bank |= 1 << pin
		}
	}
	return bank
}

// Blown reports whether fuse i has been blown. Test helper.
func (b *SimFuseBank) Blown(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return i >= 0 && i < len(b.blown) && b.blown[i]
}

// SimWireBank simulates a patch panel of physically linked pins. When one
// pin of a link is driven high, the other side reads high in ReadBank.
type SimWireBank struct {
	mu     sync.Mutex
	links  map[int][]int
	driven map[int]bool
}

// NewSimWireBank creates a simulated panel from a list of pin pairs.
func NewSimWireBank(pairs [][2]int) *SimWireBank {
	b := &SimWireBank{
		links:  make(map[int][]int),
		driven: make(map[int]bool),
	}
	for _, p := range pairs {
		b.links[p[0]] = append(b.links[p[0]], p[1])
		b.links[p[1]] = append(b.links[p[1]], p[0])
	}
	return b
}

func (b *SimWireBank) SetInput(pin int, pull Pull) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.driven, pin)
}

func (b *SimWireBank) SetOutput(pin int, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level {
		b.driven[pin] = true
	} else {
		delete(b.driven, pin)
	}
}

func (b *SimWireBank) Read(pin int) bool {
	return b.ReadBank()&(1<<pin) != 0
}

func (b *SimWireBank) ReadBank() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var bank uint32
	for pin := range b.driven {
		if pin >= 0 && pin < 32 {
			bank |= 1 << pin
		}
		for _, other := range b.links[pin] {
			if other >= 0 && other < 32 {
				bank |= 1 << other
			}
		}
	}
	return bank
}
