package pnp

import (
	"sync"
	"time"
)

// Gamepad is the operator input device, polled fresh every tick.
type Gamepad interface {
	LeftX() float64       // [-1, 1]
	LeftTrigger() float64 // [0, 1]
}

// DefaultHold is how long a key press keeps the stick deflected. Terminals
// report key repeats, not key releases.
const DefaultHold = 150 * time.Millisecond

// Keyboard maps terminal keys onto a Gamepad. Arrow keys (or h/l) deflect
// the stick, digits set the trigger to n/9, space releases everything.
type Keyboard struct {
	mu      sync.Mutex
	x       float64
	xAt     time.Time
	trigger float64
	hold    time.Duration
	now     func() time.Time
}

// NewKeyboard creates a keyboard gamepad.
func NewKeyboard() *Keyboard {
	return &Keyboard{hold: DefaultHold, now: time.Now}
}

// Press handles a key name as reported by bubbletea and reports whether
// the key was used.
func (k *Keyboard) Press(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch key {
	case "left", "h":
		k.x, k.xAt = -1, k.now()
	case "right", "l":
		k.x, k.xAt = 1, k.now()
	case " ", "space":
		k.x, k.trigger = 0, 0
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			k.trigger = float64(key[0]-'0') / 9
			return true
		}
		return false
	}
	return true
}

// LeftX implements Gamepad.
func (k *Keyboard) LeftX() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.x != 0 && k.now().Sub(k.xAt) > k.hold {
		k.x = 0
	}
	return k.x
}

// LeftTrigger implements Gamepad.
func (k *Keyboard) LeftTrigger() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.trigger
}
