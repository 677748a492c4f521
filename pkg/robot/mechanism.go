package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned when another owner already drives the mechanism.
var ErrBusy = errors.New("mechanism already owned")

// Sensor reports the current position of a joint in joint units.
type Sensor interface {
	Position(joint JointName) float64
}

// Actuator accepts a voltage or effort command for a joint.
type Actuator interface {
	SetCommand(joint JointName, value float64)
}

// Mechanism is the sensor and actuator side of the hardware.
type Mechanism interface {
	Sensor
	Actuator
}

// Syncer is implemented by mechanisms that buffer I/O. Refresh pulls fresh
// sensor readings and Flush pushes buffered commands to the hardware.
type Syncer interface {
	Refresh(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Subsystem grants exclusive write access to a mechanism.
type Subsystem struct {
	mech Mechanism

	mu    sync.Mutex
	owner string
	lease *Lease
}

// NewSubsystem wraps a mechanism.
func NewSubsystem(mech Mechanism) *Subsystem {
	return &Subsystem{mech: mech}
}

// Mechanism returns the wrapped mechanism.
func (s *Subsystem) Mechanism() Mechanism {
	return s.mech
}

// Position reads a joint position. Reads need no ownership.
func (s *Subsystem) Position(joint JointName) float64 {
	return s.mech.Position(joint)
}

// Owner returns the current owner, or "" when free.
func (s *Subsystem) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Acquire claims the actuators for owner until the lease is released.
func (s *Subsystem) Acquire(owner string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lease != nil {
		return nil, fmt.Errorf("%w by %s", ErrBusy, s.owner)
	}
	s.owner = owner
	s.lease = &Lease{sub: s}
	return s.lease, nil
}

func (s *Subsystem) write(l *Lease, joint JointName, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease != l {
		return
	}
	s.mech.SetCommand(joint, value)
}

func (s *Subsystem) release(l *Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease == l {
		s.lease = nil
		s.owner = ""
	}
}

// Lease is an exclusive claim on a subsystem's actuators.
type Lease struct {
	sub *Subsystem
}

// SetCommand writes a command. Writes through a released lease are dropped.
func (l *Lease) SetCommand(joint JointName, value float64) {
	l.sub.write(l, joint, value)
}

// Release gives up ownership. Releasing twice is harmless.
func (l *Lease) Release() {
	l.sub.release(l)
}
