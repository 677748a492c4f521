package pnp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/robot"
)

// DefaultHz is the control frequency matching motion.DefaultPeriod.
const DefaultHz = 50

// ErrPeriodMismatch is returned when a command was tuned for a different
// control period than the runner ticks at.
var ErrPeriodMismatch = errors.New("control period mismatch")

// Period returns the tick period of a loop running at hz. hz <= 0 means
// DefaultHz.
func Period(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultHz
	}
	return time.Second / time.Duration(hz)
}

// Command is a periodic task the Runner drives. Orchestrator implements it.
type Command interface {
	Activate() error
	Tick() Output
	IsFinished() bool
	Deactivate(interrupted bool)
}

// State is the state after one control period.
type State struct {
	Output    Output
	Finished  bool
	Timestamp time.Time
	Error     error
}

// periodic is implemented by commands tuned for a fixed control period.
type periodic interface {
	Period() time.Duration
}

// torquer is implemented by mechanisms whose actuators must be powered.
type torquer interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Runner calls a Command once per control period until it finishes or the
// context is cancelled. Hardware errors are logged and counted, never fatal.
type Runner struct {
	mech robot.Mechanism
	hz   int

	mu      sync.Mutex
	running bool

	stateCh chan State
	logCh   chan string

	readErrors  atomic.Uint64
	writeErrors atomic.Uint64
}

// NewRunner creates a runner for a mechanism. hz <= 0 means DefaultHz.
func NewRunner(mech robot.Mechanism, hz int) *Runner {
	if hz <= 0 {
		hz = DefaultHz
	}
	return &Runner{
		mech:    mech,
		hz:      hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
}

// States returns a channel that receives the newest state update.
func (r *Runner) States() <-chan State {
	return r.stateCh
}

// Logs returns a channel that receives log messages.
func (r *Runner) Logs() <-chan string {
	return r.logCh
}

// Hz returns the control frequency.
func (r *Runner) Hz() int {
	return r.hz
}

// Period returns the tick period.
func (r *Runner) Period() time.Duration {
	return Period(r.hz)
}

// ReadErrors returns how many sensor refreshes failed.
func (r *Runner) ReadErrors() uint64 { return r.readErrors.Load() }

// WriteErrors returns how many command flushes failed.
func (r *Runner) WriteErrors() uint64 { return r.writeErrors.Load() }

func (r *Runner) logf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Debug(text, "component", "runner")

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case r.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (r *Runner) refresh(ctx context.Context) error {
	s, ok := r.mech.(robot.Syncer)
	if !ok {
		return nil
	}
	if err := s.Refresh(ctx); err != nil {
		r.readErrors.Add(1)
		r.logf("Read error: %v", err)
		return err
	}
	return nil
}

func (r *Runner) flush(ctx context.Context) error {
	s, ok := r.mech.(robot.Syncer)
	if !ok {
		return nil
	}
	if err := s.Flush(ctx); err != nil {
		r.writeErrors.Add(1)
		r.logf("Write error: %v", err)
		return err
	}
	return nil
}

// Run activates cmd and ticks it until it finishes, which returns nil, or
// until ctx is cancelled, which returns ctx.Err(). Either way cmd is
// deactivated and the zero commands are flushed before Run returns.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if p, ok := cmd.(periodic); ok {
		if d := p.Period() - r.Period(); d > time.Microsecond || d < -time.Microsecond {
			return fmt.Errorf("%w: command tuned for %v, loop ticks every %v", ErrPeriodMismatch, p.Period(), r.Period())
		}
	}

	// Activation resets controllers from measured positions, so read first.
	_ = r.refresh(ctx)

	t, hasTorque := r.mech.(torquer)
	if hasTorque {
		if err := t.Enable(ctx); err != nil {
			r.logf("Warning: failed to enable torque: %v", err)
		}
	}

	if err := cmd.Activate(); err != nil {
		r.logf("Activation failed: %v", err)
		if hasTorque {
			if derr := t.Disable(context.Background()); derr != nil {
				r.logf("Warning: failed to disable torque: %v", derr)
			}
		}
		return fmt.Errorf("activate: %w", err)
	}
	r.logf("Control loop started at %d Hz", r.hz)

	ticker := time.NewTicker(r.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(cmd, true)
			return ctx.Err()
		case <-ticker.C:
			if r.step(ctx, cmd) {
				r.shutdown(cmd, false)
				return nil
			}
		}
	}
}

// step runs one control period and reports whether cmd finished.
func (r *Runner) step(ctx context.Context, cmd Command) bool {
	readErr := r.refresh(ctx)
	out := cmd.Tick()
	writeErr := r.flush(ctx)

	finished := cmd.IsFinished()
	r.sendState(State{
		Output:    out,
		Finished:  finished,
		Timestamp: time.Now(),
		Error:     errors.Join(readErr, writeErr),
	})
	return finished
}

func (r *Runner) sendState(s State) {
	select {
	case r.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-r.stateCh:
		default:
		}
		select {
		case r.stateCh <- s:
		default:
		}
	}
}

// shutdown puts the mechanism in its safe state. It uses a fresh context
// because ctx may already be cancelled.
func (r *Runner) shutdown(cmd Command, interrupted bool) {
	cmd.Deactivate(interrupted)

	ctx := context.Background()
	_ = r.flush(ctx)

	if interrupted {
		r.logf("Control loop interrupted")
	} else {
		r.logf("Control loop finished")
	}
}
