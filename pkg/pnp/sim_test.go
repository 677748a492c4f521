package pnp

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/gwillem/pickplace/pkg/motion"
	"github.com/gwillem/pickplace/pkg/robot"
)

const tolerance = 1e-9

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// simMechanism is a first-order plant per joint: on every Flush each joint
// moves by gain*(command - load(position)) for one control period.
type simMechanism struct {
	mu        sync.Mutex
	positions map[robot.JointName]float64
	commands  map[robot.JointName]float64
	gain      map[robot.JointName]float64
	load      map[robot.JointName]func(float64) float64
	dt        float64 // plant time per step, seconds

	refreshErr error
	flushErr   error
	refreshes  int
	flushes    int
	enabled    bool
}

func newSim() *simMechanism {
	s := &simMechanism{
		positions: make(map[robot.JointName]float64),
		commands:  make(map[robot.JointName]float64),
		gain:      make(map[robot.JointName]float64),
		load:      make(map[robot.JointName]func(float64) float64),
		dt:        motion.DefaultPeriod,
	}
	for _, name := range robot.AllJoints() {
		s.gain[name] = 1
	}
	return s
}

func (s *simMechanism) Position(joint robot.JointName) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[joint]
}

func (s *simMechanism) SetCommand(joint robot.JointName, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[joint] = value
}

func (s *simMechanism) command(joint robot.JointName) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[joint]
}

func (s *simMechanism) set(joint robot.JointName, pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[joint] = pos
}

// step advances the plant by one control period.
func (s *simMechanism) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range robot.ControlledJoints() {
		effort := s.commands[name]
		if load := s.load[name]; load != nil {
			effort -= load(s.positions[name])
		}
		s.positions[name] += s.gain[name] * effort * s.dt
	}
}

func (s *simMechanism) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return s.refreshErr
}

func (s *simMechanism) Flush(context.Context) error {
	s.mu.Lock()
	s.flushes++
	err := s.flushErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.step()
	return nil
}

func (s *simMechanism) Enable(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	return nil
}

func (s *simMechanism) Disable(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	return nil
}

func (s *simMechanism) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *simMechanism) counts() (refreshes, flushes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes, s.flushes
}

var errBus = errors.New("bus timeout")

// testConstants is a stiff, feedforward-free tuning for the sim plant.
func testConstants() robot.Constants {
	joint := func(lo, hi float64) motion.JointConfig {
		return motion.JointConfig{
			P:                 20,
			MaxVelocity:       2,
			MaxAcceleration:   4,
			Min:               lo,
			Max:               hi,
			PositionTolerance: 0.01,
			VelocityTolerance: 0.05,
		}
	}
	return robot.Constants{
		Elevator:       joint(0, 1.2),
		Elbow:          joint(-math.Pi/2, math.Pi/2),
		Wrist:          joint(0, math.Pi),
		NominalVoltage: 12,
		MaxStep:        40,
	}
}

// stick is a Gamepad with fixed readings.
type stick struct {
	x, trigger float64
}

func (s *stick) LeftX() float64       { return s.x }
func (s *stick) LeftTrigger() float64 { return s.trigger }

// tickSim ticks o and steps the plant n times, returning every output.
func tickSim(o *Orchestrator, sim *simMechanism, n int) []Output {
	outs := make([]Output, 0, n)
	for i := 0; i < n; i++ {
		outs = append(outs, o.Tick())
		sim.step()
	}
	return outs
}
