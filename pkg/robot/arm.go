package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/multierr"
)

// Arm is the pick-and-place mechanism driven over a feetech servo bus.
// Positions are buffered by Refresh and commands by SetCommand until Flush.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
	constants   Constants

	mu        sync.Mutex
	raw       map[JointName]int
	positions map[JointName]float64
	commands  map[JointName]float64
}

// NewArm creates and initializes an arm connection.
func NewArm(port string, cal Calibration, consts Constants) (*Arm, error) {
	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	// Create servo group from calibration IDs
	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
		constants:   consts,
		raw:         make(map[JointName]int, len(cal)),
		positions:   make(map[JointName]float64, len(cal)),
		commands:    make(map[JointName]float64, len(cal)),
	}, nil
}

// Close disables torque and closes the bus connection.
func (a *Arm) Close() error {
	err := a.group.DisableAll(context.Background())
	return multierr.Append(err, a.bus.Close())
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// limits returns the joint-unit range a servo's calibrated range maps onto.
func (a *Arm) limits(joint JointName) (lo, hi float64) {
	if cfg, ok := a.constants.Joint(joint); ok {
		return cfg.Min, cfg.Max
	}
	return 0, 1
}

// Refresh reads current positions from all servos using a sync read.
func (a *Arm) Refresh(ctx context.Context) error {
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		lo, hi := a.limits(name)
		a.raw[name] = raw
		a.positions[name] = cal.ToUnits(raw, lo, hi)
	}
	return nil
}

// Position returns the last refreshed position of a joint.
func (a *Arm) Position(joint JointName) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[joint]
}

// SetCommand buffers an effort command for the next Flush.
func (a *Arm) SetCommand(joint JointName, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands[joint] = value
}

// Flush turns each buffered effort into a bounded position step and writes
// the new goals with a sync write.
func (a *Arm) Flush(ctx context.Context) error {
	a.mu.Lock()
	goals := make(feetech.PositionMap, len(a.commands))
	for name, effort := range a.commands {
		cal, ok := a.calibration[name]
		if !ok {
			continue
		}
		raw, ok := a.raw[name]
		if !ok {
			continue
		}
		goals[cal.ID] = effortStep(cal, raw, effort, a.constants.NominalVoltage, a.constants.MaxStep)
	}
	a.mu.Unlock()

	if len(goals) == 0 {
		return nil
	}
	if err := a.group.SetPositions(ctx, goals); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// effortStep maps an effort in volts onto a raw goal position at most maxStep
// counts away from raw, kept inside the calibrated range.
func effortStep(cal MotorCalibration, raw int, effort, nominal float64, maxStep int) int {
	frac := effort / nominal
	if frac > 1 {
		frac = 1
	} else if frac < -1 {
		frac = -1
	}
	step := int(frac * float64(maxStep))
	if cal.DriveMode == 1 {
		step = -step
	}

	goal := raw + step
	if cal.RangeMax > cal.RangeMin {
		if goal < cal.RangeMin {
			goal = cal.RangeMin
		}
		if goal > cal.RangeMax {
			goal = cal.RangeMax
		}
	}
	return goal
}
