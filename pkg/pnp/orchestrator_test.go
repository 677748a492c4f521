package pnp

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gwillem/pickplace/pkg/robot"
	"github.com/gwillem/pickplace/pkg/telemetry"
)

func TestOrchestrator_ElevatorRamp(t *testing.T) {
	sim := newSim()
	sim.set(robot.Elevator, StartHeight)
	sub := robot.NewSubsystem(sim)
	pad := &stick{x: 1}

	o := NewOperatorControl(sub, pad, nil, testConstants())
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	outs := tickSim(o, sim, 25)
	for i, out := range outs {
		n := float64(i + 1)
		want := StartHeight + n*HeightPerTick
		if !near(out.Elevator.Target, want, tolerance) {
			t.Errorf("tick %d: target = %v, want %v", i+1, out.Elevator.Target, want)
		}
		if goal := math.Min(want, 1.2); !near(out.Elevator.Goal, goal, tolerance) {
			t.Errorf("tick %d: goal = %v, want %v", i+1, out.Elevator.Goal, goal)
		}
	}

	if got := outs[16].Elevator.Goal; !near(got, 1.18, tolerance) {
		t.Errorf("tick 17 goal = %v, want 1.18", got)
	}
	if got := outs[17].Elevator.Goal; got != 1.2 {
		t.Errorf("tick 18 goal = %v, want saturated at 1.2", got)
	}
	if got := outs[24].Elevator.Target; !near(got, 1.5, tolerance) {
		t.Errorf("tick 25 target = %v, want 1.5", got)
	}

	// Release the stick: the integrator holds at 1.5 and the elevator
	// settles at the clamp bound.
	pad.x = 0
	tickSim(o, sim, 300)
	out := o.Output()
	if !near(out.Elevator.Target, 1.5, tolerance) {
		t.Errorf("held target = %v, want 1.5", out.Elevator.Target)
	}
	cfg := testConstants().Elevator
	if pos := sim.Position(robot.Elevator); !near(pos, 1.2, cfg.PositionTolerance) {
		t.Errorf("elevator settled at %v, want 1.2", pos)
	}
	if !out.Elevator.AtGoal {
		t.Error("elevator not at goal after settling")
	}
}

func TestOrchestrator_OperatorHoldsElbowAndWrist(t *testing.T) {
	consts := robot.DefaultConstants()
	sim := newSim()
	sim.set(robot.Elevator, StartHeight)
	sim.set(robot.Wrist, 1.2)
	sim.load[robot.Elbow] = func(pos float64) float64 { return 0.6 * math.Cos(pos) }
	sub := robot.NewSubsystem(sim)

	o := NewOperatorControl(sub, &stick{}, nil, consts)
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	settled := -1
	for i, out := range tickSim(o, sim, 500) {
		if out.Finished || o.IsFinished() {
			t.Fatalf("tick %d: continuous run reported finished", i+1)
		}
		if out.Elbow.Target != 0 || out.Wrist.Target != math.Pi/2 {
			t.Fatalf("tick %d: targets = %v/%v, want 0/pi/2", i+1, out.Elbow.Target, out.Wrist.Target)
		}
		at := out.Elevator.AtGoal && out.Elbow.AtGoal && out.Wrist.AtGoal
		if at && settled < 0 {
			settled = i
		}
		if settled >= 0 && !at {
			t.Fatalf("tick %d: left goal after settling at tick %d", i+1, settled+1)
		}
	}
	if settled < 0 {
		t.Fatal("joints never settled")
	}

	if pos := sim.Position(robot.Elbow); !near(pos, 0, consts.Elbow.PositionTolerance) {
		t.Errorf("elbow at %v, want 0", pos)
	}
	if pos := sim.Position(robot.Wrist); !near(pos, math.Pi/2, consts.Wrist.PositionTolerance) {
		t.Errorf("wrist at %v, want pi/2", pos)
	}
}

func TestOrchestrator_IntakePassThrough(t *testing.T) {
	sim := newSim()
	sub := robot.NewSubsystem(sim)
	pad := &stick{trigger: 0.5}

	o := NewOperatorControl(sub, pad, nil, testConstants())
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	out := o.Tick()
	if out.Intake != 6 {
		t.Errorf("intake = %v, want 6", out.Intake)
	}
	if got := sim.command(robot.Intake); got != 6 {
		t.Errorf("intake command = %v, want 6", got)
	}

	pad.trigger = 0
	o.Tick()
	if got := sim.command(robot.Intake); got != 0 {
		t.Errorf("intake command after release = %v, want 0", got)
	}
}

func TestOrchestrator_OneShotFinishesAtGoal(t *testing.T) {
	sim := newSim()
	sim.set(robot.Elevator, 0.2)
	sim.set(robot.Wrist, 1)
	sub := robot.NewSubsystem(sim)

	target := Fixed{Elevator: 0.9, Elbow: 0.3, Wrist: 2, Intake: 1.5}
	o := NewGoTo(sub, target, nil, testConstants())
	if o.Mode() != OneShot {
		t.Fatalf("Mode() = %v, want one-shot", o.Mode())
	}
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	finished := false
	for i, out := range tickSim(o, sim, 600) {
		all := out.Elevator.AtGoal && out.Elbow.AtGoal && out.Wrist.AtGoal
		if out.Finished != all {
			t.Fatalf("tick %d: Finished = %v but joints at goal = %v", i+1, out.Finished, all)
		}
		if out.Finished {
			finished = true
			break
		}
	}
	if !finished {
		t.Fatal("one-shot run never finished")
	}

	consts := testConstants()
	for _, name := range robot.ControlledJoints() {
		cfg, _ := consts.Joint(name)
		want := map[robot.JointName]float64{
			robot.Elevator: target.Elevator,
			robot.Elbow:    target.Elbow,
			robot.Wrist:    target.Wrist,
		}[name]
		// The plant moved once more after the finishing tick.
		if pos := sim.Position(name); !near(pos, want, 2*cfg.PositionTolerance) {
			t.Errorf("%s at %v, want %v", name, pos, want)
		}
	}
	if got := sim.command(robot.Intake); got != 1.5 {
		t.Errorf("intake command = %v, want 1.5", got)
	}
}

func TestOrchestrator_OneShotStuckJointNeverFinishes(t *testing.T) {
	sim := newSim()
	sim.gain[robot.Wrist] = 0
	sub := robot.NewSubsystem(sim)

	o := NewGoTo(sub, Fixed{Elevator: 0.4, Wrist: 1}, nil, testConstants())
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	for i, out := range tickSim(o, sim, 600) {
		if out.Finished {
			t.Fatalf("tick %d: finished with the wrist stuck 1 rad away", i+1)
		}
	}
	if !o.Output().Elevator.AtGoal || !o.Output().Elbow.AtGoal {
		t.Error("free joints did not reach goal")
	}
}

func TestOrchestrator_NaNTargetHoldsPosition(t *testing.T) {
	sim := newSim()
	sim.set(robot.Elbow, 0.4)
	sub := robot.NewSubsystem(sim)

	o := NewGoTo(sub, Fixed{Elbow: math.NaN(), Wrist: 0, Elevator: 0}, nil, testConstants())
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	out := o.Tick()
	if out.Elbow.Goal != 0.4 {
		t.Errorf("elbow goal = %v, want measured 0.4", out.Elbow.Goal)
	}
	if math.IsNaN(out.Elbow.Command) {
		t.Error("NaN reached the elbow command")
	}
}

func TestOrchestrator_TelemetryMatchesTick(t *testing.T) {
	sim := newSim()
	sim.set(robot.Elevator, StartHeight)
	sub := robot.NewSubsystem(sim)
	rec := &telemetry.Recorder{}

	o := NewOperatorControl(sub, &stick{x: 0.5, trigger: 1}, rec, testConstants())
	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	order := []string{
		KeyDesiredElevator, KeyDesiredElbow, KeyDesiredWrist, KeyDesiredIntake,
		KeyElevatorPosError, KeyElbowPosError, KeyWristPosError,
		KeyElevatorVelError, KeyElbowVelError, KeyWristVelError,
		KeyElevatorVolts, KeyElbowVolts, KeyWristVolts,
	}

	for tick := 1; tick <= 5; tick++ {
		rec.Reset()
		out := o.Tick()
		sim.step()

		samples := rec.Samples()
		if len(samples) != len(order) {
			t.Fatalf("tick %d: %d samples, want %d", tick, len(samples), len(order))
		}

		want := []float64{
			out.Elevator.Target, out.Elbow.Target, out.Wrist.Target, out.Intake,
			out.Elevator.PositionError, out.Elbow.PositionError, out.Wrist.PositionError,
			out.Elevator.VelocityError, out.Elbow.VelocityError, out.Wrist.VelocityError,
			out.Elevator.Command, out.Elbow.Command, out.Wrist.Command,
		}
		for i, s := range samples {
			if s.Name != TelemetryTable+"/"+order[i] {
				t.Errorf("tick %d sample %d: name %q, want %q", tick, i, s.Name, order[i])
			}
			if s.Value != want[i] {
				t.Errorf("tick %d %s = %v, want %v", tick, s.Name, s.Value, want[i])
			}
			if s.Run != o.RunID() {
				t.Errorf("tick %d %s: run %q, want %q", tick, s.Name, s.Run, o.RunID())
			}
		}
	}

	if v, _ := rec.Last("Arm/" + KeyDesiredIntake); v != IntakeFullScale {
		t.Errorf("DesiredIntake = %v, want %v", v, IntakeFullScale)
	}
	if v, _ := rec.Last("Arm/" + KeyDesiredElevator); !near(v, StartHeight+5*0.5*HeightPerTick, tolerance) {
		t.Errorf("DesiredElevator = %v: target read more than once per tick", v)
	}
}

func TestOrchestrator_DeactivateZeroesAndReleases(t *testing.T) {
	for _, interrupted := range []bool{false, true} {
		sim := newSim()
		sub := robot.NewSubsystem(sim)

		o := NewGoTo(sub, Fixed{Elevator: 1, Elbow: 1, Wrist: 1, Intake: 3}, nil, testConstants())
		if err := o.Activate(); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		tickSim(o, sim, 10)
		if sim.command(robot.Intake) != 3 {
			t.Fatal("intake not commanded")
		}

		o.Deactivate(interrupted)
		for _, name := range robot.AllJoints() {
			if got := sim.command(name); got != 0 {
				t.Errorf("interrupted=%v: %s command = %v after Deactivate, want 0", interrupted, name, got)
			}
		}
		if sub.Owner() != "" {
			t.Errorf("interrupted=%v: still owned by %q", interrupted, sub.Owner())
		}

		// Ticking an idle orchestrator commands nothing.
		o.Tick()
		if got := sim.command(robot.Intake); got != 0 {
			t.Errorf("idle Tick commanded intake %v", got)
		}
		o.Deactivate(interrupted)
	}
}

func TestOrchestrator_ExclusiveOwnership(t *testing.T) {
	sim := newSim()
	sub := robot.NewSubsystem(sim)

	first := NewGoTo(sub, Fixed{}, nil, testConstants())
	second := NewOperatorControl(sub, &stick{}, nil, testConstants())

	if err := first.Activate(); err != nil {
		t.Fatalf("first Activate: %v", err)
	}
	err := second.Activate()
	if !errors.Is(err, robot.ErrBusy) {
		t.Fatalf("second Activate error = %v, want ErrBusy", err)
	}
	if !strings.Contains(err.Error(), "goto") {
		t.Errorf("error %q does not name the owner", err)
	}
	if second.Active() {
		t.Error("second orchestrator active after failed Activate")
	}

	first.Deactivate(true)
	if err := second.Activate(); err != nil {
		t.Fatalf("Activate after release: %v", err)
	}
	second.Deactivate(true)
}

func TestOrchestrator_RejectsMixedPeriods(t *testing.T) {
	sim := newSim()
	sub := robot.NewSubsystem(sim)
	consts := testConstants()
	consts.Wrist.Period = 0.005

	o := NewGoTo(sub, Fixed{}, nil, consts)
	if err := o.Activate(); err == nil || !strings.Contains(err.Error(), "periods differ") {
		t.Fatalf("Activate error = %v, want periods differ", err)
	}
	if o.Active() || sub.Owner() != "" {
		t.Error("orchestrator took the mechanism despite mixed periods")
	}
}

func TestOrchestrator_ActivateStartsFreshRun(t *testing.T) {
	sim := newSim()
	sub := robot.NewSubsystem(sim)
	o := NewGoTo(sub, Fixed{Elevator: 0.6}, nil, testConstants())

	if err := o.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := o.Activate(); err == nil {
		t.Error("second Activate on an active run succeeded")
	}
	tickSim(o, sim, 20)
	firstRun := o.RunID()
	o.Deactivate(true)

	sim.set(robot.Elevator, 0.1)
	if err := o.Activate(); err != nil {
		t.Fatalf("re-Activate: %v", err)
	}
	if o.RunID() == firstRun {
		t.Error("run ID reused")
	}
	out := o.Tick()
	if out.Tick != 1 {
		t.Errorf("tick counter = %d, want 1", out.Tick)
	}
	// The profile restarts from the measured position, not the old setpoint.
	if out.Elevator.Setpoint > 0.1+0.01 {
		t.Errorf("setpoint %v did not restart from 0.1", out.Elevator.Setpoint)
	}
}

func TestOutput_Joint(t *testing.T) {
	out := Output{
		Elevator: JointOutput{Command: 1},
		Elbow:    JointOutput{Command: 2},
		Wrist:    JointOutput{Command: 3},
	}
	for name, want := range map[robot.JointName]float64{robot.Elevator: 1, robot.Elbow: 2, robot.Wrist: 3, robot.Intake: 0} {
		if got := out.Joint(name).Command; got != want {
			t.Errorf("Joint(%s).Command = %v, want %v", name, got, want)
		}
	}
}
