package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/pnp"
	"github.com/gwillem/pickplace/pkg/robot"
)

type GoToCommand struct {
	Elevator  float64       `long:"elevator" required:"true" description:"Elevator height in meters"`
	Elbow     float64       `long:"elbow" required:"true" description:"Elbow angle in radians"`
	Wrist     float64       `long:"wrist" required:"true" description:"Wrist angle in radians"`
	Intake    float64       `long:"intake" description:"Intake effort in volts while moving"`
	Hz        int           `long:"hz" default:"50" description:"Control loop frequency"`
	Timeout   time.Duration `long:"timeout" default:"10s" description:"Give up after this long"`
	Telemetry string        `long:"telemetry" description:"Serve telemetry on this address, e.g. :8080"`
}

// progressEvery is how often a one-shot run logs its errors.
const progressEvery = 500 * time.Millisecond

func (c *GoToCommand) Execute(args []string) error {
	// Joint tuning is per tick, so it follows the loop rate.
	consts := robot.DefaultConstants().WithPeriod(pnp.Period(c.Hz))
	arm, err := openArm(consts)
	if err != nil {
		return err
	}
	defer arm.Close()

	sink, stopTelemetry, err := telemetrySink(c.Telemetry)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	targets := pnp.Fixed{Elevator: c.Elevator, Elbow: c.Elbow, Wrist: c.Wrist, Intake: c.Intake}
	sub := robot.NewSubsystem(arm)
	orch := pnp.NewGoTo(sub, targets, sink, consts)
	runner := pnp.NewRunner(arm, c.Hz)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	go logProgress(ctx, runner)

	start := time.Now()
	err = runner.Run(ctx, orch)
	out := orch.Output()
	switch {
	case err == nil:
		log.Info("at goal", "run", orch.RunID(), "ticks", out.Tick, "elapsed", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Reached elevator=%.3f elbow=%.3f wrist=%.3f in %d ticks\n",
			out.Elevator.Goal, out.Elbow.Goal, out.Wrist.Goal, out.Tick)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("not at goal after %s (errors %+.4f/%+.4f/%+.4f)", c.Timeout,
			out.Elevator.PositionError, out.Elbow.PositionError, out.Wrist.PositionError)
	default:
		return err
	}
}

// logProgress drains runner output and logs the latest state periodically.
func logProgress(ctx context.Context, r *pnp.Runner) {
	ticker := time.NewTicker(progressEvery)
	defer ticker.Stop()

	var last pnp.State
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-r.States():
			last = s
		case <-r.Logs():
			// already written to the structured log
		case <-ticker.C:
			out := last.Output
			log.Info("moving",
				"tick", out.Tick,
				"elevator_err", out.Elevator.PositionError,
				"elbow_err", out.Elbow.PositionError,
				"wrist_err", out.Wrist.PositionError,
				"error", last.Error,
			)
		}
	}
}
