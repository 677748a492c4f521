package main

import (
	"errors"
	"fmt"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/robot"
	"github.com/gwillem/pickplace/pkg/telemetry"
)

var errNotConfigured = errors.New("mechanism not configured, run 'pnp setup' first")

// openArm loads pickplace.json and connects to the servo bus.
func openArm(consts robot.Constants) (*robot.Arm, error) {
	if err := consts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid constants: %w", err)
	}

	cfg, err := robot.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotConfigured, err)
	}
	if cfg.Port == "" || !cfg.IsCalibrated() {
		return nil, errNotConfigured
	}
	log.Info("loaded configuration", "file", robot.DefaultConfigFile, "port", cfg.Port)

	arm, err := robot.NewArm(cfg.Port, cfg.Calibration, consts)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Port, err)
	}
	return arm, nil
}

// telemetrySink serves the telemetry bus on addr, or discards samples when
// addr is empty. The returned func stops the server.
func telemetrySink(addr string) (telemetry.Sink, func(), error) {
	if addr == "" {
		return telemetry.Discard, func() {}, nil
	}

	bus := telemetry.NewBus()
	if err := bus.StartAsync(addr); err != nil {
		bus.Shutdown()
		return nil, nil, fmt.Errorf("serve telemetry on %s: %w", addr, err)
	}

	return bus, func() {
		if n := bus.Dropped(); n > 0 {
			log.Warn("telemetry samples dropped", "count", n)
		}
		if err := bus.Shutdown(); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}, nil
}
