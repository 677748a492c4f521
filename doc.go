// Package pickplace controls a three-joint pick-and-place mechanism: an
// elevator, an elbow and a wrist, each driven along a trapezoidal motion
// profile by a PID loop, plus a pass-through intake.
//
// # Installation
//
//	go install github.com/gwillem/pickplace/cmd/pnp@latest
//
// # Usage
//
// First, run setup to find the servo bus and calibrate every joint:
//
//	pnp setup
//
// Then drive the elevator from the keyboard:
//
//	pnp run --telemetry :8080
//
// or move every joint to fixed targets and exit:
//
//	pnp goto --elevator 0.6 --elbow 0 --wrist 1.57
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/pnp: CLI with setup, run and goto commands
//   - pkg/motion: trapezoid profile, PID, feedforward and the joint controller
//   - pkg/robot: joint names, tuning constants, calibration, servo hardware
//   - pkg/pnp: orchestrator, target sources and the control loop runner
//   - pkg/telemetry: telemetry sinks and the HTTP/websocket bus
package pickplace
