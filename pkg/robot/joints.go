// Package robot provides the pick-and-place mechanism: joint names, the
// compiled-in tuning table, calibration and the servo hardware boundary.
package robot

// JointName identifies an axis of the mechanism.
type JointName string

// Joint names of the pick-and-place mechanism.
const (
	Elevator JointName = "elevator"
	Elbow    JointName = "elbow"
	Wrist    JointName = "wrist"
	Intake   JointName = "intake"
)

// AllJoints returns all joints in command order (matching servo IDs 1-4).
func AllJoints() []JointName {
	return []JointName{
		Elevator,
		Elbow,
		Wrist,
		Intake,
	}
}

// ControlledJoints returns the joints under profiled feedback control.
// The intake is a pass-through actuator.
func ControlledJoints() []JointName {
	return []JointName{
		Elevator,
		Elbow,
		Wrist,
	}
}
