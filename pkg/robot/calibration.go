package robot

// MotorCalibration holds calibration data for a single servo.
type MotorCalibration struct {
	ID        int `json:"id"`
	DriveMode int `json:"drive_mode"` // 1 inverts the direction
	RangeMin  int `json:"range_min"`
	RangeMax  int `json:"range_max"`
}

// Calibration holds calibration data for all servos, keyed by joint name.
type Calibration map[JointName]MotorCalibration

// ToUnits converts a raw servo position to joint units, mapping
// [RangeMin, RangeMax] onto [lo, hi].
func (c MotorCalibration) ToUnits(raw int, lo, hi float64) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return lo
	}
	frac := float64(raw-c.RangeMin) / rangeSize
	if c.DriveMode == 1 {
		frac = 1 - frac
	}
	return lo + frac*(hi-lo)
}

// MotorIDs returns the servo IDs for all joints in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllJoints() to ensure consistent ordering
	for _, name := range AllJoints() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns joint name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (JointName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
