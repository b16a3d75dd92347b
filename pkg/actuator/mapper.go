package actuator

// Mapper converts a pixel x-coordinate into a servo angle using the
// calibrated linear relationship between the camera's horizontal field
// of view and the mechanical sweep range. The camera and the laser
// mount share an optical axis, so a centroid in the middle of the frame
// is zero degrees.
type Mapper struct {
	frameWidth int
	fovDeg     float64
	rangeDeg   float64
}

// NewMapper builds a mapper for the given frame width, horizontal FOV
// and mechanical range (degrees from center).
func NewMapper(frameWidth int, fovDeg, rangeDeg float64) Mapper {
	return Mapper{frameWidth: frameWidth, fovDeg: fovDeg, rangeDeg: rangeDeg}
}

// Angle maps a pixel x to degrees from center, clamped to the
// mechanical range. Targets outside the sweep get the nearest
// reachable angle rather than an error: a clamped shot at the frame
// edge is still close enough for a 10-degree sweep to cover.
func (m Mapper) Angle(x int) float64 {
	frac := float64(x)/float64(m.frameWidth) - 0.5
	deg := frac * m.fovDeg
	return m.Clamp(deg)
}

// Clamp bounds an angle to the mechanical range.
func (m Mapper) Clamp(deg float64) float64 {
	if deg > m.rangeDeg {
		return m.rangeDeg
	}
	if deg < -m.rangeDeg {
		return -m.rangeDeg
	}
	return deg
}
