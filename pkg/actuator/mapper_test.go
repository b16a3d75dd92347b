package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapperAngle(t *testing.T) {
	// 640 px frame, 60 degree FOV, 15 degree mechanical range.
	m := NewMapper(640, 60, 15)

	tests := []struct {
		name string
		x    int
		want float64
	}{
		{"center", 320, 0},
		{"quarter left", 160, -15}, // -15 raw, at the clamp exactly
		{"slightly left", 280, -3.75},
		{"slightly right", 360, 3.75},
		{"left edge clamped", 0, -15},
		{"right edge clamped", 639, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.Angle(tt.x), 0.01)
		})
	}
}

func TestMapperClamp(t *testing.T) {
	m := NewMapper(640, 60, 15)

	assert.Equal(t, 15.0, m.Clamp(22))
	assert.Equal(t, -15.0, m.Clamp(-90))
	assert.Equal(t, 7.5, m.Clamp(7.5))
}
