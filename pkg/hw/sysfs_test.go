package hw

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysfsLED_BlinkClearsBothLines(t *testing.T) {
	dir := t.TempDir()
	green := filepath.Join(dir, "green")
	red := filepath.Join(dir, "red")
	l := NewSysfsLED(green, red)

	require.NoError(t, l.SetColor(LEDRed))
	raw, err := os.ReadFile(red)
	require.NoError(t, err)
	require.Equal(t, "1", string(raw))

	// Entering the blink from red must not leave the red line high; the
	// blink goroutine only ever touches the green line.
	require.NoError(t, l.SetColor(LEDGreenBlink))
	raw, err = os.ReadFile(red)
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))

	raw, err = os.ReadFile(green)
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))

	require.NoError(t, l.SetColor(LEDOff))
}
