package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/swarm.tools/internal/flight"
	"github.com/banshee-data/swarm.tools/internal/serialmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyPlaybackConfig_Defaults(t *testing.T) {
	cfg := EmptyPlaybackConfig()
	require.NoError(t, cfg.Validate())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, flight.DefaultParams(), p)

	if got := cfg.GetTakeoffDuration(); got != 1300*time.Millisecond {
		t.Errorf("GetTakeoffDuration() = %s, want 1.3s", got)
	}
	if got := cfg.GetTakeoffSettle(); got != 1800*time.Millisecond {
		t.Errorf("GetTakeoffSettle() = %s, want 1.8s", got)
	}
	assert.Equal(t, []string{"cf1", "cf2", "cf3"}, cfg.GetVehicles(3))
	assert.Equal(t, serialmux.BridgeBaudRate, cfg.GetSerialBaudRate())
}

func TestLoadPlaybackConfig(t *testing.T) {
	path := writeConfig(t, "playback.json", `{
  "mode": "full_state",
  "controller": 1,
  "reset_estimator": false,
  "takeoff_height": 0.5,
  "approach_duration": "3s",
  "frame_interval": "50ms",
  "end_margin_frames": 0,
  "land_settle": "1s",
  "vehicles": ["cf7", "cf9"],
  "serial": {"baud_rate": 57600}
}`)

	cfg, err := LoadPlaybackConfig(path)
	require.NoError(t, err)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, flight.ModeFullState, p.Mode)
	assert.Equal(t, 1.0, p.Controller)
	assert.False(t, p.ResetEstimator)
	assert.Equal(t, 0.5, p.TakeoffHeight)
	// derived from the configured height
	assert.Equal(t, 1500*time.Millisecond, p.TakeoffDuration)
	assert.Equal(t, 2*time.Second, p.TakeoffSettle)
	assert.Equal(t, 3*time.Second, p.ApproachDuration)
	assert.Equal(t, 2*time.Second, p.ApproachSettle)
	assert.Equal(t, 50*time.Millisecond, p.FrameInterval)
	assert.Equal(t, 0, p.EndMarginFrames)
	assert.Equal(t, time.Second, p.LandSettle)

	assert.Equal(t, []string{"cf7", "cf9"}, cfg.GetVehicles(5))
	assert.Equal(t, 57600, cfg.GetSerialBaudRate())
}

func TestLoadPlaybackConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown mode", `{"mode": "cmdVelocity"}`, "unknown command mode"},
		{"bad duration", `{"land_duration": "four seconds"}`, "land_duration"},
		{"negative duration", `{"approach_settle": "-1s"}`, "non-negative"},
		{"zero frame interval", `{"frame_interval": "0s"}`, "frame_interval"},
		{"negative margin", `{"end_margin_frames": -3}`, "end_margin_frames"},
		{"zero takeoff height", `{"takeoff_height": 0}`, "takeoff_height"},
		{"negative land height", `{"land_height": -0.1}`, "land_height"},
		{"duplicate vehicle", `{"vehicles": ["cf1", "cf1"]}`, "duplicate"},
		{"empty vehicle", `{"vehicles": [""]}`, "empty"},
		{"zero baud rate", `{"serial": {"baud_rate": 0}}`, "serial.baud_rate"},
		{"negative baud rate", `{"serial": {"baud_rate": -9600}}`, "serial.baud_rate"},
		{"malformed json", `{"mode":`, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlaybackConfig(writeConfig(t, "playback.json", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPlaybackConfig_FileChecks(t *testing.T) {
	_, err := LoadPlaybackConfig(writeConfig(t, "playback.yaml", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json")

	_, err = LoadPlaybackConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	big := `{"vehicles": ["` + strings.Repeat("x", 1024*1024) + `"]}`
	_, err = LoadPlaybackConfig(writeConfig(t, "big.json", big))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
