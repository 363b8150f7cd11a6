package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/swarm.tools/internal/flight"
	"github.com/banshee-data/swarm.tools/internal/serialmux"
)

// PlaybackConfig is the JSON configuration of the trajectory player. Every
// field is optional; the Get* accessors fall back to the defaults the flight
// choreography was tuned with, so an empty file is a valid config.
type PlaybackConfig struct {
	// Command mode: "cmdPosition" or "cmdFullState"
	Mode *string `json:"mode,omitempty"`

	// Onboard parameters written before takeoff
	Controller     *float64 `json:"controller,omitempty"`
	ResetEstimator *bool    `json:"reset_estimator,omitempty"`

	// Takeoff
	TakeoffHeight   *float64 `json:"takeoff_height,omitempty"`
	TakeoffDuration *string  `json:"takeoff_duration,omitempty"` // duration string like "1.3s"
	TakeoffSettle   *string  `json:"takeoff_settle,omitempty"`

	// Move to the first trajectory sample
	ApproachHeight   *float64 `json:"approach_height,omitempty"`
	ApproachDuration *string  `json:"approach_duration,omitempty"`
	ApproachSettle   *string  `json:"approach_settle,omitempty"`
	StartSettle      *string  `json:"start_settle,omitempty"`

	// Playback
	FrameInterval   *string `json:"frame_interval,omitempty"`
	EndMarginFrames *int    `json:"end_margin_frames,omitempty"`

	// Landing
	SetpointStopValidity *string  `json:"setpoint_stop_validity,omitempty"`
	LandHeight           *float64 `json:"land_height,omitempty"`
	LandDuration         *string  `json:"land_duration,omitempty"`
	LandSettle           *string  `json:"land_settle,omitempty"`

	// Serial link fleet
	Vehicles []string      `json:"vehicles,omitempty"`
	Serial   *SerialConfig `json:"serial,omitempty"`
}

// SerialConfig configures the ground-station bridge link. The framing is
// fixed at 8N1; only the line rate varies between bridge builds.
type SerialConfig struct {
	BaudRate *int `json:"baud_rate,omitempty"`
}

// EmptyPlaybackConfig returns a PlaybackConfig with all fields unset.
func EmptyPlaybackConfig() *PlaybackConfig {
	return &PlaybackConfig{}
}

// LoadPlaybackConfig loads a PlaybackConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPlaybackConfig(path string) (*PlaybackConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPlaybackConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. The command mode
// is checked here so that a typo fails before anything is sent to the fleet.
func (c *PlaybackConfig) Validate() error {
	if c.Mode != nil {
		if _, err := flight.ParseMode(*c.Mode); err != nil {
			return err
		}
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"takeoff_duration", c.TakeoffDuration},
		{"takeoff_settle", c.TakeoffSettle},
		{"approach_duration", c.ApproachDuration},
		{"approach_settle", c.ApproachSettle},
		{"start_settle", c.StartSettle},
		{"frame_interval", c.FrameInterval},
		{"setpoint_stop_validity", c.SetpointStopValidity},
		{"land_duration", c.LandDuration},
		{"land_settle", c.LandSettle},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		if d, _ := time.ParseDuration(*c.FrameInterval); d == 0 {
			return fmt.Errorf("frame_interval must be positive")
		}
	}
	if c.EndMarginFrames != nil && *c.EndMarginFrames < 0 {
		return fmt.Errorf("end_margin_frames must be non-negative, got %d", *c.EndMarginFrames)
	}
	if c.TakeoffHeight != nil && *c.TakeoffHeight <= 0 {
		return fmt.Errorf("takeoff_height must be positive, got %f", *c.TakeoffHeight)
	}
	if c.LandHeight != nil && *c.LandHeight < 0 {
		return fmt.Errorf("land_height must be non-negative, got %f", *c.LandHeight)
	}
	seen := make(map[string]bool, len(c.Vehicles))
	for _, id := range c.Vehicles {
		if id == "" {
			return fmt.Errorf("vehicles must not contain empty ids")
		}
		if seen[id] {
			return fmt.Errorf("duplicate vehicle id %q", id)
		}
		seen[id] = true
	}
	if c.Serial != nil && c.Serial.BaudRate != nil && *c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", *c.Serial.BaudRate)
	}
	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// GetMode returns the command mode string or the default.
func (c *PlaybackConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return "cmdPosition"
	}
	return *c.Mode
}

// GetController returns the stabilizer/controller value or the default.
func (c *PlaybackConfig) GetController() float64 {
	if c.Controller == nil {
		return 2 // Mellinger
	}
	return *c.Controller
}

// GetResetEstimator returns the reset_estimator value or the default.
func (c *PlaybackConfig) GetResetEstimator() bool {
	if c.ResetEstimator == nil {
		return true
	}
	return *c.ResetEstimator
}

// GetTakeoffHeight returns the takeoff_height value or the default.
func (c *PlaybackConfig) GetTakeoffHeight() float64 {
	if c.TakeoffHeight == nil {
		return 0.3
	}
	return *c.TakeoffHeight
}

// GetTakeoffDuration defaults to one second plus a second per metre of climb.
func (c *PlaybackConfig) GetTakeoffDuration() time.Duration {
	return parseDurationOr(c.TakeoffDuration, seconds(1.0+c.GetTakeoffHeight()))
}

// GetTakeoffSettle defaults to the takeoff duration plus half a second.
func (c *PlaybackConfig) GetTakeoffSettle() time.Duration {
	return parseDurationOr(c.TakeoffSettle, seconds(1.5+c.GetTakeoffHeight()))
}

// GetApproachHeight returns the approach_height value or the default.
func (c *PlaybackConfig) GetApproachHeight() float64 {
	if c.ApproachHeight == nil {
		return 0.4
	}
	return *c.ApproachHeight
}

// GetApproachDuration returns the approach_duration value or the default.
func (c *PlaybackConfig) GetApproachDuration() time.Duration {
	return parseDurationOr(c.ApproachDuration, 2*time.Second)
}

// GetApproachSettle returns the approach_settle value or the default.
func (c *PlaybackConfig) GetApproachSettle() time.Duration {
	return parseDurationOr(c.ApproachSettle, 2*time.Second)
}

// GetStartSettle returns the start_settle value or the default.
func (c *PlaybackConfig) GetStartSettle() time.Duration {
	return parseDurationOr(c.StartSettle, 2*time.Second)
}

// GetFrameInterval returns the frame_interval value or the default.
func (c *PlaybackConfig) GetFrameInterval() time.Duration {
	return parseDurationOr(c.FrameInterval, 100*time.Millisecond)
}

// GetEndMarginFrames returns the end_margin_frames value or the default.
func (c *PlaybackConfig) GetEndMarginFrames() int {
	if c.EndMarginFrames == nil {
		return 20
	}
	return *c.EndMarginFrames
}

// GetSetpointStopValidity returns the setpoint_stop_validity value or the default.
func (c *PlaybackConfig) GetSetpointStopValidity() time.Duration {
	return parseDurationOr(c.SetpointStopValidity, 100*time.Millisecond)
}

// GetLandHeight returns the land_height value or the default.
func (c *PlaybackConfig) GetLandHeight() float64 {
	if c.LandHeight == nil {
		return 0.02
	}
	return *c.LandHeight
}

// GetLandDuration returns the land_duration value or the default.
func (c *PlaybackConfig) GetLandDuration() time.Duration {
	return parseDurationOr(c.LandDuration, 4*time.Second)
}

// GetLandSettle returns the land_settle value or the default.
func (c *PlaybackConfig) GetLandSettle() time.Duration {
	return parseDurationOr(c.LandSettle, 2*time.Second)
}

// GetVehicles returns the configured vehicle ids, or cf1..cfN when unset.
func (c *PlaybackConfig) GetVehicles(n int) []string {
	if len(c.Vehicles) > 0 {
		return append([]string(nil), c.Vehicles...)
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("cf%d", i+1)
	}
	return ids
}

// GetSerialBaudRate returns the bridge line rate.
func (c *PlaybackConfig) GetSerialBaudRate() int {
	if c.Serial == nil || c.Serial.BaudRate == nil {
		return serialmux.BridgeBaudRate
	}
	return *c.Serial.BaudRate
}

// Params resolves the configuration into the choreography parameters.
func (c *PlaybackConfig) Params() (flight.Params, error) {
	mode, err := flight.ParseMode(c.GetMode())
	if err != nil {
		return flight.Params{}, err
	}
	return flight.Params{
		Mode:                 mode,
		Controller:           c.GetController(),
		ResetEstimator:       c.GetResetEstimator(),
		TakeoffHeight:        c.GetTakeoffHeight(),
		TakeoffDuration:      c.GetTakeoffDuration(),
		TakeoffSettle:        c.GetTakeoffSettle(),
		ApproachHeight:       c.GetApproachHeight(),
		ApproachDuration:     c.GetApproachDuration(),
		ApproachSettle:       c.GetApproachSettle(),
		StartSettle:          c.GetStartSettle(),
		FrameInterval:        c.GetFrameInterval(),
		EndMarginFrames:      c.GetEndMarginFrames(),
		SetpointStopValidity: c.GetSetpointStopValidity(),
		LandHeight:           c.GetLandHeight(),
		LandDuration:         c.GetLandDuration(),
		LandSettle:           c.GetLandSettle(),
	}, nil
}
