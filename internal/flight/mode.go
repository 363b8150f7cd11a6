package flight

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned for a command mode string that is neither
// position-only nor full-state.
var ErrUnknownMode = errors.New("unknown command mode")

// Mode selects which setpoint is streamed during playback. It applies to
// every vehicle and every frame.
type Mode int

const (
	// ModePosition streams position-only setpoints.
	ModePosition Mode = iota + 1
	// ModeFullState streams position, velocity and acceleration setpoints.
	ModeFullState
)

func (m Mode) String() string {
	switch m {
	case ModePosition:
		return "cmdPosition"
	case ModeFullState:
		return "cmdFullState"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) valid() bool {
	return m == ModePosition || m == ModeFullState
}

// ParseMode accepts "cmdPosition" / "position" and "cmdFullState" /
// "full_state", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cmdposition", "position":
		return ModePosition, nil
	case "cmdfullstate", "full_state", "fullstate":
		return ModeFullState, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
