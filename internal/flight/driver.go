// Package flight drives the playback choreography of a fleet: configure,
// take off, move to the first trajectory sample, stream one setpoint per
// vehicle per frame, then land.
//
// The sequence is fixed and open loop. Nothing is read back from the fleet,
// and a run cannot be cancelled once started; the first fleet error aborts
// it and leaves the vehicles where they are.
package flight

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/swarm.tools/internal/monitoring"
	"github.com/banshee-data/swarm.tools/internal/swarm"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/banshee-data/swarm.tools/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrFleetSize is returned when the fleet has more vehicles than the
// trajectory file has blocks.
var ErrFleetSize = errors.New("fleet larger than trajectory set")

// Onboard parameter names written during the configure phase.
const (
	ParamController     = "stabilizer/controller"
	ParamResetEstimator = "kalman/resetEstimation"
)

// Params are the named constants of the choreography.
type Params struct {
	Mode Mode

	Controller     float64
	ResetEstimator bool

	TakeoffHeight   float64
	TakeoffDuration time.Duration
	TakeoffSettle   time.Duration

	ApproachHeight   float64
	ApproachDuration time.Duration
	ApproachSettle   time.Duration
	StartSettle      time.Duration

	FrameInterval   time.Duration
	EndMarginFrames int

	SetpointStopValidity time.Duration
	LandHeight           float64
	LandDuration         time.Duration
	LandSettle           time.Duration
}

// DefaultParams returns the values the choreography was tuned with.
func DefaultParams() Params {
	return Params{
		Mode:                 ModePosition,
		Controller:           2,
		ResetEstimator:       true,
		TakeoffHeight:        0.3,
		TakeoffDuration:      1300 * time.Millisecond,
		TakeoffSettle:        1800 * time.Millisecond,
		ApproachHeight:       0.4,
		ApproachDuration:     2 * time.Second,
		ApproachSettle:       2 * time.Second,
		StartSettle:          2 * time.Second,
		FrameInterval:        100 * time.Millisecond,
		EndMarginFrames:      20,
		SetpointStopValidity: 100 * time.Millisecond,
		LandHeight:           0.02,
		LandDuration:         4 * time.Second,
		LandSettle:           2 * time.Second,
	}
}

// Driver flies one trajectory set with one fleet. Vehicle i of the fleet
// follows trajectory block i.
type Driver struct {
	fleet    swarm.Fleet
	clock    timeutil.Clock
	params   Params
	vehicles []swarm.Vehicle
	traj     []trajectory.Vehicle
	samples  int
	frames   int
}

// NewDriver checks the parameters and pairs fleet vehicles with trajectory
// blocks. No command is sent.
func NewDriver(fleet swarm.Fleet, clock timeutil.Clock, traj []trajectory.Vehicle, p Params) (*Driver, error) {
	if !p.Mode.valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, p.Mode)
	}
	if p.EndMarginFrames < 0 {
		return nil, fmt.Errorf("end margin must be non-negative, got %d", p.EndMarginFrames)
	}
	if p.FrameInterval <= 0 {
		return nil, fmt.Errorf("frame interval must be positive, got %s", p.FrameInterval)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	vehicles := fleet.Vehicles()
	if len(vehicles) > len(traj) {
		return nil, fmt.Errorf("%w: %d vehicles, %d trajectories", ErrFleetSize, len(vehicles), len(traj))
	}
	if len(vehicles) < len(traj) {
		monitoring.Warnf("flight: %d trajectories but only %d vehicles; extra trajectories are not flown", len(traj), len(vehicles))
	}
	traj = traj[:len(vehicles)]

	samples := 0
	for i, t := range traj {
		if n := t.Samples(); i == 0 || n < samples {
			samples = n
		}
	}
	frames := samples - p.EndMarginFrames
	if frames < 0 {
		frames = 0
	}

	return &Driver{
		fleet:    fleet,
		clock:    clock,
		params:   p,
		vehicles: vehicles,
		traj:     traj,
		samples:  samples,
		frames:   frames,
	}, nil
}

// Frames returns the number of frames Run will stream.
func (d *Driver) Frames() int {
	return d.frames
}

// Run executes the whole choreography, blocking on the clock between
// phases.
func (d *Driver) Run() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"configure", d.configure},
		{"takeoff", d.takeoff},
		{"approach", d.approach},
		{"playback", d.play},
		{"land", d.land},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (d *Driver) configure() error {
	monitoring.Logf("flight: configuring %d vehicles (controller=%g)", len(d.vehicles), d.params.Controller)
	if err := d.fleet.SetParam(ParamController, d.params.Controller); err != nil {
		return err
	}
	if d.params.ResetEstimator {
		if err := d.fleet.SetParam(ParamResetEstimator, 1); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) takeoff() error {
	monitoring.Logf("flight: takeoff to %.2fm over %s", d.params.TakeoffHeight, d.params.TakeoffDuration)
	if err := d.fleet.Takeoff(d.params.TakeoffHeight, d.params.TakeoffDuration); err != nil {
		return err
	}
	d.clock.Sleep(d.params.TakeoffSettle)
	return nil
}

func (d *Driver) approach() error {
	if d.samples == 0 {
		return nil
	}
	for i, v := range d.vehicles {
		p0, _, _ := d.traj[i].At(0)
		above := r3.Vec{X: p0.X, Y: p0.Y, Z: d.params.ApproachHeight}
		monitoring.Logf("flight: %s approaching start (%.2f, %.2f, %.2f)", v.ID(), p0.X, p0.Y, p0.Z)
		if err := v.GoTo(above, 0, d.params.ApproachDuration); err != nil {
			return fmt.Errorf("%s: %w", v.ID(), err)
		}
		d.clock.Sleep(d.params.ApproachSettle)
		if err := v.GoTo(p0, 0, d.params.ApproachDuration); err != nil {
			return fmt.Errorf("%s: %w", v.ID(), err)
		}
	}
	d.clock.Sleep(d.params.StartSettle)
	return nil
}

func (d *Driver) play() error {
	monitoring.Logf("flight: streaming %d frames in %s mode", d.frames, d.params.Mode)
	start := d.clock.Now()
	for k := 0; k < d.frames; k++ {
		for i, v := range d.vehicles {
			if err := d.dispatch(v, d.traj[i], k); err != nil {
				return fmt.Errorf("frame %d, %s: %w", k, v.ID(), err)
			}
		}
		d.clock.Sleep(d.params.FrameInterval)
	}
	monitoring.Logf("flight: playback finished after %s", d.clock.Since(start))
	return nil
}

// dispatch sends frame k of t to v. Yaw is held at zero and the angular
// rate is not derived from the trajectory.
func (d *Driver) dispatch(v swarm.Vehicle, t trajectory.Vehicle, k int) error {
	pos, vel, acc := t.At(k)
	switch d.params.Mode {
	case ModeFullState:
		return v.CmdFullState(pos, vel, acc, 0, r3.Vec{})
	default:
		return v.CmdPosition(pos, 0)
	}
}

func (d *Driver) land() error {
	monitoring.Logf("flight: landing to %.2fm over %s", d.params.LandHeight, d.params.LandDuration)
	for _, v := range d.vehicles {
		if err := v.NotifySetpointsStop(d.params.SetpointStopValidity); err != nil {
			return fmt.Errorf("%s: %w", v.ID(), err)
		}
		if err := v.Land(d.params.LandHeight, d.params.LandDuration); err != nil {
			return fmt.Errorf("%s: %w", v.ID(), err)
		}
	}
	d.clock.Sleep(d.params.LandSettle)
	return nil
}
