package swarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// Recorder receives every command a SimFleet accepts together with the
// simulated pose of the commanded vehicle after the command.
type Recorder interface {
	Record(at time.Time, c Command, pose r3.Vec) error
}

// SimFleet is an in-process fleet. Vehicles move instantly to wherever they
// are commanded, which is enough to dry-run a choreography and to produce
// flight logs with known content.
type SimFleet struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	vehicles []Vehicle
	poses    map[string]r3.Vec
	params   map[string]float64
	commands []Command
	recorder Recorder

	// FailOn makes the named op return the given error, for fault tests.
	FailOn map[Op]error
}

// NewSimFleet creates a simulated fleet with the given vehicle ids, all
// resting at the origin.
func NewSimFleet(clock timeutil.Clock, ids ...string) *SimFleet {
	f := &SimFleet{
		clock:  clock,
		poses:  make(map[string]r3.Vec, len(ids)),
		params: make(map[string]float64),
	}
	for _, id := range ids {
		f.poses[id] = r3.Vec{}
	}
	f.vehicles = newVehicles(ids, f)
	return f
}

// SetRecorder attaches a recorder; nil detaches it.
func (f *SimFleet) SetRecorder(r Recorder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorder = r
}

// Place sets the resting position of a vehicle before takeoff.
func (f *SimFleet) Place(id string, p r3.Vec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poses[id] = p
}

func (f *SimFleet) Vehicles() []Vehicle {
	return f.vehicles
}

func (f *SimFleet) SetParam(name string, value float64) error {
	return f.send(Command{Op: OpSetParam, Param: name, Value: value})
}

func (f *SimFleet) Takeoff(height float64, d time.Duration) error {
	return f.send(Command{Op: OpTakeoff, Height: height, Duration: d})
}

// Commands returns a copy of every accepted command in issue order.
func (f *SimFleet) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Param returns the last value written to a parameter.
func (f *SimFleet) Param(name string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.params[name]
	return v, ok
}

// Pose returns the simulated position of a vehicle.
func (f *SimFleet) Pose(id string) (r3.Vec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.poses[id]
	return p, ok
}

func (f *SimFleet) send(c Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.FailOn[c.Op]; err != nil {
		return err
	}
	if c.Vehicle != "" {
		if _, ok := f.poses[c.Vehicle]; !ok {
			return fmt.Errorf("unknown vehicle %q", c.Vehicle)
		}
	}
	f.commands = append(f.commands, c)

	switch c.Op {
	case OpSetParam:
		f.params[c.Param] = c.Value
		return nil
	case OpTakeoff:
		now := f.clock.Now()
		for _, v := range f.vehicles {
			p := f.poses[v.ID()]
			p.Z = c.Height
			f.poses[v.ID()] = p
			if err := f.record(now, Command{Op: OpTakeoff, Vehicle: v.ID(), Height: c.Height, Duration: c.Duration}, p); err != nil {
				return err
			}
		}
		return nil
	case OpGoTo, OpCmdPosition, OpCmdFullState:
		f.poses[c.Vehicle] = c.Pos
	case OpLand:
		p := f.poses[c.Vehicle]
		p.Z = c.Height
		f.poses[c.Vehicle] = p
	}
	return f.record(f.clock.Now(), c, f.poses[c.Vehicle])
}

func (f *SimFleet) record(at time.Time, c Command, pose r3.Vec) error {
	if f.recorder == nil {
		return nil
	}
	if err := f.recorder.Record(at, c, pose); err != nil {
		return fmt.Errorf("failed to record %s: %w", c.Op, err)
	}
	return nil
}
