// Package swarm is the client side of the quadrotor fleet.
//
// The choreography only talks to the Fleet and Vehicle interfaces. Two
// implementations are provided: SimFleet, an in-process fleet that records
// every command (and optionally writes them to a flight log), and LinkFleet,
// which forwards every command as a JSON line to a ground-station bridge over
// a serial link. Commands are fire-and-forget: no acknowledgement is awaited
// and fleet-side faults are not reported back.
package swarm

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Fleet is the set of vehicles flown together.
type Fleet interface {
	// SetParam writes a named onboard parameter on every vehicle.
	SetParam(name string, value float64) error
	// Takeoff starts a synchronised takeoff of every vehicle to height
	// metres over duration d.
	Takeoff(height float64, d time.Duration) error
	// Vehicles returns the vehicles in their fixed enumeration order.
	Vehicles() []Vehicle
}

// Vehicle is one quadrotor of the fleet.
type Vehicle interface {
	ID() string
	// GoTo flies to p with the given yaw (radians) over duration d.
	GoTo(p r3.Vec, yaw float64, d time.Duration) error
	// CmdPosition sends a position-only setpoint.
	CmdPosition(p r3.Vec, yaw float64) error
	// CmdFullState sends a position, velocity, acceleration, yaw and
	// angular rate setpoint.
	CmdFullState(p, v, a r3.Vec, yaw float64, omega r3.Vec) error
	// NotifySetpointsStop tells the vehicle that streamed setpoints end and
	// the last one stays valid for the given window.
	NotifySetpointsStop(validity time.Duration) error
	// Land descends to height metres over duration d.
	Land(height float64, d time.Duration) error
}

// Op names a fleet command.
type Op string

const (
	OpSetParam            Op = "setParam"
	OpTakeoff             Op = "takeoff"
	OpGoTo                Op = "goTo"
	OpCmdPosition         Op = "cmdPosition"
	OpCmdFullState        Op = "cmdFullState"
	OpNotifySetpointsStop Op = "notifySetpointsStop"
	OpLand                Op = "land"
)

// Command is one issued fleet command. Only the fields relevant to Op are
// set; Vehicle is empty for fleet-wide commands.
type Command struct {
	Op       Op
	Vehicle  string
	Param    string
	Value    float64
	Height   float64
	Duration time.Duration
	Yaw      float64
	Pos      r3.Vec
	Vel      r3.Vec
	Acc      r3.Vec
	Omega    r3.Vec
}

// sender is what both fleets funnel their commands through.
type sender interface {
	send(Command) error
}

// vehicle implements Vehicle on top of a sender.
type vehicle struct {
	id  string
	out sender
}

func (v *vehicle) ID() string { return v.id }

func (v *vehicle) GoTo(p r3.Vec, yaw float64, d time.Duration) error {
	return v.out.send(Command{Op: OpGoTo, Vehicle: v.id, Pos: p, Yaw: yaw, Duration: d})
}

func (v *vehicle) CmdPosition(p r3.Vec, yaw float64) error {
	return v.out.send(Command{Op: OpCmdPosition, Vehicle: v.id, Pos: p, Yaw: yaw})
}

func (v *vehicle) CmdFullState(p, vel, acc r3.Vec, yaw float64, omega r3.Vec) error {
	return v.out.send(Command{Op: OpCmdFullState, Vehicle: v.id, Pos: p, Vel: vel, Acc: acc, Yaw: yaw, Omega: omega})
}

func (v *vehicle) NotifySetpointsStop(validity time.Duration) error {
	return v.out.send(Command{Op: OpNotifySetpointsStop, Vehicle: v.id, Duration: validity})
}

func (v *vehicle) Land(height float64, d time.Duration) error {
	return v.out.send(Command{Op: OpLand, Vehicle: v.id, Height: height, Duration: d})
}

func newVehicles(ids []string, out sender) []Vehicle {
	vs := make([]Vehicle, len(ids))
	for i, id := range ids {
		vs[i] = &vehicle{id: id, out: out}
	}
	return vs
}
