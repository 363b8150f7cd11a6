package swarm

import (
	"encoding/json"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// CommandSender writes one line to the ground-station link.
// serialmux.SerialMuxInterface satisfies it.
type CommandSender interface {
	SendCommand(string) error
}

// LinkFleet forwards commands to a ground-station bridge, one JSON object
// per line, e.g.
//
//	{"duration":2,"id":"cf1","op":"goTo","pos":[0,0,0.4],"yaw":0}
//
// Keys are sorted. Durations are in seconds except for the setpoint stop
// window, which the bridge takes in milliseconds.
type LinkFleet struct {
	link     CommandSender
	vehicles []Vehicle
}

// NewLinkFleet creates a fleet of the given vehicle ids behind link.
func NewLinkFleet(link CommandSender, ids []string) *LinkFleet {
	f := &LinkFleet{link: link}
	f.vehicles = newVehicles(ids, f)
	return f
}

func (f *LinkFleet) Vehicles() []Vehicle {
	return f.vehicles
}

func (f *LinkFleet) SetParam(name string, value float64) error {
	return f.send(Command{Op: OpSetParam, Param: name, Value: value})
}

func (f *LinkFleet) Takeoff(height float64, d time.Duration) error {
	return f.send(Command{Op: OpTakeoff, Height: height, Duration: d})
}

func (f *LinkFleet) send(c Command) error {
	line, err := EncodeCommand(c)
	if err != nil {
		return err
	}
	if err := f.link.SendCommand(line); err != nil {
		return fmt.Errorf("failed to send %s: %w", c.Op, err)
	}
	return nil
}

func vec(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// EncodeCommand renders a command as a single-line JSON object carrying
// only the fields its op uses.
func EncodeCommand(c Command) (string, error) {
	msg := map[string]interface{}{"op": c.Op}
	if c.Vehicle != "" {
		msg["id"] = c.Vehicle
	}
	switch c.Op {
	case OpSetParam:
		msg["param"] = c.Param
		msg["value"] = c.Value
	case OpTakeoff, OpLand:
		msg["height"] = c.Height
		msg["duration"] = c.Duration.Seconds()
	case OpGoTo:
		msg["pos"] = vec(c.Pos)
		msg["yaw"] = c.Yaw
		msg["duration"] = c.Duration.Seconds()
	case OpCmdPosition:
		msg["pos"] = vec(c.Pos)
		msg["yaw"] = c.Yaw
	case OpCmdFullState:
		msg["pos"] = vec(c.Pos)
		msg["vel"] = vec(c.Vel)
		msg["acc"] = vec(c.Acc)
		msg["yaw"] = c.Yaw
		msg["omega"] = vec(c.Omega)
	case OpNotifySetpointsStop:
		msg["remain_valid_ms"] = c.Duration.Milliseconds()
	default:
		return "", fmt.Errorf("unknown op %q", c.Op)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", c.Op, err)
	}
	return string(b), nil
}
