package reflog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/swarm.tools/internal/rosmsg"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownCommand is returned in strict mode for a command kind that has
// no reference series.
var ErrUnknownCommand = errors.New("unknown command kind")

// Command is a decoded setpoint, one variant per command kind.
type Command interface {
	// Kind returns the topic segment the command was sent on.
	Kind() string
	// Time returns the command's own header stamp in seconds.
	Time() float64
	apply(b *Bucket, vehicle string)
}

// PositionCommand is a position-only setpoint.
type PositionCommand struct {
	T   float64
	Pos r3.Vec
}

func (PositionCommand) Kind() string    { return rosmsg.KindCmdPosition }
func (c PositionCommand) Time() float64 { return c.T }

func (c PositionCommand) apply(b *Bucket, vehicle string) {
	b.Append(vehicle, SeriesPosRef, sample(c.T, c.Pos))
}

// FullStateCommand is a position, velocity and acceleration setpoint. All
// three references share its stamp.
type FullStateCommand struct {
	T   float64
	Pos r3.Vec
	Vel r3.Vec
	Acc r3.Vec
}

func (FullStateCommand) Kind() string    { return rosmsg.KindCmdFullState }
func (c FullStateCommand) Time() float64 { return c.T }

func (c FullStateCommand) apply(b *Bucket, vehicle string) {
	b.Append(vehicle, SeriesPosRef, sample(c.T, c.Pos))
	b.Append(vehicle, SeriesVelRef, sample(c.T, c.Vel))
	b.Append(vehicle, SeriesAccRef, sample(c.T, c.Acc))
}

// VelocityCommand is a world-frame velocity setpoint.
type VelocityCommand struct {
	T   float64
	Vel r3.Vec
}

func (VelocityCommand) Kind() string    { return rosmsg.KindCmdVelocityWorld }
func (c VelocityCommand) Time() float64 { return c.T }

func (c VelocityCommand) apply(b *Bucket, vehicle string) {
	b.Append(vehicle, SeriesVelRef, sample(c.T, c.Vel))
}

func sample(t float64, v r3.Vec) Sample {
	return Sample{t, v.X, v.Y, v.Z}
}

// commandTypes maps each known kind to the message type it must carry.
var commandTypes = map[string]string{
	rosmsg.KindCmdPosition:      rosmsg.TypePosition,
	rosmsg.KindCmdFullState:     rosmsg.TypeFullState,
	rosmsg.KindCmdVelocityWorld: rosmsg.TypeVelocityWorld,
}

// KnownCommand reports whether kind has a reference series.
func KnownCommand(kind string) bool {
	_, ok := commandTypes[kind]
	return ok
}

// ParseCommand builds the variant for kind from a decoded message. The
// message type must be the one the kind is published with.
func ParseCommand(kind string, m rosmsg.Message) (Command, error) {
	want, ok := commandTypes[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
	if m.TypeName() != want {
		return nil, fmt.Errorf("%s carries %s, want %s", kind, m.TypeName(), want)
	}

	switch msg := m.(type) {
	case *rosmsg.Position:
		return PositionCommand{
			T:   msg.Header.Stamp.Seconds(),
			Pos: r3.Vec{X: float64(msg.X), Y: float64(msg.Y), Z: float64(msg.Z)},
		}, nil
	case *rosmsg.FullState:
		return FullStateCommand{
			T:   msg.Header.Stamp.Seconds(),
			Pos: msg.Pose.Position.Vec(),
			Vel: msg.Twist.Linear.Vec(),
			Acc: msg.Acc.Vec(),
		}, nil
	case *rosmsg.VelocityWorld:
		return VelocityCommand{
			T:   msg.Header.Stamp.Seconds(),
			Vel: msg.Vel.Vec(),
		}, nil
	}
	return nil, fmt.Errorf("%s: unexpected message %T", kind, m)
}

// TopicClass is the role of a topic in the log.
type TopicClass int

const (
	TopicOther TopicClass = iota
	TopicPose
	TopicCommand
)

// Classifier recognises the pose channel and vehicle command topics.
type Classifier struct {
	// PoseTopic is matched exactly.
	PoseTopic string
	// VehiclePrefix is what the first segment of a command topic starts
	// with, e.g. "cf" for /cf3/cmd_position.
	VehiclePrefix string
}

// DefaultClassifier matches /tf and /cf*/<kind>.
func DefaultClassifier() Classifier {
	return Classifier{PoseTopic: rosmsg.TopicTF, VehiclePrefix: "cf"}
}

// Classify returns the class of topic and, for command topics, the vehicle
// id and command kind taken from its first two segments.
func (c Classifier) Classify(topic string) (class TopicClass, vehicle, kind string) {
	if topic == c.PoseTopic {
		return TopicPose, "", ""
	}
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "" {
		return TopicOther, "", ""
	}
	vehicle, kind = parts[1], parts[2]
	if vehicle == "" || kind == "" || !strings.HasPrefix(vehicle, c.VehiclePrefix) {
		return TopicOther, "", ""
	}
	return TopicCommand, vehicle, kind
}
