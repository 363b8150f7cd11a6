package rosmsg

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ROS 2 type names as recorded in a rosbag2 topic table.
const (
	TypeTFMessage     = "tf2_msgs/msg/TFMessage"
	TypePosition      = "crazyflie_interfaces/msg/Position"
	TypeFullState     = "crazyflie_interfaces/msg/FullState"
	TypeVelocityWorld = "crazyflie_interfaces/msg/VelocityWorld"
)

// ROS 1 type names as recorded in a .bag connection header.
const (
	TypeTFMessageROS1     = "tf/tfMessage"
	TypeTF2MessageROS1    = "tf2_msgs/TFMessage"
	TypePositionROS1      = "crazyflie_driver/Position"
	TypeFullStateROS1     = "crazyflie_driver/FullState"
	TypeVelocityWorldROS1 = "crazyflie_driver/VelocityWorld"
)

// Message is implemented by every message type of this package. TypeName
// is the ROS 2 name; TypeNameAs gives the name for another encoding.
type Message interface {
	TypeName() string
	decode(*Decoder)
	encode(*Encoder)
}

type messageType struct {
	enc Encoding
	new func() Message
}

var messageTypes = map[string]messageType{
	TypeTFMessage:     {CDR, func() Message { return &TFMessage{} }},
	TypePosition:      {CDR, func() Message { return &Position{} }},
	TypeFullState:     {CDR, func() Message { return &FullState{} }},
	TypeVelocityWorld: {CDR, func() Message { return &VelocityWorld{} }},

	TypeTFMessageROS1:     {ROS1, func() Message { return &TFMessage{} }},
	TypeTF2MessageROS1:    {ROS1, func() Message { return &TFMessage{} }},
	TypePositionROS1:      {ROS1, func() Message { return &Position{} }},
	TypeFullStateROS1:     {ROS1, func() Message { return &FullState{} }},
	TypeVelocityWorldROS1: {ROS1, func() Message { return &VelocityWorld{} }},
}

// ros1Names is the name each message is written under in a ROS 1 log.
var ros1Names = map[string]string{
	TypeTFMessage:     TypeTFMessageROS1,
	TypePosition:      TypePositionROS1,
	TypeFullState:     TypeFullStateROS1,
	TypeVelocityWorld: TypeVelocityWorldROS1,
}

// New returns an empty message of the named type and the encoding a message
// recorded under that name uses.
func New(typeName string) (Message, Encoding, bool) {
	mt, ok := messageTypes[typeName]
	if !ok {
		return nil, 0, false
	}
	return mt.new(), mt.enc, true
}

// TypeNameAs returns the name m is recorded under in enc.
func TypeNameAs(enc Encoding, m Message) string {
	if enc == ROS1 {
		return ros1Names[m.TypeName()]
	}
	return m.TypeName()
}

// Unmarshal decodes CDR data into m.
func Unmarshal(data []byte, m Message) error {
	d, err := NewDecoder(data)
	if err != nil {
		return err
	}
	return finish(d, m)
}

// UnmarshalROS1 decodes ROS 1 data into m.
func UnmarshalROS1(data []byte, m Message) error {
	return finish(NewROS1Decoder(data), m)
}

func finish(d *Decoder, m Message) error {
	m.decode(d)
	if err := d.Err(); err != nil {
		return fmt.Errorf("decode %s: %w", m.TypeName(), err)
	}
	return nil
}

// Decode decodes data as the named message type, in the encoding that name
// belongs to.
func Decode(typeName string, data []byte) (Message, error) {
	m, enc, ok := New(typeName)
	if !ok {
		return nil, fmt.Errorf("unsupported message type %q", typeName)
	}
	var err error
	if enc == ROS1 {
		err = UnmarshalROS1(data, m)
	} else {
		err = Unmarshal(data, m)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal encodes m as little-endian CDR.
func Marshal(m Message) []byte {
	e := NewEncoder()
	m.encode(e)
	return e.Bytes()
}

// MarshalROS1 encodes m in the ROS 1 format.
func MarshalROS1(m Message) []byte {
	e := NewROS1Encoder()
	m.encode(e)
	return e.Bytes()
}

// MarshalAs encodes m in enc.
func MarshalAs(enc Encoding, m Message) []byte {
	if enc == ROS1 {
		return MarshalROS1(m)
	}
	return Marshal(m)
}

// Time is builtin_interfaces/Time, or the ROS 1 time primitive.
type Time struct {
	Sec     int32
	Nanosec uint32
}

// TimeOf converts a wall clock time to a message stamp.
func TimeOf(t time.Time) Time {
	return Time{Sec: int32(t.Unix()), Nanosec: uint32(t.Nanosecond())}
}

// Seconds returns the stamp as floating point seconds.
func (t Time) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nanosec)/1e9
}

func (t *Time) decode(d *Decoder) {
	t.Sec = d.Int32()
	t.Nanosec = d.Uint32()
}

func (t Time) encode(e *Encoder) {
	e.Int32(t.Sec)
	e.Uint32(t.Nanosec)
}

// Header is std_msgs/Header. Seq only exists in ROS 1.
type Header struct {
	Seq     uint32
	Stamp   Time
	FrameID string
}

func (h *Header) decode(d *Decoder) {
	if d.ros1 {
		h.Seq = d.Uint32()
	}
	h.Stamp.decode(d)
	h.FrameID = d.String()
}

func (h Header) encode(e *Encoder) {
	if e.ros1 {
		e.Uint32(h.Seq)
	}
	h.Stamp.encode(e)
	e.String(h.FrameID)
}

// Vector3 is geometry_msgs/Vector3; geometry_msgs/Point has the same layout.
type Vector3 struct {
	X, Y, Z float64
}

// Vec converts to a gonum vector.
func (v Vector3) Vec() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// Vector3Of converts from a gonum vector.
func Vector3Of(v r3.Vec) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func (v *Vector3) decode(d *Decoder) {
	v.X = d.Float64()
	v.Y = d.Float64()
	v.Z = d.Float64()
}

func (v Vector3) encode(e *Encoder) {
	e.Float64(v.X)
	e.Float64(v.Y)
	e.Float64(v.Z)
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X, Y, Z, W float64
}

// Identity is the zero rotation.
var Identity = Quaternion{W: 1}

func (q *Quaternion) decode(d *Decoder) {
	q.X = d.Float64()
	q.Y = d.Float64()
	q.Z = d.Float64()
	q.W = d.Float64()
}

func (q Quaternion) encode(e *Encoder) {
	e.Float64(q.X)
	e.Float64(q.Y)
	e.Float64(q.Z)
	e.Float64(q.W)
}

// Transform is geometry_msgs/Transform.
type Transform struct {
	Translation Vector3
	Rotation    Quaternion
}

// TransformStamped is geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header
	ChildFrameID string
	Transform    Transform
}

func (t *TransformStamped) decode(d *Decoder) {
	t.Header.decode(d)
	t.ChildFrameID = d.String()
	t.Transform.Translation.decode(d)
	t.Transform.Rotation.decode(d)
}

func (t TransformStamped) encode(e *Encoder) {
	t.Header.encode(e)
	e.String(t.ChildFrameID)
	t.Transform.Translation.encode(e)
	t.Transform.Rotation.encode(e)
}

// TFMessage is tf2_msgs/TFMessage, published by the motion capture bridge.
type TFMessage struct {
	Transforms []TransformStamped
}

func (*TFMessage) TypeName() string { return TypeTFMessage }

// minimum encoded TransformStamped in either encoding: stamp, two empty
// strings, 7 doubles
const minTransformSize = 8 + 4 + 4 + 7*8

func (m *TFMessage) decode(d *Decoder) {
	n := d.SequenceLen(minTransformSize)
	m.Transforms = nil
	if n == 0 {
		return
	}
	m.Transforms = make([]TransformStamped, n)
	for i := range m.Transforms {
		m.Transforms[i].decode(d)
	}
}

func (m *TFMessage) encode(e *Encoder) {
	e.SequenceLen(len(m.Transforms))
	for _, t := range m.Transforms {
		t.encode(e)
	}
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Vector3
	Orientation Quaternion
}

// Twist is geometry_msgs/Twist.
type Twist struct {
	Linear  Vector3
	Angular Vector3
}

// Position is crazyflie_interfaces/Position, the position-only setpoint.
type Position struct {
	Header  Header
	X, Y, Z float32
	Yaw     float32
}

func (*Position) TypeName() string { return TypePosition }

func (m *Position) decode(d *Decoder) {
	m.Header.decode(d)
	m.X = d.Float32()
	m.Y = d.Float32()
	m.Z = d.Float32()
	m.Yaw = d.Float32()
}

func (m *Position) encode(e *Encoder) {
	m.Header.encode(e)
	e.Float32(m.X)
	e.Float32(m.Y)
	e.Float32(m.Z)
	e.Float32(m.Yaw)
}

// FullState is crazyflie_interfaces/FullState, the full-state setpoint.
type FullState struct {
	Header Header
	Pose   Pose
	Twist  Twist
	Acc    Vector3
}

func (*FullState) TypeName() string { return TypeFullState }

func (m *FullState) decode(d *Decoder) {
	m.Header.decode(d)
	m.Pose.Position.decode(d)
	m.Pose.Orientation.decode(d)
	m.Twist.Linear.decode(d)
	m.Twist.Angular.decode(d)
	m.Acc.decode(d)
}

func (m *FullState) encode(e *Encoder) {
	m.Header.encode(e)
	m.Pose.Position.encode(e)
	m.Pose.Orientation.encode(e)
	m.Twist.Linear.encode(e)
	m.Twist.Angular.encode(e)
	m.Acc.encode(e)
}

// VelocityWorld is crazyflie_interfaces/VelocityWorld.
type VelocityWorld struct {
	Header  Header
	Vel     Vector3
	YawRate float32
}

func (*VelocityWorld) TypeName() string { return TypeVelocityWorld }

func (m *VelocityWorld) decode(d *Decoder) {
	m.Header.decode(d)
	m.Vel.decode(d)
	m.YawRate = d.Float32()
}

func (m *VelocityWorld) encode(e *Encoder) {
	m.Header.encode(e)
	m.Vel.encode(e)
	e.Float32(m.YawRate)
}
