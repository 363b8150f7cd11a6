package swarm

import (
	"time"

	"github.com/banshee-data/swarm.tools/internal/rosmsg"
	"gonum.org/v1/gonum/spatial/r3"
)

// BagWriter is the part of bag.LogWriter the recorder needs.
type BagWriter interface {
	Write(topic, typeName string, logTime time.Time, data []byte) error
}

// BagRecorder writes what a SimFleet is told to do into a flight log, in the
// same shape a real flight produces: setpoints on /<id>/cmd_position or
// /<id>/cmd_full_state, and the resulting vehicle pose on /tf.
type BagRecorder struct {
	w   BagWriter
	enc rosmsg.Encoding
	seq map[string]uint32
}

// NewBagRecorder records into w, serializing messages in enc.
func NewBagRecorder(w BagWriter, enc rosmsg.Encoding) *BagRecorder {
	return &BagRecorder{w: w, enc: enc, seq: make(map[string]uint32)}
}

func (r *BagRecorder) Record(at time.Time, c Command, pose r3.Vec) error {
	hdr := rosmsg.Header{Stamp: rosmsg.TimeOf(at), FrameID: rosmsg.WorldFrame}
	cmdHeader := func(kind string) rosmsg.Header {
		h := hdr
		if r.enc == rosmsg.ROS1 {
			// per-publisher sequence number
			topic := rosmsg.CommandTopic(c.Vehicle, kind)
			h.Seq = r.seq[topic]
			r.seq[topic]++
		}
		return h
	}

	switch c.Op {
	case OpCmdPosition:
		msg := &rosmsg.Position{
			Header: cmdHeader(rosmsg.KindCmdPosition),
			X:      float32(c.Pos.X),
			Y:      float32(c.Pos.Y),
			Z:      float32(c.Pos.Z),
			Yaw:    float32(c.Yaw),
		}
		if err := r.write(at, rosmsg.CommandTopic(c.Vehicle, rosmsg.KindCmdPosition), msg); err != nil {
			return err
		}
	case OpCmdFullState:
		msg := &rosmsg.FullState{
			Header: cmdHeader(rosmsg.KindCmdFullState),
			Pose:   rosmsg.Pose{Position: rosmsg.Vector3Of(c.Pos), Orientation: rosmsg.Identity},
			Twist:  rosmsg.Twist{Linear: rosmsg.Vector3Of(c.Vel), Angular: rosmsg.Vector3Of(c.Omega)},
			Acc:    rosmsg.Vector3Of(c.Acc),
		}
		if err := r.write(at, rosmsg.CommandTopic(c.Vehicle, rosmsg.KindCmdFullState), msg); err != nil {
			return err
		}
	case OpTakeoff, OpGoTo, OpLand:
	default:
		return nil
	}

	tf := &rosmsg.TFMessage{Transforms: []rosmsg.TransformStamped{{
		Header:       hdr,
		ChildFrameID: c.Vehicle,
		Transform: rosmsg.Transform{
			Translation: rosmsg.Vector3Of(pose),
			Rotation:    rosmsg.Identity,
		},
	}}}
	return r.write(at, rosmsg.TopicTF, tf)
}

func (r *BagRecorder) write(at time.Time, topic string, m rosmsg.Message) error {
	return r.w.Write(topic, rosmsg.TypeNameAs(r.enc, m), at, rosmsg.MarshalAs(r.enc, m))
}
