package swarm

import (
	"testing"
	"time"

	"github.com/banshee-data/swarm.tools/internal/rosmsg"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type written struct {
	topic    string
	typeName string
	msg      rosmsg.Message
	at       time.Time
}

type memBag struct {
	t   *testing.T
	got []written
}

func (b *memBag) Write(topic, typeName string, logTime time.Time, data []byte) error {
	m, err := rosmsg.Decode(typeName, data)
	require.NoError(b.t, err)
	b.got = append(b.got, written{topic: topic, typeName: typeName, msg: m, at: logTime})
	return nil
}

func TestBagRecorder(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(10, 500))
	bag := &memBag{t: t}
	f := NewSimFleet(clock, "cf1")
	f.SetRecorder(NewBagRecorder(bag, rosmsg.CDR))
	v := f.Vehicles()[0]

	require.NoError(t, f.SetParam("stabilizer/controller", 2))
	require.NoError(t, f.Takeoff(0.25, time.Second))
	require.NoError(t, v.CmdPosition(r3.Vec{X: 1, Y: 2, Z: 0.5}, 0))
	require.NoError(t, v.CmdFullState(r3.Vec{X: 1.5, Y: 2, Z: 0.5}, r3.Vec{X: 0.1}, r3.Vec{Z: 9.8}, 0, r3.Vec{}))
	require.NoError(t, v.NotifySetpointsStop(100*time.Millisecond))

	var topics []string
	for _, w := range bag.got {
		topics = append(topics, w.topic)
		assert.Equal(t, time.Unix(10, 500), w.at)
	}
	assert.Equal(t, []string{"/tf", "/cf1/cmd_position", "/tf", "/cf1/cmd_full_state", "/tf"}, topics)

	stamp := rosmsg.Header{Stamp: rosmsg.Time{Sec: 10, Nanosec: 500}, FrameID: "world"}
	wantTF := &rosmsg.TFMessage{Transforms: []rosmsg.TransformStamped{{
		Header:       stamp,
		ChildFrameID: "cf1",
		Transform: rosmsg.Transform{
			Translation: rosmsg.Vector3{Z: 0.25},
			Rotation:    rosmsg.Identity,
		},
	}}}
	if diff := cmp.Diff(wantTF, bag.got[0].msg); diff != "" {
		t.Errorf("takeoff pose mismatch (-want +got):\n%s", diff)
	}

	wantPos := &rosmsg.Position{Header: stamp, X: 1, Y: 2, Z: 0.5}
	if diff := cmp.Diff(wantPos, bag.got[1].msg); diff != "" {
		t.Errorf("position setpoint mismatch (-want +got):\n%s", diff)
	}

	full, ok := bag.got[3].msg.(*rosmsg.FullState)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 1.5, Y: 2, Z: 0.5}, full.Pose.Position.Vec())
	assert.Equal(t, r3.Vec{X: 0.1}, full.Twist.Linear.Vec())
	assert.Equal(t, r3.Vec{Z: 9.8}, full.Acc.Vec())
}

func TestBagRecorder_ROS1(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(10, 0))
	bag := &memBag{t: t}
	f := NewSimFleet(clock, "cf2")
	f.SetRecorder(NewBagRecorder(bag, rosmsg.ROS1))
	v := f.Vehicles()[0]

	require.NoError(t, v.CmdPosition(r3.Vec{X: 1}, 0))
	require.NoError(t, v.CmdPosition(r3.Vec{X: 2}, 0))

	require.Len(t, bag.got, 4)
	assert.Equal(t, rosmsg.TypePositionROS1, bag.got[0].typeName)
	assert.Equal(t, rosmsg.TypeTFMessageROS1, bag.got[1].typeName)

	first := bag.got[0].msg.(*rosmsg.Position)
	second := bag.got[2].msg.(*rosmsg.Position)
	assert.Equal(t, uint32(0), first.Header.Seq)
	assert.Equal(t, uint32(1), second.Header.Seq)
	assert.Equal(t, float32(2), second.X)

	tf := bag.got[3].msg.(*rosmsg.TFMessage)
	require.Len(t, tf.Transforms, 1)
	assert.Equal(t, "cf2", tf.Transforms[0].ChildFrameID)
	assert.Equal(t, r3.Vec{X: 2}, tf.Transforms[0].Transform.Translation.Vec())
}
