package rosmsg

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeconds(t *testing.T) {
	assert.Equal(t, 5.0, Time{Sec: 5}.Seconds())
	assert.InDelta(t, 1.25, Time{Sec: 1, Nanosec: 250000000}.Seconds(), 1e-12)

	at := time.Unix(1700000000, 123000000)
	assert.Equal(t, Time{Sec: 1700000000, Nanosec: 123000000}, TimeOf(at))
}

func TestRoundTrip(t *testing.T) {
	hdr := Header{Stamp: Time{Sec: 12, Nanosec: 500}, FrameID: "world"}
	tests := []Message{
		&TFMessage{Transforms: []TransformStamped{
			{
				Header:       hdr,
				ChildFrameID: "cf1",
				Transform: Transform{
					Translation: Vector3{X: 1, Y: -2, Z: 0.5},
					Rotation:    Identity,
				},
			},
			{
				Header:       Header{Stamp: Time{Sec: 12, Nanosec: 900}},
				ChildFrameID: "cf22",
				Transform:    Transform{Translation: Vector3{X: 3}},
			},
		}},
		&TFMessage{},
		&Position{Header: hdr, X: 1, Y: 2, Z: 3, Yaw: 0.25},
		&FullState{
			Header: hdr,
			Pose:   Pose{Position: Vector3{X: 1, Y: 2, Z: 3}, Orientation: Identity},
			Twist:  Twist{Linear: Vector3{X: 0.1, Y: 0.2, Z: 0.3}},
			Acc:    Vector3{Z: 9.8},
		},
		&VelocityWorld{Header: hdr, Vel: Vector3{X: -1, Y: 0, Z: 0.5}, YawRate: 0.1},
	}
	for _, want := range tests {
		t.Run(want.TypeName(), func(t *testing.T) {
			data := Marshal(want)
			got, err := Decode(want.TypeName(), data)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBigEndianDecode(t *testing.T) {
	e := NewBigEndianEncoder()
	want := &Position{Header: Header{Stamp: Time{Sec: 3, Nanosec: 7}, FrameID: "w"}, X: 1.5, Y: -2, Z: 0.25, Yaw: 1}
	want.encode(e)

	var got Position
	require.NoError(t, Unmarshal(e.Bytes(), &got))
	assert.Equal(t, *want, got)
}

func TestAlignment(t *testing.T) {
	// header(stamp 8 bytes + "ab\0" with 4-byte length = 15) pads to 16
	// before the first float64 of the FullState pose.
	m := &FullState{Header: Header{FrameID: "ab"}, Pose: Pose{Position: Vector3{X: 1}}}
	data := Marshal(m)
	payload := data[4:]
	assert.Equal(t, []byte{0}, payload[15:16], "padding byte")
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, payload[16:24], "1.0 little endian")
}

func TestDecodeErrors(t *testing.T) {
	good := Marshal(&Position{X: 1})

	t.Run("too short for header", func(t *testing.T) {
		_, err := Decode(TypePosition, []byte{0, 1})
		assert.ErrorIs(t, err, ErrShortBuffer)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(TypePosition, good[:len(good)-2])
		assert.ErrorIs(t, err, ErrShortBuffer)
	})
	t.Run("parameter list encapsulation", func(t *testing.T) {
		bad := append([]byte{0, 3, 0, 0}, good[4:]...)
		_, err := Decode(TypePosition, bad)
		assert.True(t, errors.Is(err, ErrUnsupportedEncoding), "got %v", err)
	})
	t.Run("unknown type", func(t *testing.T) {
		_, err := Decode("std_msgs/msg/String", good)
		assert.Error(t, err)
	})
	t.Run("absurd sequence length", func(t *testing.T) {
		e := NewEncoder()
		e.SequenceLen(1 << 30)
		_, err := Decode(TypeTFMessage, e.Bytes())
		assert.ErrorIs(t, err, ErrShortBuffer)
	})
}

func TestROS1RoundTrip(t *testing.T) {
	hdr := Header{Seq: 41, Stamp: Time{Sec: 1700000000, Nanosec: 250}, FrameID: "world"}
	tests := []Message{
		&TFMessage{Transforms: []TransformStamped{{
			Header:       hdr,
			ChildFrameID: "cf3",
			Transform:    Transform{Translation: Vector3{X: 0.5, Y: 1, Z: 1.5}, Rotation: Identity},
		}}},
		&Position{Header: hdr, X: 1, Y: 2, Z: 3, Yaw: -0.5},
		&FullState{Header: hdr, Pose: Pose{Orientation: Identity}, Acc: Vector3{Z: -9.81}},
		&VelocityWorld{Header: hdr, Vel: Vector3{X: 0.2}, YawRate: 1},
	}
	for _, want := range tests {
		name := TypeNameAs(ROS1, want)
		t.Run(name, func(t *testing.T) {
			got, err := Decode(name, MarshalROS1(want))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestROS1Layout(t *testing.T) {
	m := &Position{Header: Header{Seq: 1, Stamp: Time{Sec: 2, Nanosec: 3}, FrameID: "ab"}, X: 1}
	data := MarshalROS1(m)

	// seq, secs, nsecs, len("ab"), "ab", then x with no padding
	want := []byte{
		1, 0, 0, 0,
		2, 0, 0, 0,
		3, 0, 0, 0,
		2, 0, 0, 0, 'a', 'b',
		0, 0, 0x80, 0x3f,
	}
	require.GreaterOrEqual(t, len(data), len(want))
	assert.Equal(t, want, data[:len(want)])
	assert.Len(t, data, len(want)+3*4)
}

func TestROS1TypeNames(t *testing.T) {
	for _, name := range []string{TypeTFMessageROS1, TypeTF2MessageROS1} {
		m, enc, ok := New(name)
		require.True(t, ok, name)
		assert.Equal(t, ROS1, enc)
		assert.IsType(t, &TFMessage{}, m)
	}
	_, enc, ok := New(TypeTFMessage)
	require.True(t, ok)
	assert.Equal(t, CDR, enc)

	assert.Equal(t, TypeVelocityWorldROS1, TypeNameAs(ROS1, &VelocityWorld{}))
	assert.Equal(t, TypeVelocityWorld, TypeNameAs(CDR, &VelocityWorld{}))
}

func TestROS1Truncated(t *testing.T) {
	data := MarshalROS1(&TFMessage{Transforms: []TransformStamped{{ChildFrameID: "cf1"}}})
	_, err := Decode(TypeTFMessageROS1, data[:len(data)-1])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestMD5Sum(t *testing.T) {
	tests := map[string]string{
		"std_msgs/Header":                "2176decaecbce78abc3b96ef049fabed",
		"geometry_msgs/Vector3":          "4a842b65f413084dc2b10fb484ea7f17",
		"geometry_msgs/Pose":             "e45d45a5a1ce597b249e23fb30fc871f",
		"geometry_msgs/Twist":            "9f195f881246fdfa2798d1d3eebca84a",
		"geometry_msgs/TransformStamped": "b5764a33bfeb3588febc2682852579b0",
		TypeTFMessageROS1:                "94810edda583a504dfda3829e70d7eec",
		TypeTF2MessageROS1:               "94810edda583a504dfda3829e70d7eec",
	}
	for name, want := range tests {
		got, err := MD5Sum(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := MD5Sum("std_msgs/String")
	assert.Error(t, err)
}

func TestFullDefinition(t *testing.T) {
	def, err := FullDefinition(TypeTFMessageROS1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(def, "geometry_msgs/TransformStamped[] transforms\n"))
	for _, dep := range []string{
		"geometry_msgs/TransformStamped", "std_msgs/Header", "geometry_msgs/Transform",
		"geometry_msgs/Vector3", "geometry_msgs/Quaternion",
	} {
		assert.Equal(t, 1, strings.Count(def, "\nMSG: "+dep+"\n"), dep)
	}
}
