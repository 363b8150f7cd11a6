package swarm

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/swarm.tools/internal/serialmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			"setParam",
			Command{Op: OpSetParam, Param: "stabilizer/controller", Value: 2},
			`{"op":"setParam","param":"stabilizer/controller","value":2}`,
		},
		{
			"takeoff",
			Command{Op: OpTakeoff, Height: 0.5, Duration: 2 * time.Second},
			`{"duration":2,"height":0.5,"op":"takeoff"}`,
		},
		{
			"goTo",
			Command{Op: OpGoTo, Vehicle: "cf1", Pos: r3.Vec{Z: 0.4}, Duration: 2 * time.Second},
			`{"duration":2,"id":"cf1","op":"goTo","pos":[0,0,0.4],"yaw":0}`,
		},
		{
			"cmdPosition",
			Command{Op: OpCmdPosition, Vehicle: "cf2", Pos: r3.Vec{X: 1, Y: -1, Z: 0.5}},
			`{"id":"cf2","op":"cmdPosition","pos":[1,-1,0.5],"yaw":0}`,
		},
		{
			"cmdFullState",
			Command{Op: OpCmdFullState, Vehicle: "cf1", Pos: r3.Vec{X: 1}, Vel: r3.Vec{Y: 2}, Acc: r3.Vec{Z: 9.5}},
			`{"acc":[0,0,9.5],"id":"cf1","omega":[0,0,0],"op":"cmdFullState","pos":[1,0,0],"vel":[0,2,0],"yaw":0}`,
		},
		{
			"notifySetpointsStop",
			Command{Op: OpNotifySetpointsStop, Vehicle: "cf1", Duration: 100 * time.Millisecond},
			`{"id":"cf1","op":"notifySetpointsStop","remain_valid_ms":100}`,
		},
		{
			"land",
			Command{Op: OpLand, Vehicle: "cf1", Height: 0.02, Duration: 4 * time.Second},
			`{"duration":4,"height":0.02,"id":"cf1","op":"land"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := EncodeCommand(Command{Op: "flip"})
	assert.Error(t, err)
}

func TestLinkFleet_WritesLines(t *testing.T) {
	port := serialmux.NewMockPort()
	f := NewLinkFleet(serialmux.NewSerialMux(port), []string{"cf1", "cf2"})

	require.NoError(t, f.SetParam("kalman/resetEstimation", 1))
	require.NoError(t, f.Takeoff(0.5, time.Second))
	for _, v := range f.Vehicles() {
		require.NoError(t, v.Land(0, time.Second))
	}

	lines := strings.Split(strings.TrimSuffix(string(port.GetWrittenData()), "\n"), "\n")
	assert.Equal(t, []string{
		`{"op":"setParam","param":"kalman/resetEstimation","value":1}`,
		`{"duration":1,"height":0.5,"op":"takeoff"}`,
		`{"duration":1,"height":0,"id":"cf1","op":"land"}`,
		`{"duration":1,"height":0,"id":"cf2","op":"land"}`,
	}, lines)
}

func TestLinkFleet_SendError(t *testing.T) {
	port := serialmux.NewMockPort()
	unplugged := errors.New("unplugged")
	port.WriteError = unplugged
	f := NewLinkFleet(serialmux.NewSerialMux(port), []string{"cf1"})

	err := f.Vehicles()[0].CmdPosition(r3.Vec{}, 0)
	assert.ErrorIs(t, err, unplugged)
	assert.Contains(t, err.Error(), "cmdPosition")
}
