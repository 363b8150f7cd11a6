package flight

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/reflog"
	"github.com/banshee-data/swarm.tools/internal/rosmsg"
	"github.com/banshee-data/swarm.tools/internal/swarm"
	"github.com/banshee-data/swarm.tools/internal/tablefile"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// convert reads the log at path into a fresh table file.
func convert(t *testing.T, path string) *tablefile.File {
	t.Helper()
	r, err := bag.Open(path)
	require.NoError(t, err)
	defer r.Close()

	acc := reflog.NewAccumulator(reflog.Options{Policy: reflog.Strict})
	require.NoError(t, reflog.Convert(context.Background(), r, acc))

	f, err := tablefile.Create(filepath.Join(t.TempDir(), "flight.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	_, err = reflog.WriteTables(f, acc.Bucket())
	require.NoError(t, err)
	return f
}

func TestNewSimFleet_PlacesBelowStart(t *testing.T) {
	traj := twoVehicles(t)
	f := NewSimFleet(timeutil.NewMockClock(time.Unix(0, 0)), []string{"cf1", "cf2"}, traj)
	p, ok := f.Pose("cf2")
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 0, Y: 1, Z: 0}, p)
}

func TestRecordSim_RoundTrip(t *testing.T) {
	tests := []struct {
		format bag.Format
		name   string
	}{
		{bag.FormatROS1, "flight.bag"},
		{bag.FormatRosbag2, "flight"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			testRoundTrip(t, tt.format, filepath.Join(t.TempDir(), tt.name))
		})
	}
}

func testRoundTrip(t *testing.T, format bag.Format, path string) {
	t0 := time.Unix(1000, 0)
	clock := timeutil.NewMockClock(t0)

	_, err := RecordSim(path, format, clock, []string{"cf1", "cf2"}, twoVehicles(t), testParams(ModePosition))
	require.NoError(t, err)

	f := convert(t, path)
	groups, err := f.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"cf1", "cf2"}, groups)

	// playback starts after takeoff settle, both approach legs and the
	// start settle: 1.8 + 2 + 2 = 5.8s
	start := 1005.8
	ref, err := f.ReadTable("cf1/pos_ref")
	require.NoError(t, err)
	want := mat.NewDense(2, 4, []float64{
		start, 0, 0, 0.5,
		start + 0.1, 1, 0, 0.5,
	})
	assert.True(t, mat.EqualApprox(want, ref, 1e-6), "pos_ref = %v", mat.Formatted(ref))

	ref, err = f.ReadTable("cf2/pos_ref")
	require.NoError(t, err)
	assert.Equal(t, 1.0, ref.At(1, 2))

	// takeoff, two approach legs, two setpoints, land
	pos, err := f.ReadTable("cf1/pos")
	require.NoError(t, err)
	r, _ := pos.Dims()
	assert.Equal(t, 6, r)
	assert.InDelta(t, 1000.0, pos.At(0, 0), 1e-9)
	assert.InDelta(t, 0.3, pos.At(0, 3), 1e-9)
	assert.InDelta(t, 0.02, pos.At(r-1, 3), 1e-9)

	_, err = f.ReadTable("cf1/vel_ref")
	assert.ErrorIs(t, err, tablefile.ErrTableNotFound)
}

func TestRecordSim_FullState(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	path := filepath.Join(t.TempDir(), "flight.bag")

	_, err := RecordSim(path, bag.FormatROS1, clock, []string{"cf1"}, twoVehicles(t), testParams(ModeFullState))
	require.NoError(t, err)

	f := convert(t, path)
	tables, err := f.Tables()
	require.NoError(t, err)
	var paths []string
	for _, ti := range tables {
		paths = append(paths, ti.Path)
	}
	assert.ElementsMatch(t, []string{"cf1/pos", "cf1/pos_ref", "cf1/vel_ref", "cf1/acc_ref"}, paths)

	vel, err := f.ReadTable("cf1/vel_ref")
	require.NoError(t, err)
	assert.Equal(t, 1.0, vel.At(0, 1))
}

func TestRecordSim_Errors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	_, err := RecordSim(t.TempDir(), bag.FormatRosbag2, clock, []string{"cf1"}, twoVehicles(t), testParams(ModePosition))
	assert.Error(t, err, "existing directory")

	_, err = RecordSim(filepath.Join(t.TempDir(), "a.bag"), bag.Format("mcap"), clock, []string{"cf1"}, twoVehicles(t), testParams(ModePosition))
	assert.Error(t, err, "unknown format")

	_, err = RecordSim(filepath.Join(t.TempDir(), "b.bag"), bag.FormatROS1, clock, []string{"cf1", "cf2", "cf3"}, twoVehicles(t), testParams(ModePosition))
	assert.ErrorIs(t, err, ErrFleetSize)

	// a failed run still leaves a readable bag behind
	dir := filepath.Join(t.TempDir(), "c")
	boom := errors.New("radio lost")
	fleet := NewSimFleet(clock, []string{"cf1"}, twoVehicles(t))
	fleet.FailOn = map[swarm.Op]error{swarm.OpLand: boom}
	d, err := NewDriver(fleet, clock, twoVehicles(t), testParams(ModePosition))
	require.NoError(t, err)
	w, err := bag.Create(dir)
	require.NoError(t, err)
	fleet.SetRecorder(swarm.NewBagRecorder(w, rosmsg.CDR))
	assert.ErrorIs(t, d.Run(), boom)
	require.NoError(t, w.Close())
	md, err := bag.ReadMetadata(dir)
	require.NoError(t, err)
	assert.Positive(t, md.Info.MessageCount)
}
