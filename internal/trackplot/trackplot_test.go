package trackplot

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/swarm.tools/internal/tablefile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type memTables map[string]*mat.Dense

func (m memTables) ReadTable(path string) (*mat.Dense, error) {
	d, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tablefile.ErrTableNotFound, path)
	}
	return d, nil
}

type failingReader struct{ err error }

func (f failingReader) ReadTable(string) (*mat.Dense, error) { return nil, f.err }

func sampleTables() memTables {
	return memTables{
		"cf1/pos_ref": mat.NewDense(2, 4, []float64{
			1, 0, 0, 1,
			3, 1, 0, 1,
		}),
		"cf1/pos": mat.NewDense(4, 4, []float64{
			0.5, 9, 9, 9, // before the first reference
			1, 0, 0, 1,
			2, 0, 0, 2,
			3, 1, 0, 1,
		}),
	}
}

func TestSummarise(t *testing.T) {
	s, err := Summarise(sampleTables(), "cf1")
	require.NoError(t, err)

	assert.Equal(t, "cf1", s.Vehicle)
	assert.Equal(t, 4, s.PoseSamples)
	assert.Equal(t, 2, s.RefSamples)
	assert.Equal(t, 3, s.Paired)
	assert.InDelta(t, math.Sqrt(1.0/3.0), s.RMSError, 1e-12)
	assert.InDelta(t, 1.0, s.MaxError, 1e-12)
}

func TestSummarise_UnorderedReferences(t *testing.T) {
	tables := sampleTables()
	tables["cf1/pos_ref"] = mat.NewDense(2, 4, []float64{
		3, 1, 0, 1,
		1, 0, 0, 1,
	})
	s, err := Summarise(tables, "cf1")
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(1.0/3.0), s.RMSError, 1e-12)
}

func TestSummarise_MissingSeries(t *testing.T) {
	tables := sampleTables()
	delete(tables, "cf1/pos_ref")

	s, err := Summarise(tables, "cf1")
	require.NoError(t, err)
	assert.Equal(t, 4, s.PoseSamples)
	assert.Equal(t, 0, s.RefSamples)
	assert.Equal(t, 0, s.Paired)
	assert.True(t, math.IsNaN(s.RMSError))

	s, err = Summarise(tables, "cf9")
	require.NoError(t, err)
	assert.Equal(t, 0, s.PoseSamples)
	assert.True(t, math.IsNaN(s.RMSError))
}

func TestSummarise_AllPosesBeforeReference(t *testing.T) {
	tables := memTables{
		"cf1/pos_ref": mat.NewDense(1, 4, []float64{10, 0, 0, 0}),
		"cf1/pos":     mat.NewDense(1, 4, []float64{1, 0, 0, 0}),
	}
	s, err := Summarise(tables, "cf1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Paired)
	assert.True(t, math.IsNaN(s.MaxError))
}

func TestLoadTrack_Errors(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := LoadTrack(failingReader{boom}, "cf1")
	assert.ErrorIs(t, err, boom)

	_, err = LoadTrack(memTables{"cf1/pos": mat.NewDense(1, 3, nil)}, "cf1")
	assert.ErrorContains(t, err, "columns")
}

func TestLoadTrack_FromTableFile(t *testing.T) {
	f, err := tablefile.Create(filepath.Join(t.TempDir(), "flight.sqlite"))
	require.NoError(t, err)
	defer f.Close()
	for path, m := range sampleTables() {
		require.NoError(t, f.WriteTable(path, m))
	}

	track, err := LoadTrack(f, "cf1")
	require.NoError(t, err)
	assert.True(t, mat.Equal(sampleTables()["cf1/pos"], track.Pos))
	assert.True(t, mat.Equal(sampleTables()["cf1/pos_ref"], track.PosRef))
}

func TestSavePNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	track, err := LoadTrack(sampleTables(), "cf1")
	require.NoError(t, err)
	track.Vehicle = "../cf1"

	file, err := SavePNG(dir, track)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cf1_tracking.png"), file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "not a png")
}

func TestSavePNG_Empty(t *testing.T) {
	_, err := SavePNG(t.TempDir(), Track{Vehicle: "cf1"})
	assert.Error(t, err)
}

func TestWriteHTML(t *testing.T) {
	tables := sampleTables()
	tables["cf2/pos"] = mat.NewDense(1, 4, []float64{1, 0, 0, 0})

	var tracks []Track
	for _, id := range []string{"cf1", "cf2"} {
		tr, err := LoadTrack(tables, id)
		require.NoError(t, err)
		tracks = append(tracks, tr)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, tracks))
	out := buf.String()
	assert.Contains(t, out, "Tracking error")
	assert.Contains(t, out, "cf1")
	assert.Contains(t, out, "cf2")
	assert.Contains(t, out, "x_ref")
}
