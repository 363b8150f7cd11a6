// Package trackplot compares what a vehicle was told to do with where it
// actually went, using the tables written by the log converter.
package trackplot

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/swarm.tools/internal/reflog"
	"github.com/banshee-data/swarm.tools/internal/tablefile"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Reader reads one N×4 table. tablefile.File implements it.
type Reader interface {
	ReadTable(path string) (*mat.Dense, error)
}

// Track is the measured and commanded position of one vehicle. Either
// matrix is nil when the log had no such series.
type Track struct {
	Vehicle string
	Pos     *mat.Dense
	PosRef  *mat.Dense
}

// Summary is the tracking quality of one vehicle.
type Summary struct {
	Vehicle     string
	PoseSamples int
	RefSamples  int
	// Paired is the number of pose samples that had a reference to compare
	// against.
	Paired int
	// RMSError is the root mean square distance in metres between each pose
	// and the reference in force at its time. NaN when nothing was paired.
	RMSError float64
	MaxError float64
}

// LoadTrack reads the pos and pos_ref tables of vehicle.
func LoadTrack(r Reader, vehicle string) (Track, error) {
	t := Track{Vehicle: vehicle}
	var err error
	if t.Pos, err = readOptional(r, reflog.TablePath(vehicle, reflog.SeriesPos)); err != nil {
		return t, err
	}
	if t.PosRef, err = readOptional(r, reflog.TablePath(vehicle, reflog.SeriesPosRef)); err != nil {
		return t, err
	}
	return t, nil
}

func readOptional(r Reader, path string) (*mat.Dense, error) {
	m, err := r.ReadTable(path)
	if errors.Is(err, tablefile.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, c := m.Dims(); c != 4 {
		return nil, fmt.Errorf("%s has %d columns, want 4", path, c)
	}
	return m, nil
}

// Summarise loads a vehicle's track and summarises it.
func Summarise(r Reader, vehicle string) (Summary, error) {
	t, err := LoadTrack(r, vehicle)
	if err != nil {
		return Summary{Vehicle: vehicle}, err
	}
	return t.Summary(), nil
}

func rows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

func point(m *mat.Dense, i int) (float64, r3.Vec) {
	return m.At(i, 0), r3.Vec{X: m.At(i, 1), Y: m.At(i, 2), Z: m.At(i, 3)}
}

// Summary holds each reference until the next one (zero-order hold) and
// measures every pose against the reference in force at its timestamp.
// Poses recorded before the first reference are not counted.
func (t Track) Summary() Summary {
	s := Summary{
		Vehicle:     t.Vehicle,
		PoseSamples: rows(t.Pos),
		RefSamples:  rows(t.PosRef),
		RMSError:    math.NaN(),
		MaxError:    math.NaN(),
	}
	if s.PoseSamples == 0 || s.RefSamples == 0 {
		return s
	}

	// references ordered by stamp
	order := make([]int, s.RefSamples)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.PosRef.At(order[a], 0) < t.PosRef.At(order[b], 0)
	})

	var sq []float64
	maxErr := 0.0
	for i := 0; i < s.PoseSamples; i++ {
		ts, p := point(t.Pos, i)
		k := sort.Search(len(order), func(j int) bool {
			return t.PosRef.At(order[j], 0) > ts
		})
		if k == 0 {
			continue
		}
		_, ref := point(t.PosRef, order[k-1])
		d := r3.Norm(r3.Sub(p, ref))
		sq = append(sq, d*d)
		maxErr = math.Max(maxErr, d)
	}
	s.Paired = len(sq)
	if s.Paired > 0 {
		s.RMSError = math.Sqrt(stat.Mean(sq, nil))
		s.MaxError = maxErr
	}
	return s
}
