// Package trajectory loads precomputed multi-vehicle trajectories.
//
// A trajectory set is three CSV files sharing a naming convention: a position
// file (for example pos_cf.csv) and its velocity and acceleration companions
// (vel_cf.csv, acc_cf.csv). Each file is a rectangular table of floats, one
// row per sample at an implicit fixed interval and three columns (x, y, z)
// per vehicle.
package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrColumnCount is returned when a table's width is not a positive multiple of 3.
	ErrColumnCount = errors.New("column count is not a multiple of 3")
	// ErrRowMismatch is returned when the position, velocity and acceleration
	// tables do not have the same shape.
	ErrRowMismatch = errors.New("pos/vel/acc tables differ in shape")
	// ErrRagged is returned when the rows of one table differ in width.
	ErrRagged = errors.New("rows have different column counts")
	// ErrEmpty is returned for a table without any rows.
	ErrEmpty = errors.New("table has no rows")
)

// Vehicle holds one vehicle's block of the trajectory set. All three matrices
// are N×3 with identical N.
type Vehicle struct {
	Pos *mat.Dense
	Vel *mat.Dense
	Acc *mat.Dense
}

// Samples returns the number of time samples.
func (v Vehicle) Samples() int {
	r, _ := v.Pos.Dims()
	return r
}

// At returns the position, velocity and acceleration of sample k.
func (v Vehicle) At(k int) (pos, vel, acc r3.Vec) {
	return row(v.Pos, k), row(v.Vel, k), row(v.Acc, k)
}

func row(m *mat.Dense, k int) r3.Vec {
	return r3.Vec{X: m.At(k, 0), Y: m.At(k, 1), Z: m.At(k, 2)}
}

// CompanionPaths derives the velocity and acceleration file paths from the
// position file path by replacing "pos" with "vel" and "acc" in the file
// name. The directory part is left alone.
func CompanionPaths(posPath string) (velPath, accPath string, err error) {
	dir, name := filepath.Split(posPath)
	if !strings.Contains(name, "pos") {
		return "", "", fmt.Errorf("position file name %q does not contain \"pos\"", name)
	}
	velPath = dir + strings.ReplaceAll(name, "pos", "vel")
	accPath = dir + strings.ReplaceAll(name, "pos", "acc")
	return velPath, accPath, nil
}

// ReadTable parses comma-delimited floating point rows into a matrix. Blank
// lines are skipped and fields may carry surrounding whitespace.
func ReadTable(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // checked below to report ErrRagged
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		data []float64
		cols int
		rows int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if rows == 0 {
			cols = len(rec)
		} else if len(rec) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", rows+1, len(rec), cols, ErrRagged)
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: failed to parse %q: %w", rows+1, j+1, field, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, ErrEmpty
	}
	return mat.NewDense(rows, cols, data), nil
}

// ReadFile opens path and parses it with ReadTable.
func ReadFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Split cuts a table into per-vehicle N×3 blocks, preserving row order.
func Split(m *mat.Dense) ([]*mat.Dense, error) {
	rows, cols := m.Dims()
	if cols == 0 || cols%3 != 0 {
		return nil, fmt.Errorf("%d columns: %w", cols, ErrColumnCount)
	}
	blocks := make([]*mat.Dense, cols/3)
	for i := range blocks {
		blocks[i] = mat.DenseCopyOf(m.Slice(0, rows, 3*i, 3*i+3))
	}
	return blocks, nil
}

// Load reads the position file at posPath and its velocity and acceleration
// companions and returns one Vehicle per three-column block.
func Load(posPath string) ([]Vehicle, error) {
	velPath, accPath, err := CompanionPaths(posPath)
	if err != nil {
		return nil, err
	}

	var tables [3]*mat.Dense
	for i, p := range []string{posPath, velPath, accPath} {
		if tables[i], err = ReadFile(p); err != nil {
			return nil, err
		}
	}
	return Assemble(tables[0], tables[1], tables[2])
}

// Assemble validates that the three tables share a shape and splits them into
// per-vehicle blocks.
func Assemble(pos, vel, acc *mat.Dense) ([]Vehicle, error) {
	pr, pc := pos.Dims()
	for _, t := range []struct {
		name string
		m    *mat.Dense
	}{{"vel", vel}, {"acc", acc}} {
		r, c := t.m.Dims()
		if r != pr || c != pc {
			return nil, fmt.Errorf("%s is %dx%d, pos is %dx%d: %w", t.name, r, c, pr, pc, ErrRowMismatch)
		}
	}

	posBlocks, err := Split(pos)
	if err != nil {
		return nil, err
	}
	velBlocks, _ := Split(vel)
	accBlocks, _ := Split(acc)

	vehicles := make([]Vehicle, len(posBlocks))
	for i := range vehicles {
		vehicles[i] = Vehicle{Pos: posBlocks[i], Vel: velBlocks[i], Acc: accBlocks[i]}
	}
	return vehicles, nil
}
