package trajectory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestCompanionPaths(t *testing.T) {
	tests := []struct {
		name    string
		pos     string
		wantVel string
		wantAcc string
		wantErr bool
	}{
		{"plain", "pos_cf.csv", "vel_cf.csv", "acc_cf.csv", false},
		{"directory untouched", filepath.Join("pos_runs", "pos_cf.csv"), filepath.Join("pos_runs", "vel_cf.csv"), filepath.Join("pos_runs", "acc_cf.csv"), false},
		{"suffix", "traj_pos.csv", "traj_vel.csv", "traj_acc.csv", false},
		{"no pos", "trajectory.csv", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vel, acc, err := CompanionPaths(tt.pos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVel, vel)
			assert.Equal(t, tt.wantAcc, acc)
		})
	}
}

func TestReadTable(t *testing.T) {
	m, err := ReadTable(strings.NewReader("0, 1.5,2\n\n3,4,-5e-1\n"))
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{3, 4, -0.5}, m.RawRowView(1))
}

func TestReadTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrEmpty},
		{"ragged", "1,2,3\n1,2\n", ErrRagged},
		{"not a number", "1,2,x\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	m := mat.NewDense(2, 6, []float64{
		1, 2, 3, 10, 20, 30,
		4, 5, 6, 40, 50, 60,
	})
	blocks, err := Split(m)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.True(t, mat.Equal(blocks[0], mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})))
	assert.True(t, mat.Equal(blocks[1], mat.NewDense(2, 3, []float64{10, 20, 30, 40, 50, 60})))

	// blocks are copies, not views into the source table
	m.Set(0, 0, 99)
	assert.Equal(t, 1.0, blocks[0].At(0, 0))
}

func TestSplit_ColumnCount(t *testing.T) {
	for _, cols := range []int{1, 2, 4, 5, 7} {
		m := mat.NewDense(1, cols, nil)
		_, err := Split(m)
		assert.ErrorIs(t, err, ErrColumnCount, "cols=%d", cols)
	}
}

func TestSplit_BlockCountProperty(t *testing.T) {
	for n := 1; n <= 5; n++ {
		rows := 7
		m := mat.NewDense(rows, 3*n, nil)
		blocks, err := Split(m)
		require.NoError(t, err)
		require.Len(t, blocks, n)
		for _, b := range blocks {
			r, c := b.Dims()
			assert.Equal(t, rows, r)
			assert.Equal(t, 3, c)
		}
	}
}

func TestLoad_SingleVehicle(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "pos_cf.csv", "0,0,0\n1,1,1\n2,2,2\n")
	zeros := "0,0,0\n0,0,0\n0,0,0\n"
	writeFile(t, dir, "vel_cf.csv", zeros)
	writeFile(t, dir, "acc_cf.csv", zeros)

	vehicles, err := Load(pos)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)

	v := vehicles[0]
	assert.Equal(t, 3, v.Samples())
	assert.True(t, mat.Equal(v.Pos, mat.NewDense(3, 3, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})))
	assert.True(t, mat.Equal(v.Vel, mat.NewDense(3, 3, nil)))
	assert.True(t, mat.Equal(v.Acc, mat.NewDense(3, 3, nil)))

	p, vel, acc := v.At(2)
	assert.Equal(t, r3.Vec{X: 2, Y: 2, Z: 2}, p)
	assert.Equal(t, r3.Vec{}, vel)
	assert.Equal(t, r3.Vec{}, acc)
}

func TestLoad_TwoVehicles(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "pos_swarm.csv", "0,0,1,5,5,1\n0.1,0,1,5,5.1,1\n")
	writeFile(t, dir, "vel_swarm.csv", "1,0,0,0,1,0\n1,0,0,0,1,0\n")
	writeFile(t, dir, "acc_swarm.csv", "0,0,0,0,0,0\n0,0,0,0,0,0\n")

	vehicles, err := Load(pos)
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	p, vel, _ := vehicles[1].At(1)
	assert.Equal(t, r3.Vec{X: 5, Y: 5.1, Z: 1}, p)
	assert.Equal(t, r3.Vec{Y: 1}, vel)
}

func TestLoad_RowMismatch(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "pos_cf.csv", "0,0,0\n1,1,1\n2,2,2\n")
	writeFile(t, dir, "vel_cf.csv", "0,0,0\n0,0,0\n")
	writeFile(t, dir, "acc_cf.csv", "0,0,0\n0,0,0\n0,0,0\n")

	_, err := Load(pos)
	assert.ErrorIs(t, err, ErrRowMismatch)
}

func TestLoad_ColumnCount(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "pos_cf.csv", "0,0\n1,1\n")
	writeFile(t, dir, "vel_cf.csv", "0,0\n0,0\n")
	writeFile(t, dir, "acc_cf.csv", "0,0\n0,0\n")

	_, err := Load(pos)
	assert.ErrorIs(t, err, ErrColumnCount)
}

func TestLoad_MissingCompanion(t *testing.T) {
	dir := t.TempDir()
	pos := writeFile(t, dir, "pos_cf.csv", "0,0,0\n")
	writeFile(t, dir, "vel_cf.csv", "0,0,0\n")

	_, err := Load(pos)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
