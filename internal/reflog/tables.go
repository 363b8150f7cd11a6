package reflog

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TableWriter stores one named N×4 table. tablefile.File implements it.
type TableWriter interface {
	WriteTable(path string, m *mat.Dense) error
}

// TablePath is the name of the table holding one series of a vehicle.
func TablePath(vehicle string, s Series) string {
	return vehicle + "/" + s.String()
}

// Dense copies samples into an N×4 matrix; nil when there are none.
func Dense(samples []Sample) *mat.Dense {
	if len(samples) == 0 {
		return nil
	}
	data := make([]float64, 0, 4*len(samples))
	for _, s := range samples {
		data = append(data, s[:]...)
	}
	return mat.NewDense(len(samples), 4, data)
}

// WriteTables writes every populated series of b, vehicles sorted by id and
// series in table order, and returns the paths written.
func WriteTables(w TableWriter, b *Bucket) ([]string, error) {
	var paths []string
	for _, id := range b.VehicleIDs() {
		for _, s := range b.SeriesOf(id) {
			path := TablePath(id, s)
			if err := w.WriteTable(path, Dense(b.Samples(id, s))); err != nil {
				return paths, fmt.Errorf("failed to write %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}
