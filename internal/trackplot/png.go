package trackplot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/banshee-data/swarm.tools/internal/security"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var axisColors = [3]color.Color{
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
}

var axisNames = [3]string{"x", "y", "z"}

// column returns (t, m[:, col]) as plot points.
func column(m *mat.Dense, col int) plotter.XYs {
	n := rows(m)
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i] = plotter.XY{X: m.At(i, 0), Y: m.At(i, col)}
	}
	return pts
}

// SavePNG draws measured (solid) and commanded (dashed) x, y and z against
// time into dir/<vehicle>_tracking.png and returns the file name. The
// vehicle id is sanitised before it becomes part of the file name.
func SavePNG(dir string, t Track) (string, error) {
	if rows(t.Pos) == 0 && rows(t.PosRef) == 0 {
		return "", fmt.Errorf("%s: nothing to plot", t.Vehicle)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	file := filepath.Join(dir, security.SanitizeFilename(t.Vehicle)+"_tracking.png")
	if err := security.ValidatePathWithinDirectory(file, dir); err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s tracking", t.Vehicle)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Position (m)"
	p.Add(plotter.NewGrid())

	for axis := 0; axis < 3; axis++ {
		if rows(t.Pos) > 0 {
			line, err := plotter.NewLine(column(t.Pos, axis+1))
			if err != nil {
				return "", fmt.Errorf("create %s line: %w", axisNames[axis], err)
			}
			line.Color = axisColors[axis]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(axisNames[axis], line)
		}
		if rows(t.PosRef) > 0 {
			line, err := plotter.NewLine(column(t.PosRef, axis+1))
			if err != nil {
				return "", fmt.Errorf("create %s_ref line: %w", axisNames[axis], err)
			}
			line.Color = axisColors[axis]
			line.Width = vg.Points(1)
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(line)
			p.Legend.Add(axisNames[axis]+"_ref", line)
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(12*vg.Inch, 5*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save tracking plot: %w", err)
	}
	return file, nil
}
