package trackplot

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/mat"
)

func lineData(m *mat.Dense, col int) []opts.LineData {
	n := rows(m)
	data := make([]opts.LineData, n)
	for i := 0; i < n; i++ {
		data[i] = opts.LineData{Value: []interface{}{m.At(i, 0), m.At(i, col)}}
	}
	return data
}

func errorBars(tracks []Track) *charts.Bar {
	names := make([]string, len(tracks))
	rms := make([]opts.BarData, len(tracks))
	for i, t := range tracks {
		s := t.Summary()
		names[i] = t.Vehicle
		v := s.RMSError
		if math.IsNaN(v) {
			v = 0
		}
		rms[i] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tracking error", Subtitle: "RMS distance to the reference in force (m)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("rms", rms,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}

func trackLines(t Track) *charts.Line {
	line := charts.NewLine()
	s := t.Summary()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    t.Vehicle,
			Subtitle: fmt.Sprintf("poses=%d refs=%d rms=%.3fm", s.PoseSamples, s.RefSamples, s.RMSError),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "m"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	for axis := 0; axis < 3; axis++ {
		if rows(t.Pos) > 0 {
			line.AddSeries(axisNames[axis], lineData(t.Pos, axis+1),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		}
		if rows(t.PosRef) > 0 {
			line.AddSeries(axisNames[axis]+"_ref", lineData(t.PosRef, axis+1),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		}
	}
	return line
}

// WriteHTML renders a report page: a bar chart of RMS tracking error per
// vehicle followed by one time series chart per vehicle.
func WriteHTML(w io.Writer, tracks []Track) error {
	page := components.NewPage()
	page.PageTitle = "Tracking report"
	page.AddCharts(errorBars(tracks))
	for _, t := range tracks {
		page.AddCharts(trackLines(t))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
