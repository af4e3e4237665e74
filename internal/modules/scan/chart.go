package scan

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/aristath/folio/internal/modules/snapshots"
)

// renderValueChart renders the snapshot value series as PNG bytes.
func renderValueChart(snaps []snapshots.Snapshot, currency string) ([]byte, error) {
	if len(snaps) < 2 {
		return nil, fmt.Errorf("need at least 2 snapshots, got %d", len(snaps))
	}

	xValues := make([]time.Time, 0, len(snaps))
	yValues := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		date, err := time.Parse("2006-01-02", s.SnapshotDate)
		if err != nil {
			continue
		}
		xValues = append(xValues, date)
		yValues = append(yValues, s.TotalValue)
	}
	if len(xValues) < 2 {
		return nil, fmt.Errorf("need at least 2 dated snapshots, got %d", len(xValues))
	}

	series := chart.TimeSeries{
		Name: "Portfolio Value",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Portfolio value, %s", currency),
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 2")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
