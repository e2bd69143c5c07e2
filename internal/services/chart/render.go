package chart

import (
	"bytes"
	"fmt"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/sharesrus/internal/models"
)

// RenderOptions sizes the rendered image.
type RenderOptions struct {
	Width  int
	Height int
}

// DefaultRenderOptions matches the [chart] config defaults.
var DefaultRenderOptions = RenderOptions{Width: 900, Height: 400}

// RenderPNG renders a dataset as a PNG line chart, one line per series.
// Series are plotted against label index; x ticks show the date labels.
// Returns raw PNG bytes.
func RenderPNG(ds *models.ChartDataset, opts RenderOptions) ([]byte, error) {
	if ds == nil || len(ds.Datasets) == 0 {
		return nil, fmt.Errorf("no chart data")
	}
	if len(ds.Labels) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(ds.Labels))
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultRenderOptions
	}

	series := make([]gochart.Series, 0, len(ds.Datasets))
	for i, s := range ds.Datasets {
		if len(s.Data) < 2 {
			continue
		}
		xs := make([]float64, len(s.Data))
		for j := range s.Data {
			xs[j] = float64(j)
		}
		style := gochart.Style{
			StrokeColor: drawing.ColorFromHex(trimHash(s.BorderColor)),
			StrokeWidth: 2.5,
		}
		if i > 0 {
			style.StrokeWidth = 1.5
			style.StrokeDashArray = []float64{5.0, 3.0}
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    s.Label,
			Style:   style,
			XValues: xs,
			YValues: s.Data,
		})
	}

	labels := ds.Labels
	graph := gochart.Chart{
		Title:  fmt.Sprintf("%s (%s)", ds.PortfolioID, ds.Range),
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: gochart.XAxis{
			Ticks: xTicks(labels, 6),
		},
		YAxis: gochart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					if f >= 1000 || f <= -1000 {
						return fmt.Sprintf("$%.1fk", f/1000)
					}
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []gochart.Renderable{
		gochart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// xTicks spreads at most max date labels evenly across the axis.
func xTicks(labels []string, max int) []gochart.Tick {
	n := len(labels)
	step := 1
	if n > max {
		step = (n + max - 1) / max
	}
	ticks := make([]gochart.Tick, 0, max+1)
	for i := 0; i < n; i += step {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: labels[i]})
	}
	if last := float64(n - 1); ticks[len(ticks)-1].Value != last {
		ticks = append(ticks, gochart.Tick{Value: last, Label: labels[n-1]})
	}
	return ticks
}

func trimHash(hex string) string {
	if len(hex) > 0 && hex[0] == '#' {
		return hex[1:]
	}
	return hex
}
