package models

import "fmt"

// Series display names and colours.
const (
	PrimarySeriesLabel = "Portfolio Value"

	PrimaryBorderColor        = "#c07830"
	PrimaryBackgroundColor    = "#f5e6d6"
	ComparisonBorderColor     = "#36A2EB"
	ComparisonBackgroundColor = "#9AD0F5"
)

// ComparisonSeriesLabel names the secondary series.
func ComparisonSeriesLabel(comparisonID string) string {
	return fmt.Sprintf("Comparison (%s)", comparisonID)
}

// ChartSeries is one line on the chart. Data is aligned to ChartDataset.Labels
// by index and may be shorter than Labels when the series has trailing gaps.
type ChartSeries struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
}

// ChartDataset is the aligned multi-series chart payload.
type ChartDataset struct {
	PortfolioID  string        `json:"portfolio_id"`
	Range        TimeRange     `json:"range"`
	ComparisonID string        `json:"comparison_id,omitempty"`
	Labels       []string      `json:"labels"`
	Datasets     []ChartSeries `json:"datasets"`
}

// Clone returns a deep copy.
func (c *ChartDataset) Clone() *ChartDataset {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Labels = make([]string, len(c.Labels))
	copy(cp.Labels, c.Labels)
	cp.Datasets = make([]ChartSeries, len(c.Datasets))
	for i, s := range c.Datasets {
		data := make([]float64, len(s.Data))
		copy(data, s.Data)
		s.Data = data
		cp.Datasets[i] = s
	}
	return &cp
}
