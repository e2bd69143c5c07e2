// Package chart composes historical value series into aligned chart datasets.
package chart

import (
	"context"
	"sync"

	"github.com/bobmcallan/sharesrus/internal/common"
	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

var _ interfaces.ChartService = (*Aggregator)(nil)

// Aggregator builds ChartDatasets from a HistorySource.
type Aggregator struct {
	source interfaces.HistorySource
	logger *common.Logger
}

// NewAggregator creates an aggregator reading series from source.
func NewAggregator(source interfaces.HistorySource, logger *common.Logger) *Aggregator {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Aggregator{source: source, logger: logger}
}

type seriesResult struct {
	points []models.HistoryPoint
	err    error
}

// BuildChart fetches the primary series (and the comparison series when
// comparisonID is set) concurrently and aligns them on the primary's labels.
//
// A failed comparison fetch yields the primary-only dataset together with a
// FetchFailure. A failed primary fetch returns nil.
func (a *Aggregator) BuildChart(ctx context.Context, portfolioID string, r models.TimeRange, comparisonID string) (*models.ChartDataset, error) {
	if !r.Valid() {
		return nil, apperrors.NewInvalidInputError("range", string(r))
	}

	var (
		wg         sync.WaitGroup
		primary    seriesResult
		comparison seriesResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		primary.points, primary.err = a.source.GetPortfolioHistory(ctx, portfolioID, r)
	}()

	if comparisonID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comparison.points, comparison.err = a.source.GetPortfolioHistory(ctx, comparisonID, r)
		}()
	}

	wg.Wait()

	if primary.err != nil {
		a.logger.Warn().Err(primary.err).Str("portfolio_id", portfolioID).Str("range", string(r)).Msg("Primary history fetch failed")
		return nil, apperrors.NewFetchFailure("fetch chart data", primary.err)
	}

	ds := Align(portfolioID, r, primary.points)

	if comparisonID == "" {
		return ds, nil
	}

	if comparison.err != nil {
		a.logger.Warn().Err(comparison.err).Str("comparison_id", comparisonID).Str("range", string(r)).Msg("Comparison history fetch failed")
		return ds, apperrors.NewFetchFailure("fetch comparison data", comparison.err)
	}

	ds.ComparisonID = comparisonID
	ds.Datasets = append(ds.Datasets, comparisonSeries(comparisonID, len(ds.Labels), comparison.points))
	return ds, nil
}

// Align builds a single-series dataset whose labels are the primary's dates.
// Empty history yields empty (non-nil) labels and data.
func Align(portfolioID string, r models.TimeRange, points []models.HistoryPoint) *models.ChartDataset {
	labels := make([]string, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		labels[i] = p.Date
		values[i] = p.Value
	}

	return &models.ChartDataset{
		PortfolioID: portfolioID,
		Range:       r,
		Labels:      labels,
		Datasets: []models.ChartSeries{{
			Label:           models.PrimarySeriesLabel,
			Data:            values,
			BorderColor:     models.PrimaryBorderColor,
			BackgroundColor: models.PrimaryBackgroundColor,
		}},
	}
}

// comparisonSeries maps the comparison points onto the label axis by index.
// Shorter series stay short; points beyond the axis are dropped.
func comparisonSeries(comparisonID string, axis int, points []models.HistoryPoint) models.ChartSeries {
	n := len(points)
	if n > axis {
		n = axis
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = points[i].Value
	}
	return models.ChartSeries{
		Label:           models.ComparisonSeriesLabel(comparisonID),
		Data:            values,
		BorderColor:     models.ComparisonBorderColor,
		BackgroundColor: models.ComparisonBackgroundColor,
	}
}
