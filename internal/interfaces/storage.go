package interfaces

import (
	"context"

	"github.com/bobmcallan/sharesrus/internal/models"
)

// HistoryCache stores whole history series keyed by portfolio and range.
type HistoryCache interface {
	// Get returns the cached series; found is false on a miss
	Get(ctx context.Context, portfolioID string, r models.TimeRange) (points []models.HistoryPoint, found bool, err error)

	// Epoch returns the number of invalidations seen for a portfolio
	Epoch(ctx context.Context, portfolioID string) (uint64, error)

	// Set stores a series unless the portfolio was invalidated after epoch was read
	Set(ctx context.Context, portfolioID string, r models.TimeRange, points []models.HistoryPoint, epoch uint64) error

	// Invalidate drops every cached range for a portfolio and advances its epoch
	Invalidate(ctx context.Context, portfolioID string) error

	// Close releases the underlying connection
	Close() error
}
