package interfaces

import (
	"context"

	"github.com/bobmcallan/sharesrus/internal/models"
)

// ChartService builds aligned chart datasets.
type ChartService interface {
	// BuildChart returns the chart for portfolioID over r, with an optional
	// comparison series. When only the comparison fetch fails the primary-only
	// dataset is returned together with the error; a nil dataset means total failure.
	BuildChart(ctx context.Context, portfolioID string, r models.TimeRange, comparisonID string) (*models.ChartDataset, error)
}

// ViewPublisher receives view events for delivery to connected UIs.
type ViewPublisher interface {
	Publish(event models.ViewEvent)
}
