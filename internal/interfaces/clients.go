// Package interfaces defines service contracts for the sharesrus service
package interfaces

import (
	"context"

	"github.com/bobmcallan/sharesrus/internal/models"
)

// DataServiceClient provides access to the remote portfolio data service.
// The service owns all portfolio and asset records.
type DataServiceClient interface {
	HistorySource

	// GetPortfolio retrieves a portfolio with its assets
	GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error)

	// ListPortfolios retrieves all portfolios, used for comparison candidates
	ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error)

	// AddAsset adds an asset to a portfolio
	AddAsset(ctx context.Context, portfolioID string, asset models.NewAsset) error

	// RemoveAsset removes an asset from a portfolio
	RemoveAsset(ctx context.Context, portfolioID, assetID string) error

	// UpdatePortfolio edits name and/or description and returns the updated portfolio
	UpdatePortfolio(ctx context.Context, portfolioID string, edit models.PortfolioEdit) (*models.Portfolio, error)

	// DeletePortfolio deletes a portfolio
	DeletePortfolio(ctx context.Context, portfolioID string) error
}

// HistorySource provides historical portfolio value series.
type HistorySource interface {
	// GetPortfolioHistory retrieves the ordered value series for a range
	GetPortfolioHistory(ctx context.Context, portfolioID string, r models.TimeRange) ([]models.HistoryPoint, error)
}

// PriceTransport is the push price source. Commands are fire-and-forget:
// they never block and are never acknowledged. Delivery is at-most-once.
type PriceTransport interface {
	Subscribe(symbol string)
	Unsubscribe(symbol string)

	// OnUpdate registers the single update handler, replacing any previous one
	OnUpdate(handler models.PriceHandler)

	// OffUpdate clears the registered handler
	OffUpdate()
}
