package historycache

import (
	"context"
	"errors"

	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

var _ interfaces.HistorySource = (*CachedSource)(nil)

// CachedSource is a read-through HistorySource. Cache failures degrade to
// the underlying source and are only logged.
type CachedSource struct {
	source interfaces.HistorySource
	cache  interfaces.HistoryCache
	logger *common.Logger
}

// NewCachedSource wraps source with cache.
func NewCachedSource(source interfaces.HistorySource, cache interfaces.HistoryCache, logger *common.Logger) *CachedSource {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &CachedSource{source: source, cache: cache, logger: logger}
}

// GetPortfolioHistory serves from cache when present, otherwise fetches and
// stores. A result fetched across an invalidation is returned but not stored.
func (s *CachedSource) GetPortfolioHistory(ctx context.Context, portfolioID string, r models.TimeRange) ([]models.HistoryPoint, error) {
	points, found, err := s.cache.Get(ctx, portfolioID, r)
	if err != nil {
		s.logger.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("History cache read failed")
	} else if found {
		return points, nil
	}

	epoch, epochErr := s.cache.Epoch(ctx, portfolioID)

	points, err = s.source.GetPortfolioHistory(ctx, portfolioID, r)
	if err != nil {
		return nil, err
	}

	if epochErr != nil {
		s.logger.Warn().Err(epochErr).Str("portfolio_id", portfolioID).Msg("History cache epoch read failed, not caching")
		return points, nil
	}
	err = s.cache.Set(ctx, portfolioID, r, points, epoch)
	switch {
	case errors.Is(err, ErrStaleEpoch):
		s.logger.Debug().Str("portfolio_id", portfolioID).Str("range", string(r)).Msg("History invalidated during fetch, not caching")
	case err != nil:
		s.logger.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("History cache write failed")
	}
	return points, nil
}
