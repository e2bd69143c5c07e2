// Package valuation holds the in-memory snapshot of viewed portfolios and
// merges streamed prices into it.
package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/sharesrus/internal/common"
	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

type entry struct {
	portfolio *models.Portfolio
	refs      int
}

// Store is the sole mutator of fetched portfolio records. Each tracked
// portfolio is reference counted by the views showing it. Reads return
// clones, so a reader never observes a half-applied update.
//
// Every confirmed mutation advances the portfolio's version. A fetch that
// read the version before the mutation cannot be committed afterwards.
type Store struct {
	client interfaces.DataServiceClient
	cache  interfaces.HistoryCache
	logger *common.Logger
	now    func() time.Time

	mu       sync.RWMutex
	entries  map[string]*entry
	versions map[string]uint64
}

// Option configures the store.
type Option func(*Store)

// WithHistoryCache sets the cache invalidated after mutations.
func WithHistoryCache(cache interfaces.HistoryCache) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

// WithClock overrides the clock used when no arrival time is supplied.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store backed by the data service client.
func NewStore(client interfaces.DataServiceClient, logger *common.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	s := &Store{
		client:  client,
		logger:  logger,
		now:     time.Now,
		entries:  make(map[string]*entry),
		versions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch loads a portfolio from the data service without tracking it.
func (s *Store) Fetch(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	p, err := s.client.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewFetchFailure("fetch portfolio data", err)
	}
	p.Recompute()
	return p, nil
}

// ListPortfolios returns the portfolios available for comparison.
func (s *Store) ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	list, err := s.client.ListPortfolios(ctx)
	if err != nil {
		return nil, apperrors.NewFetchFailure("list portfolios", err)
	}
	return list, nil
}

// Version returns the number of confirmed mutations seen for portfolioID.
func (s *Store) Version(portfolioID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[portfolioID]
}

// Commit stores p as the tracked state if the portfolio is still at version.
// With acquire set it also takes a reference. A view that already holds a
// reference whose entry was dropped gets the entry back. Returns false,
// changing nothing, when a mutation has been confirmed since version was read.
func (s *Store) Commit(p *models.Portfolio, version uint64, acquire bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versions[p.ID] != version {
		return false
	}
	e, ok := s.entries[p.ID]
	if !ok {
		e = &entry{}
		s.entries[p.ID] = e
	}
	if acquire || !ok {
		e.refs++
	}
	e.portfolio = p.Clone()
	return true
}

// Release drops one reference, forgetting the portfolio at zero.
func (s *Store) Release(portfolioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[portfolioID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, portfolioID)
	}
}

// Get returns a copy of a tracked portfolio, or nil.
func (s *Store) Get(portfolioID string) *models.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[portfolioID]; ok {
		return e.portfolio.Clone()
	}
	return nil
}

// Symbols returns the unique symbols of a tracked portfolio.
func (s *Store) Symbols(portfolioID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[portfolioID]; ok && e.portfolio != nil {
		return e.portfolio.Symbols()
	}
	return nil
}

// Tracked returns the number of portfolios currently held.
func (s *Store) Tracked() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ApplyUpdate merges a price into every tracked portfolio in scope that holds
// the symbol. Updates are applied unconditionally in arrival order. Returns
// the ids of portfolios that changed.
func (s *Store) ApplyUpdate(scope []string, upd models.PriceUpdate) []string {
	at := upd.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, id := range scope {
		e, ok := s.entries[id]
		if !ok || e.portfolio == nil {
			continue
		}
		if e.portfolio.ApplyPrice(upd.Symbol, upd.Price, at) > 0 {
			changed = append(changed, id)
		}
	}
	return changed
}

// AddAsset adds an asset through the data service and replaces the tracked
// portfolio with a fresh fetch.
func (s *Store) AddAsset(ctx context.Context, portfolioID string, asset models.NewAsset) (*models.Portfolio, error) {
	if err := s.client.AddAsset(ctx, portfolioID, asset); err != nil {
		return nil, apperrors.NewMutationFailure("add asset", err)
	}
	version := s.bump(portfolioID)
	s.invalidate(ctx, portfolioID)
	return s.refetch(ctx, portfolioID, version)
}

// RemoveAsset removes an asset through the data service and replaces the
// tracked portfolio with a fresh fetch.
func (s *Store) RemoveAsset(ctx context.Context, portfolioID, assetID string) (*models.Portfolio, error) {
	if err := s.client.RemoveAsset(ctx, portfolioID, assetID); err != nil {
		return nil, apperrors.NewMutationFailure("remove asset", err)
	}
	version := s.bump(portfolioID)
	s.invalidate(ctx, portfolioID)
	return s.refetch(ctx, portfolioID, version)
}

// UpdatePortfolio edits name/description and replaces the tracked portfolio
// with the service's response.
func (s *Store) UpdatePortfolio(ctx context.Context, portfolioID string, edit models.PortfolioEdit) (*models.Portfolio, error) {
	p, err := s.client.UpdatePortfolio(ctx, portfolioID, edit)
	if err != nil {
		return nil, apperrors.NewMutationFailure("update portfolio", err)
	}
	version := s.bump(portfolioID)
	p.Recompute()
	s.replaceAt(p, version)
	return p.Clone(), nil
}

// DeletePortfolio deletes a portfolio through the data service and drops its
// tracked state regardless of outstanding references.
func (s *Store) DeletePortfolio(ctx context.Context, portfolioID string) error {
	if err := s.client.DeletePortfolio(ctx, portfolioID); err != nil {
		return apperrors.NewMutationFailure("delete portfolio", err)
	}
	s.invalidate(ctx, portfolioID)

	s.mu.Lock()
	s.versions[portfolioID]++
	delete(s.entries, portfolioID)
	s.mu.Unlock()
	return nil
}

func (s *Store) bump(portfolioID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[portfolioID]++
	return s.versions[portfolioID]
}

// replaceAt overwrites a tracked portfolio still at version. A refetch overtaken by a later
// mutation leaves that mutation's state in place.
func (s *Store) replaceAt(p *models.Portfolio, version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[p.ID]
	if !ok || s.versions[p.ID] != version {
		return false
	}
	e.portfolio = p.Clone()
	return true
}

func (s *Store) refetch(ctx context.Context, portfolioID string, version uint64) (*models.Portfolio, error) {
	p, err := s.Fetch(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if !s.replaceAt(p, version) {
		s.logger.Debug().Str("portfolio_id", portfolioID).Uint64("version", version).Msg("Refetch superseded by a later mutation")
	}
	return p.Clone(), nil
}

func (s *Store) invalidate(ctx context.Context, portfolioID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, portfolioID); err != nil {
		s.logger.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to invalidate history cache")
	}
}
