// Package view implements the per-owner portfolio views: the state machine
// driving portfolio and chart loads, the generation guard discarding
// superseded responses, and the wiring of each view into the subscription
// reconciler and valuation store.
package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/sharesrus/internal/common"
	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
	"github.com/bobmcallan/sharesrus/internal/services/subscription"
	"github.com/bobmcallan/sharesrus/internal/services/valuation"
)

// DefaultFetchTimeout bounds each load or mutation round-trip.
const DefaultFetchTimeout = 30 * time.Second

// Manager owns every open view.
type Manager struct {
	store      *valuation.Store
	charts     interfaces.ChartService
	reconciler *subscription.Reconciler
	dispatcher *subscription.Dispatcher
	publisher  interfaces.ViewPublisher
	logger     *common.Logger

	now          func() time.Time
	newID        func() string
	fetchTimeout time.Duration

	mu    sync.RWMutex
	views map[string]*View
}

// Option configures the manager.
type Option func(*Manager)

// WithPublisher sets where view events are pushed.
func WithPublisher(p interfaces.ViewPublisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithClock overrides the clock used for notifications and staleness.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides view id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// WithFetchTimeout bounds each load or mutation.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// NewManager creates a view manager.
func NewManager(
	store *valuation.Store,
	charts interfaces.ChartService,
	reconciler *subscription.Reconciler,
	dispatcher *subscription.Dispatcher,
	logger *common.Logger,
	opts ...Option,
) *Manager {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	m := &Manager{
		store:        store,
		charts:       charts,
		reconciler:   reconciler,
		dispatcher:   dispatcher,
		publisher:    noopPublisher{},
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		fetchTimeout: DefaultFetchTimeout,
		views:        make(map[string]*View),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates an idle view with the default range.
func (m *Manager) Open() *View {
	id := m.newID()
	v := &View{
		id:     id,
		m:      m,
		logger: m.logger.WithStr("view_id", id),
		state:  models.ViewIdle,
		rng:    models.DefaultRange,
	}

	m.mu.Lock()
	m.views[v.id] = v
	m.mu.Unlock()

	v.logger.Info().Msg("View opened")
	v.mu.Lock()
	v.publishSnapshotLocked()
	v.mu.Unlock()
	return v
}

// Get returns an open view.
func (m *Manager) Get(id string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("view", id)
	}
	return v, nil
}

// Close tears a view down, releasing its subscriptions and tracked portfolio.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	v, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("view", id)
	}
	v.close()
	return nil
}

// CloseAll closes every view. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for id, v := range m.views {
		views = append(views, v)
		delete(m.views, id)
	}
	m.mu.Unlock()

	for _, v := range views {
		v.close()
	}
}

// Count returns the number of open views.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// List returns a snapshot of every open view, sorted by id.
func (m *Manager) List() []*models.ViewSnapshot {
	views := m.all()
	out := make([]*models.ViewSnapshot, 0, len(views))
	for _, v := range views {
		out = append(out, v.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Portfolios lists comparison candidates.
func (m *Manager) Portfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	return m.store.ListPortfolios(ctx)
}

// NotifyAll appends a notification to every open view.
func (m *Manager) NotifyAll(level models.NotificationLevel, message string) {
	for _, v := range m.all() {
		v.notify(level, message)
	}
}

// portfolioChanged brings other views showing or comparing against
// portfolioID in line after a mutation made through origin.
func (m *Manager) portfolioChanged(portfolioID, origin string, deleted bool) {
	for _, v := range m.all() {
		if v.id == origin {
			continue
		}
		v.portfolioChanged(portfolioID, deleted)
	}
}

func (m *Manager) all() []*View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	return views
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.ViewEvent) {}
