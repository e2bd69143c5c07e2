// Package common provides shared test infrastructure
package common

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

var (
	_ interfaces.DataServiceClient = (*MockDataService)(nil)
	_ interfaces.PriceTransport    = (*MockPriceTransport)(nil)
)

// MockError is an upstream failure carrying an HTTP status.
type MockError struct {
	Status  int
	Message string
}

func (e *MockError) Error() string { return e.Message }

// HTTPStatus returns the carried status.
func (e *MockError) HTTPStatus() int { return e.Status }

// MockDataService implements DataServiceClient in memory. It is safe for
// concurrent use. Hooks run before the corresponding call and may block;
// After hooks run once the result has been read.
type MockDataService struct {
	mu sync.Mutex

	Portfolios map[string]*models.Portfolio
	History    map[string][]models.HistoryPoint // key: id + "|" + range

	GetErr     map[string]error // per portfolio id
	HistoryErr map[string]error // per portfolio id
	MutateErr  error

	GetHook     func(ctx context.Context, portfolioID string)
	HistoryHook func(ctx context.Context, portfolioID string, r models.TimeRange)

	AfterGetHook     func(ctx context.Context, portfolioID string)
	AfterHistoryHook func(ctx context.Context, portfolioID string, r models.TimeRange)

	GetCalls     int
	HistoryCalls int
	MutateCalls  int

	nextAssetID int
}

// NewMockDataService creates an empty mock data service
func NewMockDataService() *MockDataService {
	return &MockDataService{
		Portfolios: make(map[string]*models.Portfolio),
		History:    make(map[string][]models.HistoryPoint),
		GetErr:     make(map[string]error),
		HistoryErr: make(map[string]error),
	}
}

// PutPortfolio stores a portfolio, recomputing its totals.
func (m *MockDataService) PutPortfolio(p *models.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p.Clone()
	cp.Recompute()
	m.Portfolios[p.ID] = cp
}

// PutHistory stores the series returned for (id, range).
func (m *MockDataService) PutHistory(portfolioID string, r models.TimeRange, points []models.HistoryPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.History[historyKey(portfolioID, r)] = points
}

// SetGetErr makes GetPortfolio fail for id.
func (m *MockDataService) SetGetErr(portfolioID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetErr[portfolioID] = err
}

// SetHistoryErr makes GetPortfolioHistory fail for id.
func (m *MockDataService) SetHistoryErr(portfolioID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HistoryErr[portfolioID] = err
}

// SetMutateErr makes every mutation fail.
func (m *MockDataService) SetMutateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateErr = err
}

// Calls returns the (get, history, mutate) call counters.
func (m *MockDataService) Calls() (get, history, mutate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls, m.HistoryCalls, m.MutateCalls
}

func (m *MockDataService) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	m.mu.Lock()
	m.GetCalls++
	hook := m.GetHook
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, portfolioID)
	}

	p, err := m.readPortfolio(portfolioID)

	m.mu.Lock()
	after := m.AfterGetHook
	m.mu.Unlock()
	if after != nil {
		after(ctx, portfolioID)
	}
	return p, err
}

func (m *MockDataService) readPortfolio(portfolioID string) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.GetErr[portfolioID]; err != nil {
		return nil, err
	}
	p, ok := m.Portfolios[portfolioID]
	if !ok {
		return nil, &MockError{Status: 404, Message: fmt.Sprintf("portfolio %s not found", portfolioID)}
	}
	return p.Clone(), nil
}

func (m *MockDataService) ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PortfolioSummary, 0, len(m.Portfolios))
	for _, p := range m.Portfolios {
		out = append(out, models.PortfolioSummary{ID: p.ID, Name: p.Name, TotalValue: p.TotalValue})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockDataService) GetPortfolioHistory(ctx context.Context, portfolioID string, r models.TimeRange) ([]models.HistoryPoint, error) {
	m.mu.Lock()
	m.HistoryCalls++
	hook := m.HistoryHook
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, portfolioID, r)
	}

	out, err := m.readHistory(portfolioID, r)

	m.mu.Lock()
	after := m.AfterHistoryHook
	m.mu.Unlock()
	if after != nil {
		after(ctx, portfolioID, r)
	}
	return out, err
}

func (m *MockDataService) readHistory(portfolioID string, r models.TimeRange) ([]models.HistoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.HistoryErr[portfolioID]; err != nil {
		return nil, err
	}
	pts := m.History[historyKey(portfolioID, r)]
	out := make([]models.HistoryPoint, len(pts))
	copy(out, pts)
	return out, nil
}

func (m *MockDataService) AddAsset(ctx context.Context, portfolioID string, asset models.NewAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateCalls++
	if m.MutateErr != nil {
		return m.MutateErr
	}
	p, ok := m.Portfolios[portfolioID]
	if !ok {
		return &MockError{Status: 404, Message: "portfolio not found"}
	}
	m.nextAssetID++
	p.Assets = append(p.Assets, models.Asset{
		ID:            fmt.Sprintf("new-%d", m.nextAssetID),
		Symbol:        asset.Symbol,
		Quantity:      asset.Quantity,
		PurchasePrice: asset.PurchasePrice,
		CurrentPrice:  asset.PurchasePrice,
	})
	p.Recompute()
	return nil
}

func (m *MockDataService) RemoveAsset(ctx context.Context, portfolioID, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateCalls++
	if m.MutateErr != nil {
		return m.MutateErr
	}
	p, ok := m.Portfolios[portfolioID]
	if !ok {
		return &MockError{Status: 404, Message: "portfolio not found"}
	}
	for i, a := range p.Assets {
		if a.ID == assetID {
			p.Assets = append(p.Assets[:i], p.Assets[i+1:]...)
			p.Recompute()
			return nil
		}
	}
	return &MockError{Status: 404, Message: "asset not found"}
}

func (m *MockDataService) UpdatePortfolio(ctx context.Context, portfolioID string, edit models.PortfolioEdit) (*models.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateCalls++
	if m.MutateErr != nil {
		return nil, m.MutateErr
	}
	p, ok := m.Portfolios[portfolioID]
	if !ok {
		return nil, &MockError{Status: 404, Message: "portfolio not found"}
	}
	if edit.Name != nil {
		p.Name = *edit.Name
	}
	if edit.Description != nil {
		p.Description = *edit.Description
	}
	return p.Clone(), nil
}

func (m *MockDataService) DeletePortfolio(ctx context.Context, portfolioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutateCalls++
	if m.MutateErr != nil {
		return m.MutateErr
	}
	if _, ok := m.Portfolios[portfolioID]; !ok {
		return &MockError{Status: 404, Message: "portfolio not found"}
	}
	delete(m.Portfolios, portfolioID)
	return nil
}

func historyKey(portfolioID string, r models.TimeRange) string {
	return portfolioID + "|" + string(r)
}

// MockPriceTransport implements PriceTransport, recording commands and
// letting tests push updates through the registered handler.
type MockPriceTransport struct {
	mu      sync.Mutex
	active  map[string]bool
	handler models.PriceHandler

	Subscribes   []string
	Unsubscribes []string
}

// NewMockPriceTransport creates a transport with no active symbols
func NewMockPriceTransport() *MockPriceTransport {
	return &MockPriceTransport{active: make(map[string]bool)}
}

func (m *MockPriceTransport) Subscribe(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[symbol] = true
	m.Subscribes = append(m.Subscribes, symbol)
}

func (m *MockPriceTransport) Unsubscribe(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, symbol)
	m.Unsubscribes = append(m.Unsubscribes, symbol)
}

func (m *MockPriceTransport) OnUpdate(handler models.PriceHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *MockPriceTransport) OffUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = nil
}

// Emit delivers an update to the registered handler, if any.
func (m *MockPriceTransport) Emit(symbol string, price float64) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(models.PriceUpdate{Symbol: symbol, Price: price})
	}
}

// Active returns the subscribed symbols, sorted.
func (m *MockPriceTransport) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for s := range m.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasHandler reports whether a handler is registered.
func (m *MockPriceTransport) HasHandler() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil
}

// UnsubscribeCount returns the number of unsubscribe commands issued.
func (m *MockPriceTransport) UnsubscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Unsubscribes)
}
