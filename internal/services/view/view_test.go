package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/models"
	"github.com/bobmcallan/sharesrus/internal/services/chart"
	"github.com/bobmcallan/sharesrus/internal/services/subscription"
	"github.com/bobmcallan/sharesrus/internal/services/valuation"
	testcommon "github.com/bobmcallan/sharesrus/test/common"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ViewEvent
}

func (p *recordingPublisher) Publish(ev models.ViewEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) states(viewID string) []models.ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ViewState
	for _, ev := range p.events {
		if ev.ViewID == viewID && ev.Type == models.ViewEventSnapshot {
			if len(out) == 0 || out[len(out)-1] != ev.Snapshot.State {
				out = append(out, ev.Snapshot.State)
			}
		}
	}
	return out
}

func (p *recordingPublisher) count(viewID, typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.ViewID == viewID && ev.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	ds        *testcommon.MockDataService
	transport *testcommon.MockPriceTransport
	store     *valuation.Store
	recon     *subscription.Reconciler
	pub       *recordingPublisher
	mgr       *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	ds := testcommon.NewMockDataService()
	ds.PutPortfolio(&models.Portfolio{ID: "P1", Name: "Growth", Assets: []models.Asset{
		{ID: "a1", Symbol: "AAPL", Quantity: 10, PurchasePrice: 120, CurrentPrice: 140},
		{ID: "a2", Symbol: "MSFT", Quantity: 5, PurchasePrice: 300, CurrentPrice: 310},
		{ID: "a3", Symbol: "GOOG", Quantity: 2, PurchasePrice: 100, CurrentPrice: 130},
	}})
	ds.PutPortfolio(&models.Portfolio{ID: "P2", Name: "Income", Assets: []models.Asset{
		{ID: "b1", Symbol: "TSLA", Quantity: 1, PurchasePrice: 200, CurrentPrice: 250},
	}})
	for _, r := range models.TimeRanges {
		ds.PutHistory("P1", r, []models.HistoryPoint{
			{Date: "2024-01-01", Value: 1000},
			{Date: "2024-01-31", Value: 1100},
		})
		ds.PutHistory("P2", r, []models.HistoryPoint{
			{Date: "2024-01-01", Value: 500},
		})
	}

	transport := testcommon.NewMockPriceTransport()
	store := valuation.NewStore(ds, nil)
	recon := subscription.NewReconciler(transport, nil)
	disp := subscription.NewDispatcher(transport, nil)
	pub := &recordingPublisher{}

	seq := 0
	base := []Option{
		WithPublisher(pub),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("view-%d", seq)
		}),
	}
	mgr := NewManager(store, chart.NewAggregator(ds, nil), recon, disp, nil, append(base, opts...)...)

	return &harness{ds: ds, transport: transport, store: store, recon: recon, pub: pub, mgr: mgr}
}

func lastNotification(t *testing.T, snap *models.ViewSnapshot) models.Notification {
	t.Helper()
	require.NotEmpty(t, snap.Notifications)
	return snap.Notifications[len(snap.Notifications)-1]
}

func TestView_OpensIdle(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()

	snap := v.Snapshot()
	assert.Equal(t, "view-1", snap.ID)
	assert.Equal(t, models.ViewIdle, snap.State)
	assert.Equal(t, models.DefaultRange, snap.Range)
	assert.Nil(t, snap.Portfolio)
	assert.NotNil(t, snap.Notifications)
}

func TestView_ViewPortfolioLoadsAndSubscribes(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()

	snap, err := v.ViewPortfolio(context.Background(), "P1")
	require.NoError(t, err)

	assert.Equal(t, models.ViewReady, snap.State)
	require.NotNil(t, snap.Portfolio)
	assert.Equal(t, 1400.0+1550.0+260.0, snap.Portfolio.TotalValue)
	require.NotNil(t, snap.Chart)
	assert.Equal(t, []string{"2024-01-01", "2024-01-31"}, snap.Chart.Labels)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, h.transport.Active())
	assert.True(t, h.transport.HasHandler())
}

func TestView_PriceUpdateMergesIntoSnapshot(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	before, err := v.ViewPortfolio(context.Background(), "P1")
	require.NoError(t, err)
	published := h.pub.count(v.ID(), models.ViewEventSnapshot)

	h.transport.Emit("AAPL", 150)

	after := v.Snapshot()
	assert.Equal(t, 1500.0, after.Portfolio.FindAsset("a1").TotalValue)
	assert.InDelta(t, 100.0, after.Portfolio.TotalValue-before.Portfolio.TotalValue, 1e-9)
	assert.Equal(t, published+1, h.pub.count(v.ID(), models.ViewEventSnapshot))
}

func TestView_UnrelatedPriceUpdateIsIgnored(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	_, err := v.ViewPortfolio(context.Background(), "P1")
	require.NoError(t, err)
	published := h.pub.count(v.ID(), models.ViewEventSnapshot)

	h.transport.Emit("TSLA", 999)

	assert.Equal(t, published, h.pub.count(v.ID(), models.ViewEventSnapshot))
}

func TestView_SwitchingPortfolioReleasesPreviousSymbols(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()

	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	snap, err := v.ViewPortfolio(ctx, "P2")
	require.NoError(t, err)

	assert.Equal(t, "P2", snap.Portfolio.ID)
	assert.Equal(t, []string{"TSLA"}, h.transport.Active())
	assert.ElementsMatch(t, []string{"AAPL", "GOOG", "MSFT"}, h.transport.Unsubscribes)
	assert.Equal(t, 1, h.store.Tracked())
}

func TestView_SamePortfolioIsNoop(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()

	first, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	second, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	assert.Equal(t, first.Generation, second.Generation)
	get, _, _ := h.ds.Calls()
	assert.Equal(t, 1, get)
}

func TestView_LatePortfolioResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()

	started := make(chan struct{})
	unblock := make(chan struct{})
	h.ds.GetHook = func(_ context.Context, id string) {
		if id == "P1" {
			close(started)
			<-unblock
		}
	}

	done := make(chan *models.ViewSnapshot)
	go func() {
		snap, _ := v.ViewPortfolio(ctx, "P1")
		done <- snap
	}()
	<-started

	current, err := v.ViewPortfolio(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, models.ViewReady, current.State)

	close(unblock)
	late := <-done

	assert.Equal(t, "P2", late.PortfolioID, "superseded call reports current state")
	final := v.Snapshot()
	assert.Equal(t, "P2", final.Portfolio.ID)
	assert.Equal(t, current.Generation, final.Generation)
	assert.Equal(t, []string{"TSLA"}, h.transport.Active())
	assert.Nil(t, h.store.Get("P1"))
}

func TestView_LateChartResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	h.ds.PutHistory("P1", models.Range1W, []models.HistoryPoint{{Date: "stale", Value: 1}})
	h.ds.PutHistory("P1", models.Range3M, []models.HistoryPoint{{Date: "2023-11-01", Value: 900}, {Date: "2024-01-31", Value: 1100}})

	started := make(chan struct{})
	unblock := make(chan struct{})
	h.ds.HistoryHook = func(_ context.Context, id string, r models.TimeRange) {
		if r == models.Range1W {
			close(started)
			<-unblock
		}
	}

	done := make(chan struct{})
	go func() {
		_, _ = v.SetTimeRange(ctx, models.Range1W)
		close(done)
	}()
	<-started

	_, err = v.SetTimeRange(ctx, models.Range3M)
	require.NoError(t, err)
	close(unblock)
	<-done

	snap := v.Snapshot()
	assert.Equal(t, models.Range3M, snap.Range)
	assert.Equal(t, models.ViewReady, snap.State)
	assert.Equal(t, []string{"2023-11-01", "2024-01-31"}, snap.Chart.Labels)
}

func TestView_LoadOverlappingRemoveAssetIsFetchedAgain(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	read := make(chan struct{})
	unblock := make(chan struct{})
	var blocked atomic.Bool
	h.ds.AfterGetHook = func(_ context.Context, id string) {
		if id == "P1" && blocked.CompareAndSwap(false, true) {
			close(read)
			<-unblock
		}
	}

	done := make(chan *models.ViewSnapshot)
	go func() {
		snap, _ := v.Refresh(ctx)
		done <- snap
	}()
	<-read

	removed, err := v.RemoveAsset(ctx, "a1", models.DecisionConfirmed)
	require.NoError(t, err)
	require.Len(t, removed.Portfolio.Assets, 2)

	close(unblock)
	refreshed := <-done

	for _, snap := range []*models.ViewSnapshot{refreshed, v.Snapshot()} {
		require.NotNil(t, snap.Portfolio)
		assert.Nil(t, snap.Portfolio.FindAsset("a1"))
		assert.Equal(t, 1810.0, snap.Portfolio.TotalValue)
		assert.Equal(t, models.ViewReady, snap.State)
	}
	assert.Equal(t, []string{"GOOG", "MSFT"}, h.transport.Active())
	assert.Equal(t, []string{"GOOG", "MSFT"}, h.store.Symbols("P1"))
	get, _, _ := h.ds.Calls()
	assert.Equal(t, 4, get, "initial, refresh, post-mutation refetch, refresh retry")
}

func TestView_RangeChangeDuringRefreshKeepsPortfolioFetch(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	h.ds.PutPortfolio(&models.Portfolio{ID: "P1", Name: "Growth", Assets: []models.Asset{
		{ID: "a1", Symbol: "AAPL", Quantity: 10, PurchasePrice: 120, CurrentPrice: 150},
		{ID: "a2", Symbol: "MSFT", Quantity: 5, PurchasePrice: 300, CurrentPrice: 310},
		{ID: "a3", Symbol: "GOOG", Quantity: 2, PurchasePrice: 100, CurrentPrice: 130},
	}})

	started := make(chan struct{})
	unblock := make(chan struct{})
	var blocked atomic.Bool
	h.ds.GetHook = func(_ context.Context, id string) {
		if blocked.CompareAndSwap(false, true) {
			close(started)
			<-unblock
		}
	}

	done := make(chan struct{})
	go func() {
		_, _ = v.Refresh(ctx)
		close(done)
	}()
	<-started

	snap, err := v.SetTimeRange(ctx, models.Range1Y)
	require.NoError(t, err)
	close(unblock)
	<-done

	require.NotNil(t, snap.Portfolio)
	assert.Equal(t, 150.0, snap.Portfolio.FindAsset("a1").CurrentPrice)
	assert.Equal(t, models.Range1Y, v.Snapshot().Range)
	assert.Equal(t, 150.0, v.Snapshot().Portfolio.FindAsset("a1").CurrentPrice)
}

func TestView_CloseReleasesEverySubscription(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	_, err := v.ViewPortfolio(context.Background(), "P1")
	require.NoError(t, err)

	require.NoError(t, h.mgr.Close(v.ID()))

	assert.Equal(t, 3, h.transport.UnsubscribeCount())
	assert.Empty(t, h.transport.Active())
	assert.Empty(t, h.recon.Counts())
	assert.False(t, h.transport.HasHandler())
	assert.Equal(t, 0, h.store.Tracked())
	assert.Equal(t, 1, h.pub.count(v.ID(), models.ViewEventClosed))

	_, err = h.mgr.Get(v.ID())
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))
	_, err = v.Refresh(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))
}

func TestView_SharedPortfolioKeepsSubscriptionsUntilLastClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.mgr.Open()
	b := h.mgr.Open()
	_, err := a.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = b.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	require.NoError(t, h.mgr.Close(a.ID()))
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, h.transport.Active())
	assert.True(t, h.transport.HasHandler())

	h.transport.Emit("AAPL", 150)
	assert.Equal(t, 150.0, b.Snapshot().Portfolio.FindAsset("a1").CurrentPrice)

	require.NoError(t, h.mgr.Close(b.ID()))
	assert.Empty(t, h.transport.Active())
	assert.False(t, h.transport.HasHandler())
}

func TestView_StateTransitions(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()

	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = v.Refresh(ctx)
	require.NoError(t, err)
	_, err = v.SetComparison(ctx, "P2")
	require.NoError(t, err)

	assert.Equal(t, []models.ViewState{
		models.ViewIdle,
		models.ViewLoading, models.ViewReady,
		models.ViewLoading, models.ViewReady,
		models.ViewLoading, models.ViewReady,
	}, h.pub.states(v.ID()))
}

func TestView_PortfolioFetchFailure(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()

	snap, err := v.ViewPortfolio(context.Background(), "P404")
	require.NoError(t, err, "fetch failures are recovered into view state")

	assert.Equal(t, models.ViewFailed, snap.State)
	assert.Contains(t, snap.Error, "Failed to fetch portfolio data")
	assert.Equal(t, models.NotifyError, snap.Notifications[0].Level)
	assert.Empty(t, h.transport.Active())
	assert.Nil(t, snap.Portfolio)
}

func TestView_RefreshRecoversFromFailure(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	h.ds.SetGetErr("P1", errors.New("service unavailable"))

	snap, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, models.ViewFailed, snap.State)

	h.ds.SetGetErr("P1", nil)
	snap, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ViewReady, snap.State)
	assert.Empty(t, snap.Error)
	assert.Len(t, h.transport.Active(), 3)
}

func TestView_ComparisonFailureKeepsPrimary(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	h.ds.SetHistoryErr("P2", errors.New("timeout"))

	snap, err := v.SetComparison(ctx, "P2")
	require.NoError(t, err)

	assert.Equal(t, models.ViewReady, snap.State)
	assert.Len(t, snap.Chart.Datasets, 1)
	assert.Equal(t, models.NotifyWarning, lastNotification(t, snap).Level)
}

func TestView_ComparisonDatasetIsShorter(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	snap, err := v.SetComparison(ctx, "P2")
	require.NoError(t, err)

	require.Len(t, snap.Chart.Datasets, 2)
	assert.Len(t, snap.Chart.Datasets[1].Data, 1)
	assert.Equal(t, "Comparison (P2)", snap.Chart.Datasets[1].Label)

	snap, err = v.SetComparison(ctx, "")
	require.NoError(t, err)
	assert.Len(t, snap.Chart.Datasets, 1)
}

func TestView_RangeWithoutPortfolioIsRecorded(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()

	snap, err := v.SetTimeRange(context.Background(), models.Range1Y)
	require.NoError(t, err)

	assert.Equal(t, models.Range1Y, snap.Range)
	assert.Equal(t, models.ViewIdle, snap.State)
	_, history, _ := h.ds.Calls()
	assert.Equal(t, 0, history)
}

func TestView_RejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()

	_, err := v.SetTimeRange(ctx, models.TimeRange("2W"))
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput))

	_, err = v.ViewPortfolio(ctx, " ")
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput))

	_, err = v.AddAsset(ctx, models.NewAsset{Symbol: "AAPL", Quantity: 1})
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput), "no portfolio loaded")

	_, err = v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	_, err = v.SetComparison(ctx, "P1")
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput))

	_, err = v.AddAsset(ctx, models.NewAsset{Symbol: "NVDA", Quantity: 0})
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput))

	_, err = v.AddAsset(ctx, models.NewAsset{Symbol: "aapl", Quantity: 1, PurchasePrice: 1})
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput), "symbol unique within portfolio")

	_, err = v.EditPortfolio(ctx, models.PortfolioEdit{})
	assert.True(t, apperrors.Is(err, apperrors.CategoryUserInput))
}

func TestView_AddAssetSubscribesNewSymbol(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	snap, err := v.AddAsset(ctx, models.NewAsset{Symbol: "nvda", Quantity: 2, PurchasePrice: 400})
	require.NoError(t, err)

	assert.Len(t, snap.Portfolio.Assets, 4)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT", "NVDA"}, h.transport.Active())
	n := lastNotification(t, snap)
	assert.Equal(t, models.NotifySuccess, n.Level)
	assert.Equal(t, "Asset added successfully", n.Message)
}

func TestView_RemoveAssetRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)

	snap, err := v.RemoveAsset(ctx, "a1", models.DecisionCancelled)
	require.NoError(t, err)
	assert.Len(t, snap.Portfolio.Assets, 3)
	_, _, mutate := h.ds.Calls()
	assert.Equal(t, 0, mutate)

	snap, err = v.RemoveAsset(ctx, "a1", models.DecisionConfirmed)
	require.NoError(t, err)

	require.Len(t, snap.Portfolio.Assets, 2)
	var sum float64
	for _, a := range snap.Portfolio.Assets {
		sum += a.TotalValue
	}
	assert.Equal(t, sum, snap.Portfolio.TotalValue)
	assert.Equal(t, []string{"GOOG", "MSFT"}, h.transport.Active())
	assert.Equal(t, "Asset removed successfully", lastNotification(t, snap).Message)

	_, err = v.RemoveAsset(ctx, "a1", models.DecisionConfirmed)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))
}

func TestView_MutationFailureNotifiesAndKeepsState(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()
	ctx := context.Background()
	_, err := v.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	h.ds.SetMutateErr(&testcommon.MockError{Status: 500, Message: "database locked"})

	snap, err := v.RemoveAsset(ctx, "a1", models.DecisionConfirmed)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryMutation))

	assert.Equal(t, models.ViewReady, snap.State)
	assert.Len(t, snap.Portfolio.Assets, 3)
	n := lastNotification(t, snap)
	assert.Equal(t, models.NotifyError, n.Level)
	assert.Contains(t, n.Message, "database locked")
	assert.Len(t, h.transport.Active(), 3)
}

func TestView_EditPortfolioPropagatesToOtherViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.mgr.Open()
	b := h.mgr.Open()
	_, err := a.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = b.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	before := h.pub.count(b.ID(), models.ViewEventSnapshot)

	name := "Renamed"
	snap, err := a.EditPortfolio(ctx, models.PortfolioEdit{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", snap.Portfolio.Name)
	assert.Equal(t, "Renamed", b.Snapshot().Portfolio.Name)
	assert.Equal(t, before+1, h.pub.count(b.ID(), models.ViewEventSnapshot))
}

func TestView_DeletePortfolio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.mgr.Open()
	b := h.mgr.Open()
	c := h.mgr.Open()
	_, err := a.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = b.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = c.ViewPortfolio(ctx, "P2")
	require.NoError(t, err)
	_, err = c.SetComparison(ctx, "P1")
	require.NoError(t, err)

	snap, err := a.DeletePortfolio(ctx, models.DecisionCancelled)
	require.NoError(t, err)
	assert.Equal(t, "P1", snap.PortfolioID)

	snap, err = a.DeletePortfolio(ctx, models.DecisionConfirmed)
	require.NoError(t, err)

	assert.Equal(t, models.ViewIdle, snap.State)
	assert.Empty(t, snap.PortfolioID)
	assert.Equal(t, "Portfolio deleted successfully", lastNotification(t, snap).Message)

	other := b.Snapshot()
	assert.Equal(t, models.ViewIdle, other.State)
	assert.Equal(t, "Portfolio was deleted", lastNotification(t, other).Message)

	cmp := c.Snapshot()
	assert.Empty(t, cmp.ComparisonID)
	assert.Len(t, cmp.Chart.Datasets, 1)

	assert.Equal(t, []string{"TSLA"}, h.transport.Active())
	assert.Empty(t, h.recon.OwnerSymbols(a.ID()))
	assert.Empty(t, h.recon.OwnerSymbols(b.ID()))
}

func TestView_NotificationsAreBounded(t *testing.T) {
	h := newHarness(t)
	v := h.mgr.Open()

	for i := 0; i < 25; i++ {
		h.mgr.NotifyAll(models.NotifyWarning, fmt.Sprintf("n%d", i))
	}

	snap := v.Snapshot()
	require.Len(t, snap.Notifications, maxNotifications)
	assert.Equal(t, "n5", snap.Notifications[0].Message)
	assert.Equal(t, "n24", snap.Notifications[maxNotifications-1].Message)
}

func TestView_StalePrices(t *testing.T) {
	later := time.Now().Add(3 * time.Minute)
	h := newHarness(t, WithClock(func() time.Time { return later }))
	v := h.mgr.Open()
	_, err := v.ViewPortfolio(context.Background(), "P1")
	require.NoError(t, err)

	assert.Empty(t, v.Snapshot().StalePrices, "service prices are not streamed prices")

	h.transport.Emit("MSFT", 320)
	assert.Equal(t, []string{"MSFT"}, v.Snapshot().StalePrices)
}

func TestManager_ListAndCloseAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.mgr.Open()
	b := h.mgr.Open()
	_, err := a.ViewPortfolio(ctx, "P1")
	require.NoError(t, err)
	_, err = b.ViewPortfolio(ctx, "P2")
	require.NoError(t, err)

	list := h.mgr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "view-1", list[0].ID)

	h.mgr.CloseAll()
	assert.Equal(t, 0, h.mgr.Count())
	assert.Empty(t, h.transport.Active())
	assert.Equal(t, 0, h.store.Tracked())
}

func TestManager_Portfolios(t *testing.T) {
	h := newHarness(t)

	list, err := h.mgr.Portfolios(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "P1", list[0].ID)
}
