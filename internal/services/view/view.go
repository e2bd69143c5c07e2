package view

import (
	"context"
	"strings"
	"sync"

	"github.com/bobmcallan/sharesrus/internal/common"
	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/models"
)

const maxNotifications = 20

// View is one owner: a displayed portfolio with its chart settings.
//
// Loads run without holding the view lock. Each load is tagged with the
// generation current when it started; a result whose generation is no
// longer current is discarded. A load that overlapped a confirmed mutation
// of its portfolio is fetched again rather than applied.
type View struct {
	id     string
	m      *Manager
	logger *common.Logger

	mu            sync.Mutex
	closed        bool
	state         models.ViewState
	gen           uint64
	cancel        context.CancelFunc
	portfolioID   string
	tracked       bool
	pendingFetch  bool
	rng           models.TimeRange
	comparisonID  string
	chart         *models.ChartDataset
	errMsg        string
	notifications []models.Notification
}

// ID returns the view (owner) id.
func (v *View) ID() string { return v.id }

// loadPlan captures the inputs of one load at the moment it began.
type loadPlan struct {
	ctx           context.Context
	gen           uint64
	version       uint64
	portfolioID   string
	rng           models.TimeRange
	comparisonID  string
	withPortfolio bool
}

type loadResult struct {
	portfolio    *models.Portfolio
	portfolioErr error
	chart        *models.ChartDataset
	chartErr     error
}

// ViewPortfolio switches the view to portfolioID. The previous portfolio's
// subscriptions are released immediately.
func (v *View) ViewPortfolio(ctx context.Context, portfolioID string) (*models.ViewSnapshot, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil, apperrors.NewInvalidInputError("portfolio_id", "must not be empty")
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, v.closedErr()
	}
	if portfolioID == v.portfolioID && v.state != models.ViewIdle {
		snap := v.snapshotLocked()
		v.mu.Unlock()
		return snap, nil
	}

	v.untrackLocked()
	v.portfolioID = portfolioID
	v.chart = nil
	if v.comparisonID == portfolioID {
		v.comparisonID = ""
	}
	plan := v.beginLocked(ctx, true)
	v.mu.Unlock()

	v.logger.Info().Str("portfolio_id", portfolioID).Uint64("generation", plan.gen).Msg("Viewing portfolio")
	return v.execute(plan), nil
}

// SetTimeRange changes the chart range and recomputes the chart.
func (v *View) SetTimeRange(ctx context.Context, r models.TimeRange) (*models.ViewSnapshot, error) {
	if !r.Valid() {
		return nil, apperrors.NewInvalidInputError("range", "must be one of 1W, 1M, 3M, 1Y")
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, v.closedErr()
	}
	if r == v.rng {
		snap := v.snapshotLocked()
		v.mu.Unlock()
		return snap, nil
	}
	v.rng = r
	return v.reloadLocked(ctx), nil
}

// SetComparison sets (or clears, with "") the comparison portfolio.
func (v *View) SetComparison(ctx context.Context, comparisonID string) (*models.ViewSnapshot, error) {
	comparisonID = strings.TrimSpace(comparisonID)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, v.closedErr()
	}
	if comparisonID != "" && comparisonID == v.portfolioID {
		v.mu.Unlock()
		return nil, apperrors.NewInvalidInputError("comparison_id", "must differ from the viewed portfolio")
	}
	if comparisonID == v.comparisonID {
		snap := v.snapshotLocked()
		v.mu.Unlock()
		return snap, nil
	}
	v.comparisonID = comparisonID
	return v.reloadLocked(ctx), nil
}

// Refresh refetches the portfolio and recomputes the chart.
func (v *View) Refresh(ctx context.Context) (*models.ViewSnapshot, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, v.closedErr()
	}
	if v.portfolioID == "" {
		v.mu.Unlock()
		return nil, apperrors.NewInvalidInputError("portfolio_id", "no portfolio selected")
	}
	plan := v.beginLocked(ctx, true)
	v.mu.Unlock()
	return v.execute(plan), nil
}

// reloadLocked starts a chart reload after a range or comparison change.
// Without a selected portfolio the setting is only recorded. Unlocks v.mu.
func (v *View) reloadLocked(ctx context.Context) *models.ViewSnapshot {
	if v.portfolioID == "" {
		v.publishSnapshotLocked()
		snap := v.snapshotLocked()
		v.mu.Unlock()
		return snap
	}
	v.chart = nil
	plan := v.beginLocked(ctx, !v.tracked || v.pendingFetch)
	v.mu.Unlock()
	return v.execute(plan)
}

// beginLocked supersedes any in-flight load and enters Loading.
func (v *View) beginLocked(parent context.Context, withPortfolio bool) loadPlan {
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), v.m.fetchTimeout)
	v.cancel = cancel
	v.pendingFetch = withPortfolio
	v.state = models.ViewLoading
	v.errMsg = ""
	v.publishSnapshotLocked()

	return loadPlan{
		ctx:           ctx,
		gen:           v.gen,
		version:       v.m.store.Version(v.portfolioID),
		portfolioID:   v.portfolioID,
		rng:           v.rng,
		comparisonID:  v.comparisonID,
		withPortfolio: withPortfolio,
	}
}

// execute runs the fetches for plan and applies them if still current.
func (v *View) execute(plan loadPlan) *models.ViewSnapshot {
	for {
		res := v.fetch(plan)

		v.mu.Lock()
		if v.closed || plan.gen != v.gen {
			v.logger.Debug().
				Uint64("generation", plan.gen).
				Uint64("current", v.gen).
				Str("portfolio_id", plan.portfolioID).
				Msg("Discarding superseded load")
			snap := v.snapshotLocked()
			v.mu.Unlock()
			return snap
		}

		if v.m.store.Version(plan.portfolioID) == plan.version && v.applyLocked(plan, res) {
			v.publishSnapshotLocked()
			snap := v.snapshotLocked()
			v.mu.Unlock()
			return snap
		}

		plan.version = v.m.store.Version(plan.portfolioID)
		v.mu.Unlock()
		v.logger.Debug().
			Uint64("generation", plan.gen).
			Uint64("version", plan.version).
			Str("portfolio_id", plan.portfolioID).
			Msg("Portfolio changed during load, fetching again")
	}
}

func (v *View) fetch(plan loadPlan) loadResult {
	var (
		res loadResult
		wg  sync.WaitGroup
	)

	if plan.withPortfolio {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.portfolio, res.portfolioErr = v.m.store.Fetch(plan.ctx, plan.portfolioID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		res.chart, res.chartErr = v.m.charts.BuildChart(plan.ctx, plan.portfolioID, plan.rng, plan.comparisonID)
	}()

	wg.Wait()
	return res
}

// applyLocked installs a load result. It returns false, leaving the view
// untouched, when the fetched portfolio is older than the store's version.
func (v *View) applyLocked(plan loadPlan, res loadResult) bool {
	if plan.withPortfolio && res.portfolioErr == nil && !v.trackLocked(res.portfolio, plan.version) {
		return false
	}
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.pendingFetch = false

	failed := false

	if plan.withPortfolio {
		if res.portfolioErr != nil {
			failed = true
			v.errMsg = apperrors.UserMessage(res.portfolioErr)
			v.notifyLocked(models.NotifyError, v.errMsg)
			if apperrors.GetHTTPStatusCode(res.portfolioErr) == 404 {
				v.untrackLocked()
			}
			v.logger.Warn().Err(res.portfolioErr).Str("portfolio_id", plan.portfolioID).Msg("Portfolio load failed")
		}
	}

	v.chart = res.chart
	switch {
	case res.chart == nil:
		failed = true
		msg := apperrors.UserMessage(res.chartErr)
		if v.errMsg == "" {
			v.errMsg = msg
		}
		v.notifyLocked(models.NotifyError, msg)
	case res.chartErr != nil:
		v.notifyLocked(models.NotifyWarning, apperrors.UserMessage(res.chartErr))
	}

	if failed {
		v.state = models.ViewFailed
	} else {
		v.state = models.ViewReady
	}

	v.logger.Debug().
		Uint64("generation", plan.gen).
		Str("state", string(v.state)).
		Msg("Load applied")
	return true
}

// trackLocked makes p the view's tracked portfolio and reconciles symbols.
// Returns false if p predates a mutation at version.
func (v *View) trackLocked(p *models.Portfolio, version uint64) bool {
	if !v.m.store.Commit(p, version, !v.tracked) {
		return false
	}
	if !v.tracked {
		v.tracked = true
		v.m.dispatcher.Add(v.id, v.onPrice)
	}
	v.syncLocked()
	return true
}

// untrackLocked releases subscriptions, the dispatcher listener and the
// store reference, in that order.
func (v *View) untrackLocked() {
	if !v.tracked {
		return
	}
	v.m.reconciler.Release(v.id)
	v.m.dispatcher.Remove(v.id)
	v.m.store.Release(v.portfolioID)
	v.tracked = false
}

func (v *View) syncLocked() {
	v.m.reconciler.Sync(v.id, v.m.store.Symbols(v.portfolioID))
}

// onPrice is the view's dispatcher listener.
func (v *View) onPrice(upd models.PriceUpdate) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || !v.tracked {
		return
	}
	if changed := v.m.store.ApplyUpdate([]string{v.portfolioID}, upd); len(changed) > 0 {
		v.publishSnapshotLocked()
	}
}

// AddAsset adds an asset to the viewed portfolio.
func (v *View) AddAsset(ctx context.Context, asset models.NewAsset) (*models.ViewSnapshot, error) {
	asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
	if err := validateNewAsset(asset); err != nil {
		return nil, err
	}

	portfolioID, err := v.mutationTarget(true)
	if err != nil {
		return nil, err
	}
	if p := v.m.store.Get(portfolioID); p != nil {
		for _, a := range p.Assets {
			if a.Symbol == asset.Symbol {
				return nil, apperrors.NewInvalidInputError("symbol", asset.Symbol+" is already held in this portfolio")
			}
		}
	}

	opCtx, cancel := v.opContext(ctx)
	defer cancel()
	_, err = v.m.store.AddAsset(opCtx, portfolioID, asset)
	return v.finishMutation(portfolioID, err, "Asset added successfully", false)
}

// RemoveAsset removes an asset once the decision is confirmed.
func (v *View) RemoveAsset(ctx context.Context, assetID string, decision models.Decision) (*models.ViewSnapshot, error) {
	portfolioID, err := v.mutationTarget(true)
	if err != nil {
		return nil, err
	}
	p := v.m.store.Get(portfolioID)
	if p == nil || p.FindAsset(assetID) == nil {
		return nil, apperrors.NewNotFoundError("asset", assetID)
	}
	if decision != models.DecisionConfirmed {
		v.logger.Debug().Str("asset_id", assetID).Msg("Asset removal cancelled")
		return v.Snapshot(), nil
	}

	opCtx, cancel := v.opContext(ctx)
	defer cancel()
	_, err = v.m.store.RemoveAsset(opCtx, portfolioID, assetID)
	return v.finishMutation(portfolioID, err, "Asset removed successfully", false)
}

// EditPortfolio changes the viewed portfolio's name and/or description.
func (v *View) EditPortfolio(ctx context.Context, edit models.PortfolioEdit) (*models.ViewSnapshot, error) {
	if edit.Name == nil && edit.Description == nil {
		return nil, apperrors.NewInvalidInputError("body", "name or description required")
	}
	if edit.Name != nil && strings.TrimSpace(*edit.Name) == "" {
		return nil, apperrors.NewInvalidInputError("name", "must not be empty")
	}

	portfolioID, err := v.mutationTarget(true)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := v.opContext(ctx)
	defer cancel()
	_, err = v.m.store.UpdatePortfolio(opCtx, portfolioID, edit)
	return v.finishMutation(portfolioID, err, "Portfolio updated successfully", false)
}

// DeletePortfolio deletes the viewed portfolio once the decision is confirmed.
// The view returns to Idle.
func (v *View) DeletePortfolio(ctx context.Context, decision models.Decision) (*models.ViewSnapshot, error) {
	portfolioID, err := v.mutationTarget(false)
	if err != nil {
		return nil, err
	}
	if decision != models.DecisionConfirmed {
		v.logger.Debug().Str("portfolio_id", portfolioID).Msg("Portfolio deletion cancelled")
		return v.Snapshot(), nil
	}

	opCtx, cancel := v.opContext(ctx)
	defer cancel()
	err = v.m.store.DeletePortfolio(opCtx, portfolioID)
	return v.finishMutation(portfolioID, err, "Portfolio deleted successfully", true)
}

// mutationTarget returns the portfolio a mutation applies to.
func (v *View) mutationTarget(requireTracked bool) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return "", v.closedErr()
	}
	if v.portfolioID == "" || (requireTracked && !v.tracked) {
		return "", apperrors.NewInvalidInputError("portfolio_id", "no portfolio loaded")
	}
	return v.portfolioID, nil
}

func (v *View) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), v.m.fetchTimeout)
}

// finishMutation records the outcome of a mutation round-trip and
// propagates it to other views of the same portfolio.
func (v *View) finishMutation(portfolioID string, err error, success string, deleted bool) (*models.ViewSnapshot, error) {
	v.mu.Lock()
	if err != nil {
		v.notifyLocked(models.NotifyError, apperrors.UserMessage(err))
		snap := v.snapshotLocked()
		v.mu.Unlock()
		v.logger.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Mutation failed")
		return snap, err
	}

	if v.portfolioID == portfolioID {
		if deleted {
			v.resetLocked()
		} else if v.tracked {
			v.syncLocked()
		}
	}
	v.notifyLocked(models.NotifySuccess, success)
	v.publishSnapshotLocked()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.m.portfolioChanged(portfolioID, v.id, deleted)
	return snap, nil
}

// portfolioChanged reacts to a mutation made through another view.
func (v *View) portfolioChanged(portfolioID string, deleted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}

	touched := false
	if v.portfolioID == portfolioID {
		touched = true
		switch {
		case deleted:
			v.resetLocked()
			v.notifyLocked(models.NotifyWarning, "Portfolio was deleted")
		case v.tracked:
			v.syncLocked()
		}
	}
	if deleted && v.comparisonID == portfolioID {
		touched = true
		v.comparisonID = ""
		if v.chart != nil {
			v.chart.ComparisonID = ""
			if len(v.chart.Datasets) > 1 {
				v.chart.Datasets = v.chart.Datasets[:1]
			}
		}
	}
	if touched {
		v.publishSnapshotLocked()
	}
}

// resetLocked returns the view to Idle, abandoning any in-flight load.
func (v *View) resetLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.gen++
	v.pendingFetch = false
	v.untrackLocked()
	v.portfolioID = ""
	v.chart = nil
	v.errMsg = ""
	v.state = models.ViewIdle
}

func (v *View) close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.gen++
	v.untrackLocked()
	v.closed = true

	v.m.publisher.Publish(models.ViewEvent{
		Type:      models.ViewEventClosed,
		ViewID:    v.id,
		Timestamp: v.m.now(),
	})
	v.logger.Info().Msg("View closed")
}

// Snapshot returns the current render state.
func (v *View) Snapshot() *models.ViewSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Chart returns a copy of the current chart, or nil.
func (v *View) Chart() *models.ChartDataset {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chart.Clone()
}

func (v *View) snapshotLocked() *models.ViewSnapshot {
	snap := &models.ViewSnapshot{
		ID:            v.id,
		State:         v.state,
		Generation:    v.gen,
		PortfolioID:   v.portfolioID,
		Range:         v.rng,
		ComparisonID:  v.comparisonID,
		Chart:         v.chart.Clone(),
		Error:         v.errMsg,
		Notifications: append([]models.Notification{}, v.notifications...),
	}
	if v.tracked {
		snap.Portfolio = v.m.store.Get(v.portfolioID)
	}
	if snap.Portfolio != nil {
		now := v.m.now()
		seen := make(map[string]bool)
		for _, a := range snap.Portfolio.Assets {
			if a.PriceUpdatedAt.IsZero() || seen[a.Symbol] {
				continue
			}
			if !common.IsFreshAt(a.PriceUpdatedAt, now, common.FreshnessLivePrice) {
				seen[a.Symbol] = true
				snap.StalePrices = append(snap.StalePrices, a.Symbol)
			}
		}
	}
	return snap
}

func (v *View) publishSnapshotLocked() {
	v.m.publisher.Publish(models.ViewEvent{
		Type:      models.ViewEventSnapshot,
		ViewID:    v.id,
		Snapshot:  v.snapshotLocked(),
		Timestamp: v.m.now(),
	})
}

func (v *View) notify(level models.NotificationLevel, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.notifyLocked(level, message)
}

func (v *View) notifyLocked(level models.NotificationLevel, message string) {
	n := models.Notification{Level: level, Message: message, Timestamp: v.m.now()}
	v.notifications = append(v.notifications, n)
	if over := len(v.notifications) - maxNotifications; over > 0 {
		v.notifications = append([]models.Notification(nil), v.notifications[over:]...)
	}
	v.m.publisher.Publish(models.ViewEvent{
		Type:         models.ViewEventNotification,
		ViewID:       v.id,
		Notification: &n,
		Timestamp:    n.Timestamp,
	})
}

func (v *View) closedErr() error {
	return apperrors.NewNotFoundError("view", v.id)
}

func validateNewAsset(a models.NewAsset) error {
	if a.Symbol == "" {
		return apperrors.NewInvalidInputError("symbol", "must not be empty")
	}
	if a.Quantity <= 0 {
		return apperrors.NewInvalidInputError("quantity", "must be greater than zero")
	}
	if a.PurchasePrice < 0 {
		return apperrors.NewInvalidInputError("purchase_price", "must not be negative")
	}
	return nil
}
