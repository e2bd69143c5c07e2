// Package subscription owns the process-wide symbol subscription set and the
// single price-update handler slot of the price transport.
package subscription

import (
	"sort"
	"strings"
	"sync"

	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

// SyncResult lists the transport commands issued by one Sync call.
type SyncResult struct {
	Subscribed   []string
	Unsubscribed []string
}

// Reconciler reference-counts symbols across owners. A symbol is subscribed
// on the transport exactly while its count is above zero.
//
// Transport commands are issued while the lock is held so that the order of
// subscribe/unsubscribe on the wire matches the order of count transitions.
// The transport contract guarantees those calls never block.
type Reconciler struct {
	transport interfaces.PriceTransport
	logger    *common.Logger

	mu     sync.Mutex
	counts map[string]int
	owners map[string]map[string]struct{}
}

// NewReconciler creates a reconciler issuing commands to transport.
func NewReconciler(transport interfaces.PriceTransport, logger *common.Logger) *Reconciler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Reconciler{
		transport: transport,
		logger:    logger,
		counts:    make(map[string]int),
		owners:    make(map[string]map[string]struct{}),
	}
}

// Sync makes desired the owner's registered symbol set. Symbols newly
// required are counted up (subscribing on 0→1); symbols dropped are counted
// down (unsubscribing on 1→0). Calling Sync again with the same set is a no-op.
func (r *Reconciler) Sync(owner string, desired []string) SyncResult {
	want := toSet(desired)

	r.mu.Lock()
	defer r.mu.Unlock()

	have := r.owners[owner]
	var res SyncResult

	for _, sym := range sortedKeys(have) {
		if _, keep := want[sym]; keep {
			continue
		}
		r.counts[sym]--
		if r.counts[sym] <= 0 {
			delete(r.counts, sym)
			r.transport.Unsubscribe(sym)
			res.Unsubscribed = append(res.Unsubscribed, sym)
		}
	}

	for _, sym := range sortedKeys(want) {
		if _, held := have[sym]; held {
			continue
		}
		r.counts[sym]++
		if r.counts[sym] == 1 {
			r.transport.Subscribe(sym)
			res.Subscribed = append(res.Subscribed, sym)
		}
	}

	if len(want) == 0 {
		delete(r.owners, owner)
	} else {
		r.owners[owner] = want
	}

	if len(res.Subscribed) > 0 || len(res.Unsubscribed) > 0 {
		r.logger.Debug().
			Str("owner", owner).
			Strs("subscribed", res.Subscribed).
			Strs("unsubscribed", res.Unsubscribed).
			Int("active", len(r.counts)).
			Msg("Subscriptions reconciled")
	}

	return res
}

// Release drops every symbol held by owner. Equivalent to Sync(owner, nil).
func (r *Reconciler) Release(owner string) SyncResult {
	return r.Sync(owner, nil)
}

// RefCount returns the number of owners requiring symbol.
func (r *Reconciler) RefCount(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[normalise(symbol)]
}

// Counts returns every active symbol with its reference count, sorted by symbol.
func (r *Reconciler) Counts() []models.SubscriptionCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SubscriptionCount, 0, len(r.counts))
	for _, sym := range sortedKeys(r.counts) {
		out = append(out, models.SubscriptionCount{Symbol: sym, Count: r.counts[sym]})
	}
	return out
}

// OwnerSymbols returns the symbols currently registered for owner, sorted.
func (r *Reconciler) OwnerSymbols(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.owners[owner])
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = normalise(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalise(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
