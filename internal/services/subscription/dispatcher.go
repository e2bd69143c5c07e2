package subscription

import (
	"sort"
	"sync"

	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

// Dispatcher fans the transport's single update slot out to per-owner
// listeners. It registers itself on the transport when the first listener
// arrives and clears the slot when the last one leaves.
type Dispatcher struct {
	transport interfaces.PriceTransport
	logger    *common.Logger

	mu        sync.RWMutex
	listeners map[string]models.PriceHandler
	order     []string
	attached  bool
}

// NewDispatcher creates a dispatcher over transport's handler slot.
func NewDispatcher(transport interfaces.PriceTransport, logger *common.Logger) *Dispatcher {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Dispatcher{
		transport: transport,
		logger:    logger,
		listeners: make(map[string]models.PriceHandler),
	}
}

// Add registers (or replaces) the listener for owner.
func (d *Dispatcher) Add(owner string, handler models.PriceHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.listeners[owner]; !exists {
		d.order = append(d.order, owner)
		sort.Strings(d.order)
	}
	d.listeners[owner] = handler

	if !d.attached {
		d.transport.OnUpdate(d.dispatch)
		d.attached = true
		d.logger.Debug().Msg("Price update handler attached")
	}
}

// Remove drops owner's listener, detaching from the transport when none remain.
func (d *Dispatcher) Remove(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.listeners[owner]; !exists {
		return
	}
	delete(d.listeners, owner)
	for i, o := range d.order {
		if o == owner {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	if len(d.listeners) == 0 && d.attached {
		d.transport.OffUpdate()
		d.attached = false
		d.logger.Debug().Msg("Price update handler detached")
	}
}

// Listeners returns the number of registered listeners.
func (d *Dispatcher) Listeners() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// dispatch is the transport handler. Listeners run on the transport's
// delivery goroutine, in owner order, so arrival order is preserved per listener.
func (d *Dispatcher) dispatch(upd models.PriceUpdate) {
	d.mu.RLock()
	handlers := make([]models.PriceHandler, 0, len(d.order))
	for _, owner := range d.order {
		handlers = append(handlers, d.listeners[owner])
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(upd)
	}
}
