package subscription

import (
	"sync"

	"github.com/bobmcallan/sharesrus/internal/models"
)

type call struct {
	op     string
	symbol string
}

// fakeTransport records every command in order and tracks the wire-level set.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	active  map[string]bool
	handler models.PriceHandler
	onSets  int
	offSets int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{active: make(map[string]bool)}
}

func (f *fakeTransport) Subscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"subscribe", symbol})
	f.active[symbol] = true
}

func (f *fakeTransport) Unsubscribe(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"unsubscribe", symbol})
	delete(f.active, symbol)
}

func (f *fakeTransport) OnUpdate(h models.PriceHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.onSets++
}

func (f *fakeTransport) OffUpdate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.offSets++
}

func (f *fakeTransport) emit(upd models.PriceUpdate) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(upd)
	}
}

func (f *fakeTransport) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeTransport) isActive(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[symbol]
}

func (f *fakeTransport) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}
