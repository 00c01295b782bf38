package provider

import (
	"sort"
	"sync"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
)

// Upstream is the pair of wire calls the registry drives.
type Upstream interface {
	SubscribeSymbol(symbol string) error
	UnsubscribeSymbol(symbol string) error
}

// Registry maps symbols to listener sets. A symbol is subscribed upstream
// exactly while its set is non-empty.
type Registry struct {
	upstream  Upstream
	logger    *logger.Logger
	mu        sync.Mutex
	wireMu    sync.Mutex
	listeners map[string]map[interfaces.IPriceListener]struct{}
}

func NewRegistry(upstream Upstream, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		upstream:  upstream,
		logger:    log,
		listeners: make(map[string]map[interfaces.IPriceListener]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Subscribe adds listener to every symbol. Adding it twice is a no-op.
func (r *Registry) Subscribe(symbols []string, listener interfaces.IPriceListener) {
	r.mu.Lock()
	var added []string
	for _, symbol := range symbols {
		set, ok := r.listeners[symbol]
		if !ok {
			set = make(map[interfaces.IPriceListener]struct{})
			r.listeners[symbol] = set
			added = append(added, symbol)
		}
		set[listener] = struct{}{}
	}
	r.flush(added, nil)
}

// -----------------------------------------------------------------------------

// Unsubscribe removes listener from every symbol.
func (r *Registry) Unsubscribe(symbols []string, listener interfaces.IPriceListener) {
	r.mu.Lock()
	var removed []string
	for _, symbol := range symbols {
		if r.removeLocked(symbol, listener) {
			removed = append(removed, symbol)
		}
	}
	r.flush(nil, removed)
}

// -----------------------------------------------------------------------------

// UnsubscribeAll removes listener wherever it is registered.
func (r *Registry) UnsubscribeAll(listener interfaces.IPriceListener) {
	r.mu.Lock()
	var removed []string
	for symbol := range r.listeners {
		if r.removeLocked(symbol, listener) {
			removed = append(removed, symbol)
		}
	}
	r.flush(nil, removed)
}

// removeLocked drops listener from symbol and reports whether the set emptied.
func (r *Registry) removeLocked(symbol string, listener interfaces.IPriceListener) bool {
	set, ok := r.listeners[symbol]
	if !ok {
		return false
	}
	if _, ok := set[listener]; !ok {
		return false
	}

	delete(set, listener)
	if len(set) == 0 {
		delete(r.listeners, symbol)
		return true
	}
	return false
}

// flush is entered with r.mu held and releases it. Upstream calls run under
// wireMu only, in the order the transitions were recorded, so Deliver never
// waits on a socket write.
func (r *Registry) flush(added, removed []string) {
	if len(added) == 0 && len(removed) == 0 {
		r.mu.Unlock()
		return
	}
	r.wireMu.Lock()
	r.mu.Unlock()
	defer r.wireMu.Unlock()

	for _, symbol := range added {
		if err := r.upstream.SubscribeSymbol(symbol); err != nil {
			r.logger.Warning("Upstream subscribe %s failed: %v", symbol, err)
		}
	}
	for _, symbol := range removed {
		if err := r.upstream.UnsubscribeSymbol(symbol); err != nil {
			r.logger.Warning("Upstream unsubscribe %s failed: %v", symbol, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Deliver fans price out to the current listeners of symbol, synchronously,
// outside the registry lock.
func (r *Registry) Deliver(symbol string, price models.MStockPrice) {
	r.mu.Lock()
	set := r.listeners[symbol]
	snapshot := make([]interfaces.IPriceListener, 0, len(set))
	for l := range set {
		snapshot = append(snapshot, l)
	}
	r.mu.Unlock()

	for _, l := range snapshot {
		l.OnPrice(price)
	}
}

// -----------------------------------------------------------------------------

// Symbols returns the symbols with at least one listener, sorted.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.listeners))
	for s := range r.listeners {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
