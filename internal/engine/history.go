package engine

import (
	"sync"

	"github.com/hetulpatel/cexarb/internal/models"
)

// history keeps the most recent opportunities by proposal id. Once full,
// the oldest entry is evicted.
type history struct {
	mu    sync.RWMutex
	max   int
	order []string
	byID  map[string]models.Opportunity
}

func newHistory(max int) *history {
	if max <= 0 {
		max = 500
	}
	return &history{max: max, byID: make(map[string]models.Opportunity, max)}
}

func (h *history) add(opps ...models.Opportunity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range opps {
		if _, exists := h.byID[o.ProposalID]; exists {
			continue
		}
		h.byID[o.ProposalID] = o
		h.order = append(h.order, o.ProposalID)
	}
	if len(h.order) > h.max {
		for _, id := range h.order[:len(h.order)-h.max] {
			delete(h.byID, id)
		}
		h.order = append([]string(nil), h.order[len(h.order)-h.max:]...)
	}
}

func (h *history) get(id string) (models.Opportunity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	o, ok := h.byID[id]
	return o, ok
}

// recent returns up to limit entries, newest first.
func (h *history) recent(limit int) []models.Opportunity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.order) {
		limit = len(h.order)
	}
	out := make([]models.Opportunity, 0, limit)
	for i := len(h.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.byID[h.order[i]])
	}
	return out
}

// keyedMutex serializes work per key. Keys are venue pair plus symbol, so
// the map stays bounded by configuration.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
