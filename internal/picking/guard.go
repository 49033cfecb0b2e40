package picking

import (
	"strings"
	"sync"
)

// DuplicateKey identifies one physical label of one product
type DuplicateKey string

// NewDuplicateKey builds the key for a product/label pair
func NewDuplicateKey(productCode, labelID string) DuplicateKey {
	return DuplicateKey(productCode + "|" + labelID)
}

// Guard remembers which labels were already counted in the open session so a
// re-read of the same label is rejected without a round trip. It is a local
// cache only; the backend still decides on quantities.
type Guard struct {
	mu   sync.Mutex
	keys map[DuplicateKey]struct{}
}

// NewGuard creates an empty Guard
func NewGuard() *Guard {
	return &Guard{keys: make(map[DuplicateKey]struct{})}
}

// TryReserve records the label and returns true, or returns false if it was already recorded
func (g *Guard) TryReserve(productCode, labelID string) bool {
	key := NewDuplicateKey(productCode, labelID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

// Release forgets a label so it can be scanned again
func (g *Guard) Release(productCode, labelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, NewDuplicateKey(productCode, labelID))
}

// ReleaseProduct forgets every label recorded for a product
func (g *Guard) ReleaseProduct(productCode string) {
	prefix := productCode + "|"

	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.keys {
		if strings.HasPrefix(string(k), prefix) {
			delete(g.keys, k)
		}
	}
}

// Clear forgets every label
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.keys)
}

// Len returns the number of recorded labels
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

// Contains reports whether a label is recorded
func (g *Guard) Contains(productCode, labelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.keys[NewDuplicateKey(productCode, labelID)]
	return ok
}
