package plugin

import (
	"sync"

	"github.com/tjfontaine/stageline/internal/route"
)

// Catalog is where loaded plugin files define their handlers. Definitions
// are kept as an append-only log so discovery can ask what a load added.
type Catalog struct {
	mu     sync.RWMutex
	log    []*route.Handler
	byName map[string]*route.Handler
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]*route.Handler)}
}

// Define records h. A later definition of the same name shadows earlier ones.
func (c *Catalog) Define(h *route.Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, h)
	c.byName[h.Name()] = h
}

// Lookup returns the current definition of name.
func (c *Catalog) Lookup(name string) (*route.Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.byName[name]
	return h, ok
}

// Mark returns a position in the definition log.
func (c *Catalog) Mark() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.log)
}

// Since returns the current definitions of the names defined after mark, in
// first-definition order.
func (c *Catalog) Since(mark int) []*route.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if mark < 0 {
		mark = 0
	}
	seen := make(map[string]bool)
	var out []*route.Handler
	for _, h := range c.log[min(mark, len(c.log)):] {
		if seen[h.Name()] {
			continue
		}
		seen[h.Name()] = true
		out = append(out, c.byName[h.Name()])
	}
	return out
}

// Len returns the number of distinct names defined.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
