package route

import "sync"

// List is the active handler configuration, kept in dispatch order:
// descending priority, registration order among equal priorities.
// Mutations are serialized; readers work on snapshots.
type List struct {
	mu       sync.RWMutex
	handlers []*Handler
}

// NewList creates a list holding handlers in the given order.
func NewList(handlers ...*Handler) *List {
	l := &List{}
	for _, h := range handlers {
		l.Append(h)
	}
	return l
}

// Append inserts h after every handler of equal or higher priority. It
// returns false when a handler with the same name is already configured.
func (l *List) Append(h *Handler) bool {
	if h == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexLocked(h.Name()) >= 0 {
		return false
	}
	l.insertLocked(h)
	return true
}

func (l *List) insertLocked(h *Handler) {
	at := len(l.handlers)
	for i, existing := range l.handlers {
		if existing.Priority() < h.Priority() {
			at = i
			break
		}
	}
	l.handlers = append(l.handlers, nil)
	copy(l.handlers[at+1:], l.handlers[at:])
	l.handlers[at] = h
}

// Replace swaps the handler configured under h's name for h, keeping its
// position when the priority is unchanged. It appends when the name is new.
func (l *List) Replace(h *Handler) {
	if h == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(h.Name())
	if idx >= 0 && l.handlers[idx].Priority() == h.Priority() {
		l.handlers[idx] = h
		return
	}
	if idx >= 0 {
		l.handlers = append(l.handlers[:idx], l.handlers[idx+1:]...)
	}
	l.insertLocked(h)
}

// Remove drops the named handler. It reports whether one was removed.
func (l *List) Remove(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexLocked(name)
	if idx < 0 {
		return false
	}
	l.handlers = append(l.handlers[:idx], l.handlers[idx+1:]...)
	return true
}

// Contains reports whether a handler with this name is configured.
func (l *List) Contains(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(name) >= 0
}

// Get returns the named handler.
func (l *List) Get(name string) (*Handler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if idx := l.indexLocked(name); idx >= 0 {
		return l.handlers[idx], true
	}
	return nil, false
}

// Snapshot returns the handlers in dispatch order.
func (l *List) Snapshot() []*Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Handler, len(l.handlers))
	copy(out, l.handlers)
	return out
}

// Len returns the number of configured handlers.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

func (l *List) indexLocked(name string) int {
	for i, h := range l.handlers {
		if h.Name() == name {
			return i
		}
	}
	return -1
}
