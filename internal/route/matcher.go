package route

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Matcher tests request paths against a chi routing pattern. Literal paths
// match by equality; "{param}", "{param:regex}" and trailing "*" patterns
// capture parameters.
type Matcher struct {
	pattern string
	mux     *chi.Mux
}

var noopHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// NewMatcher compiles a pattern. An empty pattern yields a matcher that never
// matches.
func NewMatcher(pattern string) (m *Matcher, err error) {
	m = &Matcher{pattern: pattern}
	if pattern == "" {
		return m, nil
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("route pattern %q must begin with '/'", pattern)
	}

	// chi panics on malformed patterns.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("invalid route pattern %q: %v", pattern, r)
		}
	}()

	m.mux = chi.NewRouter()
	m.mux.Handle(pattern, noopHandler)
	return m, nil
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// Match reports whether path matches and returns the captured parameters.
// Only the path is matched: chi rejects methods it does not know, so method
// checks stay with the caller.
func (m *Matcher) Match(path string) (map[string]string, bool) {
	if m == nil || m.mux == nil {
		return nil, false
	}

	rctx := chi.NewRouteContext()
	if !m.mux.Match(rctx, http.MethodGet, path) {
		return nil, false
	}

	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		params[k] = rctx.URLParams.Values[i]
	}
	return params, true
}

// Base returns the literal prefix children are mounted under: the pattern
// with any trailing wildcard and slash removed.
func (m *Matcher) Base() string {
	base := strings.TrimSuffix(m.pattern, "*")
	base = strings.TrimRight(base, "/")
	return base
}
