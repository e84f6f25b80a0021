package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

// HandlerDelegate lets a plain http.Handler serve as a delegation target.
// An action starting with "/" replaces the request path; any other action
// is passed along in the X-Stageline-Action header.
type HandlerDelegate struct {
	Handler http.Handler
}

var _ ports.Delegate = (*HandlerDelegate)(nil)

// Invoke implements ports.Delegate.
func (d *HandlerDelegate) Invoke(ctx context.Context, action string, req domain.Request) (domain.Triple, error) {
	hr, err := httpRequest(ctx, req)
	if err != nil {
		return domain.Triple{}, err
	}
	if strings.HasPrefix(action, "/") {
		hr = hr.Clone(hr.Context())
		hr.URL.Path = action
		hr.URL.RawPath = ""
	} else if action != "" {
		hr = hr.Clone(hr.Context())
		hr.Header.Set("X-Stageline-Action", action)
	}

	buf := domain.NewResponseBuffer()
	d.Handler.ServeHTTP(buf, hr)
	return buf.Finish(), nil
}

// Delegates resolves delegation targets by name.
type Delegates map[string]ports.Delegate

var _ ports.DelegateResolver = Delegates(nil)

// Resolve implements ports.DelegateResolver.
func (m Delegates) Resolve(target string) (ports.Delegate, bool) {
	d, ok := m[target]
	return d, ok
}
