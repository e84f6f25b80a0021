package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/core/ports"
)

// ChiUpstream exposes a chi router as the host router the fallback router
// wraps. Requests it has no route for yield ports.ErrRouteNotFound.
type ChiUpstream struct {
	mux *chi.Mux
}

// NewChiUpstream wraps mux.
func NewChiUpstream(mux *chi.Mux) *ChiUpstream {
	return &ChiUpstream{mux: mux}
}

// Call implements ports.Upstream.
func (u *ChiUpstream) Call(ctx context.Context, req domain.Request) (domain.Triple, error) {
	if !u.mux.Match(chi.NewRouteContext(), req.Method(), req.Path()) {
		return domain.Triple{}, ports.ErrRouteNotFound
	}

	hr, err := httpRequest(ctx, req)
	if err != nil {
		return domain.Triple{}, err
	}
	buf := domain.NewResponseBuffer()
	u.mux.ServeHTTP(buf, hr)
	return buf.Finish(), nil
}

// httpRequest recovers or rebuilds the *http.Request behind req. The outer
// router's route context is cleared so the upstream routes from scratch.
func httpRequest(ctx context.Context, req domain.Request) (*http.Request, error) {
	ctx = context.WithValue(ctx, chi.RouteCtxKey, (*chi.Context)(nil))

	if view, ok := req.(*Request); ok {
		return view.HTTP().WithContext(ctx), nil
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method(), req.Path(), nil)
	if err != nil {
		return nil, err
	}
	if h := headersOf(req); h != nil {
		hr.Header = h.Clone()
	}
	return hr, nil
}

// headersOf finds the header map behind req, looking through path-override
// views.
func headersOf(req domain.Request) http.Header {
	for req != nil {
		if h, ok := req.(interface{ Headers() http.Header }); ok {
			return h.Headers()
		}
		u, ok := req.(interface{ Unwrap() domain.Request })
		if !ok {
			return nil
		}
		req = u.Unwrap()
	}
	return nil
}
