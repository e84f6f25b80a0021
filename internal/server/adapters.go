package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/route"
)

// Request is the domain.Request view of an *http.Request.
type Request struct {
	r *http.Request
}

// NewRequest wraps r.
func NewRequest(r *http.Request) *Request {
	return &Request{r: r}
}

func (q *Request) Method() string            { return strings.ToUpper(q.r.Method) }
func (q *Request) Header(name string) string { return q.r.Header.Get(name) }

func (q *Request) Path() string {
	if q.r.URL.Path == "" {
		return "/"
	}
	return q.r.URL.Path
}

// Headers returns the request headers.
func (q *Request) Headers() http.Header { return q.r.Header }

// HTTP returns the wrapped request.
func (q *Request) HTTP() *http.Request { return q.r }

// WriteTriple copies a finished response onto w.
func WriteTriple(w http.ResponseWriter, t domain.Triple) {
	for k, vs := range t.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := t.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(t.Body)
}

// Caller serves domain requests; the fallback router is one.
type Caller interface {
	Call(ctx context.Context, req domain.Request) (domain.Triple, error)
}

type internalErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler serves HTTP requests through c. An error from c (one that is not
// already a response) is logged and answered with a bare 500.
func Handler(c Caller, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := c.Call(r.Context(), NewRequest(r))
		if err != nil {
			AddError(r.Context(), err)
			logger.Error("request failed",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			out = route.JSONResponse(http.StatusInternalServerError, internalErrorBody{
				Error:     "Internal server error",
				RequestID: GetRequestID(r.Context()),
			})
		}
		WriteTriple(w, out)
	})
}
