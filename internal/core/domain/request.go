package domain

import (
	"bytes"
	"maps"
	"net/http"
	"strings"
)

// Request is the read-only view of an incoming request the core consumes.
type Request interface {
	Method() string
	Path() string
	Header(name string) string
}

// BasicRequest is a Request backed by plain values. It is used for
// non-HTTP callers and tests.
type BasicRequest struct {
	method  string
	path    string
	headers http.Header
}

// NewRequest creates a BasicRequest. The method is upper-cased.
func NewRequest(method, path string, headers http.Header) *BasicRequest {
	if headers == nil {
		headers = make(http.Header)
	}
	return &BasicRequest{
		method:  strings.ToUpper(method),
		path:    path,
		headers: headers,
	}
}

func (r *BasicRequest) Method() string            { return r.method }
func (r *BasicRequest) Path() string              { return r.path }
func (r *BasicRequest) Header(name string) string { return r.headers.Get(name) }

// Headers returns the underlying header map.
func (r *BasicRequest) Headers() http.Header { return r.headers }

// pathRequest overrides the path of another Request.
type pathRequest struct {
	Request
	path string
}

func (r *pathRequest) Path() string { return r.path }

// Unwrap returns the request whose path was overridden.
func (r *pathRequest) Unwrap() Request { return r.Request }

// WithPath returns a view of req that reports path instead of its own.
func WithPath(req Request, path string) Request {
	return &pathRequest{Request: req, path: path}
}

// Triple is the terminal (status, headers, body) produced by Finish.
type Triple struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Response is the sink stages write the terminal response into.
type Response interface {
	SetStatus(code int)
	Header() http.Header
	Write(p []byte) (int, error)
	Finish() Triple
}

// ResponseBuffer is an in-memory Response. It also satisfies
// http.ResponseWriter so plain http.Handlers can write into it.
type ResponseBuffer struct {
	status int
	header http.Header
	body   bytes.Buffer
}

// NewResponseBuffer creates an empty buffer with status 200.
func NewResponseBuffer() *ResponseBuffer {
	return &ResponseBuffer{status: http.StatusOK, header: make(http.Header)}
}

// ResponseFromTriple creates a buffer preloaded with a finished response.
func ResponseFromTriple(t Triple) *ResponseBuffer {
	b := NewResponseBuffer()
	if t.Status != 0 {
		b.status = t.Status
	}
	if t.Headers != nil {
		b.header = t.Headers.Clone()
	}
	b.body.Write(t.Body)
	return b
}

func (b *ResponseBuffer) SetStatus(code int)          { b.status = code }
func (b *ResponseBuffer) WriteHeader(code int)        { b.status = code }
func (b *ResponseBuffer) Header() http.Header         { return b.header }
func (b *ResponseBuffer) Write(p []byte) (int, error) { return b.body.Write(p) }

// Status returns the status set so far.
func (b *ResponseBuffer) Status() int { return b.status }

// Reset discards the body written so far.
func (b *ResponseBuffer) Reset() { b.body.Reset() }

// Finish produces the final triple. The buffer remains usable.
func (b *ResponseBuffer) Finish() Triple {
	return Triple{
		Status:  b.status,
		Headers: maps.Clone(b.header),
		Body:    bytes.Clone(b.body.Bytes()),
	}
}
