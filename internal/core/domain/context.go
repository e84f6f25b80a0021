package domain

import (
	"maps"
	"time"
)

// Well-known context keys. The core fields have typed accessors on Context;
// the keys are used when a context is rendered as a map (logs, hooks, tests).
const (
	KeyRequest      = "request"
	KeyResponse     = "response"
	KeyIdentity     = "identity"
	KeyPermissions  = "permissions"
	KeyActionResult = "action_result"

	// KeyPathParams holds the route parameters captured by the matcher.
	KeyPathParams = "path_params"
)

// Identity is the record the authenticate stage stores on success.
type Identity struct {
	Token           string         `json:"-"`
	UserID          string         `json:"user_id"`
	AuthenticatedAt time.Time      `json:"authenticated_at"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// Permissions is the record the authorize stage stores on success.
type Permissions struct {
	Allowed      bool      `json:"allowed"`
	Identity     *Identity `json:"identity,omitempty"`
	Resource     string    `json:"resource"`
	Action       string    `json:"action"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

// Context is the mutable state threaded through a task's stages.
//
// It is created fresh per request and owned by whichever stage is executing.
// The core fields are typed; anything a custom stage or wrapper hook adds
// goes into the extension bag via Set/Get.
type Context struct {
	// Env is the raw request-handling environment (request id, remote
	// address and similar transport details).
	Env map[string]any

	Request  Request
	Response Response

	Identity     *Identity
	Permissions  *Permissions
	ActionResult any

	ext map[string]any
}

// NewContext builds the initial context for a request. Identity, permissions
// and the action result start empty.
func NewContext(req Request, resp Response) *Context {
	if resp == nil {
		resp = NewResponseBuffer()
	}
	return &Context{
		Env:      make(map[string]any),
		Request:  req,
		Response: resp,
		ext:      make(map[string]any),
	}
}

// Set stores a free-form value.
func (c *Context) Set(key string, value any) {
	if c.ext == nil {
		c.ext = make(map[string]any)
	}
	c.ext[key] = value
}

// Get returns a free-form value.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.ext[key]
	return v, ok
}

// Delete removes a free-form value.
func (c *Context) Delete(key string) {
	delete(c.ext, key)
}

// Extensions returns a copy of the free-form values.
func (c *Context) Extensions() map[string]any {
	return maps.Clone(c.ext)
}

// PathParams returns the route parameters captured for this request, if any.
func (c *Context) PathParams() map[string]string {
	if v, ok := c.ext[KeyPathParams].(map[string]string); ok {
		return v
	}
	return nil
}

// Snapshot flattens the context into a single map keyed by the well-known
// keys plus every extension. Request and response are left out.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.ext)+3)
	for k, v := range c.ext {
		out[k] = v
	}
	if c.Identity != nil {
		out[KeyIdentity] = c.Identity
	}
	if c.Permissions != nil {
		out[KeyPermissions] = c.Permissions
	}
	if c.ActionResult != nil {
		out[KeyActionResult] = c.ActionResult
	}
	return out
}
