package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// Verifier turns a credential token into an identity. A nil identity with a
// nil error means the token was not recognized.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (*domain.Identity, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	return f(ctx, token)
}

// TokenVerifier accepts any well-formed token and derives a stable user id
// from its hash.
type TokenVerifier struct{}

// Verify implements Verifier.
func (TokenVerifier) Verify(_ context.Context, token string) (*domain.Identity, error) {
	sum := sha256.Sum256([]byte(token))
	return &domain.Identity{UserID: "user_" + hex.EncodeToString(sum[:])[:12]}, nil
}

// Authenticate reads a bearer credential from the request and stores the
// verified identity on the context.
type Authenticate struct {
	// Header is the request header carrying the credential. Default: Authorization.
	Header string
	// Verifier resolves tokens. Default: TokenVerifier.
	Verifier Verifier
	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Perform implements Performer.
func (a *Authenticate) Perform(ctx context.Context, sc *domain.Context) domain.Result {
	header := a.Header
	if header == "" {
		header = "Authorization"
	}

	raw := strings.TrimSpace(sc.Request.Header(header))
	if raw == "" {
		return domain.Failure(domain.ErrMissingCredentials())
	}

	token, ok := parseBearer(raw)
	if !ok {
		return domain.Failure(domain.ErrInvalidCredentials())
	}

	verifier := a.Verifier
	if verifier == nil {
		verifier = TokenVerifier{}
	}
	identity, err := verifier.Verify(ctx, token)
	if err != nil || identity == nil {
		return domain.Failure(domain.ErrAuthenticationFailed())
	}

	identity.Token = token
	if identity.AuthenticatedAt.IsZero() {
		identity.AuthenticatedAt = now(a.Now)
	}
	sc.Identity = identity
	return domain.Success(sc)
}

// parseBearer extracts the token from a "Bearer <token>" value.
func parseBearer(raw string) (string, bool) {
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// Decider makes the permission decision for the authorize stage.
type Decider interface {
	Decide(ctx context.Context, identity *domain.Identity, resource, action string) (bool, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, identity *domain.Identity, resource, action string) (bool, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, identity *domain.Identity, resource, action string) (bool, error) {
	return f(ctx, identity, resource, action)
}

// AllowAll permits every request.
var AllowAll Decider = DeciderFunc(func(context.Context, *domain.Identity, string, string) (bool, error) {
	return true, nil
})

// DenyAll refuses every request.
var DenyAll Decider = DeciderFunc(func(context.Context, *domain.Identity, string, string) (bool, error) {
	return false, nil
})

// Authorize decides whether the authenticated identity may perform the
// request's action on its resource.
type Authorize struct {
	// Resource derives the resource id. Default: request path.
	Resource func(domain.Request) string
	// Action derives the action id. Default: lower-cased method.
	Action func(domain.Request) string
	// Decider makes the decision. Default: AllowAll.
	Decider Decider
	Now     func() time.Time
}

// Perform implements Performer.
func (a *Authorize) Perform(ctx context.Context, sc *domain.Context) domain.Result {
	if sc.Identity == nil {
		return domain.Failure(domain.ErrNoIdentity())
	}

	resource := sc.Request.Path()
	if a.Resource != nil {
		resource = a.Resource(sc.Request)
	}
	action := strings.ToLower(sc.Request.Method())
	if a.Action != nil {
		action = a.Action(sc.Request)
	}

	decider := a.Decider
	if decider == nil {
		decider = AllowAll
	}
	allowed, err := decider.Decide(ctx, sc.Identity, resource, action)
	if err != nil {
		denied := domain.ErrAccessDenied()
		denied.Message = err.Error()
		return domain.Failure(denied)
	}
	if !allowed {
		return domain.Failure(domain.ErrAccessDenied())
	}

	sc.Permissions = &domain.Permissions{
		Allowed:      true,
		Identity:     sc.Identity,
		Resource:     resource,
		Action:       action,
		AuthorizedAt: now(a.Now),
	}
	return domain.Success(sc)
}

// ActionFunc is the business logic of a handler. Returning a *domain.StageError
// passes it through unchanged (custom codes and status hints); any other
// error becomes action_failed.
type ActionFunc func(ctx context.Context, req domain.Request, identity *domain.Identity, perms *domain.Permissions) (any, error)

// Action runs business logic and stores its result on the context.
type Action struct {
	Logic ActionFunc
}

// Perform implements Performer.
func (a *Action) Perform(ctx context.Context, sc *domain.Context) domain.Result {
	if sc.Permissions == nil {
		return domain.Failure(domain.ErrNoAuthorization())
	}
	if a.Logic == nil {
		return domain.Failure(domain.ErrNotImplementedAction())
	}

	result, err := a.Logic(ctx, sc.Request, sc.Identity, sc.Permissions)
	if err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			return domain.Failure(stageErr)
		}
		return domain.Failure(domain.ErrActionFailed(err.Error()))
	}
	if result == nil {
		return domain.Failure(domain.ErrActionFailed(""))
	}

	sc.ActionResult = result
	return domain.Success(sc)
}

// Reply lets an action control the rendered status and headers.
type Reply struct {
	Status  int
	Headers http.Header
	Body    any
}

// Render writes the action result onto the context's response.
type Render struct {
	// Status is used when the action result does not carry one. Default: 200.
	Status int
	// Encode serializes the body. Default: json.Marshal.
	Encode func(any) ([]byte, error)
	// ContentType defaults to application/json.
	ContentType string
}

// Perform implements Performer.
func (r *Render) Perform(_ context.Context, sc *domain.Context) domain.Result {
	if sc.ActionResult == nil {
		return domain.Failure(domain.ErrNoActionResult())
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := sc.ActionResult
	var extra http.Header
	switch v := sc.ActionResult.(type) {
	case *Reply:
		if v.Status != 0 {
			status = v.Status
		}
		extra, body = v.Headers, v.Body
	case Reply:
		if v.Status != 0 {
			status = v.Status
		}
		extra, body = v.Headers, v.Body
	}

	encode := r.Encode
	if encode == nil {
		encode = json.Marshal
	}
	payload, err := encode(body)
	if err != nil {
		return domain.Failure(domain.NewStageError(domain.KindRender, domain.CodeSerializationFailed, err.Error()))
	}

	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	resp := sc.Response
	resp.Header().Set("Content-Type", contentType)
	for k, vs := range extra {
		for _, v := range vs {
			resp.Header().Add(k, v)
		}
	}
	resp.SetStatus(status)
	if _, err := resp.Write(payload); err != nil {
		return domain.Failure(domain.NewStageError(domain.KindRender, domain.CodeSerializationFailed, err.Error()))
	}
	return domain.Success(sc)
}

// NoOp fills in placeholder identity and permissions so a handler can skip
// authentication and authorization by substitution. It always succeeds.
type NoOp struct{}

// Perform implements Performer.
func (NoOp) Perform(_ context.Context, sc *domain.Context) domain.Result {
	if sc.Identity == nil {
		sc.Identity = &domain.Identity{UserID: "anonymous", AuthenticatedAt: time.Now()}
	}
	if sc.Permissions == nil {
		sc.Permissions = &domain.Permissions{
			Allowed:      true,
			Identity:     sc.Identity,
			Resource:     sc.Request.Path(),
			Action:       strings.ToLower(sc.Request.Method()),
			AuthorizedAt: time.Now(),
		}
	}
	return domain.Success(sc)
}

func now(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}
