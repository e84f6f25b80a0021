package registration

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/plugin"
)

// tagRequest stores a fixed value in the context extensions.
func tagRequest(p plugin.Params) (pipeline.Hook, error) {
	key := p.String("key", "")
	if key == "" {
		return nil, errors.New("tag_request: key is required")
	}
	value := p.String("value", "true")
	return func(_ context.Context, sc *domain.Context) domain.Result {
		sc.Set(key, value)
		return domain.Success(sc)
	}, nil
}

// requireHeader fails unless the request carries a header. The status
// param (default 400) applies in the action and render slots; in the
// authenticate and authorize slots the failure answers 401 and 403.
func requireHeader(p plugin.Params) (pipeline.Hook, error) {
	header := p.String("header", "")
	if header == "" {
		return nil, errors.New("require_header: header is required")
	}
	code := p.Int("status", http.StatusBadRequest)
	return func(_ context.Context, sc *domain.Context) domain.Result {
		if sc.Request.Header(header) != "" {
			return domain.Success(sc)
		}
		return domain.Failure(domain.NewStageError(domain.KindAction, "missing_header",
			fmt.Sprintf("Missing required header %s", header)).WithStatus(code))
	}, nil
}

// stampResponse sets a response header. The value defaults to the mount
// prefix the request came through.
func stampResponse(p plugin.Params) (pipeline.Hook, error) {
	header := p.String("header", "X-Stageline-Mount")
	value := p.String("value", "")
	return func(_ context.Context, sc *domain.Context) domain.Result {
		v := value
		if v == "" {
			v, _ = sc.Env["mount_prefix"].(string)
		}
		if v != "" {
			sc.Response.Header().Set(header, v)
		}
		return domain.Success(sc)
	}, nil
}
