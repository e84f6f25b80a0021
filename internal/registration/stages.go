package registration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
	"github.com/tjfontaine/stageline/internal/pipeline"
	"github.com/tjfontaine/stageline/internal/pkg/safehttp"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/route"
)

func named(slot pipeline.StageName, newPerformer func() pipeline.Performer) route.StageFactory {
	return func() *pipeline.Stage {
		return pipeline.NamedStage(string(slot), newPerformer())
	}
}

func bearer(deps Deps) plugin.StageBuilder {
	return func(p plugin.Params) (route.StageFactory, error) {
		header := p.String("header", "")
		return named(pipeline.StageAuthenticate, func() pipeline.Performer {
			return &pipeline.Authenticate{Header: header, Now: deps.Now}
		}), nil
	}
}

func apiKey(deps Deps) plugin.StageBuilder {
	return func(p plugin.Params) (route.StageFactory, error) {
		if deps.APIKeys == nil {
			return nil, errors.New("api_key authenticator requires configured auth.api_keys")
		}
		header := p.String("header", "")
		return named(pipeline.StageAuthenticate, func() pipeline.Performer {
			return &pipeline.Authenticate{Header: header, Verifier: deps.APIKeys, Now: deps.Now}
		}), nil
	}
}

func noop(slot pipeline.StageName) plugin.StageBuilder {
	return func(plugin.Params) (route.StageFactory, error) {
		return named(slot, func() pipeline.Performer { return pipeline.NoOp{} }), nil
	}
}

func decider(d pipeline.Decider, deps Deps) plugin.StageBuilder {
	return func(plugin.Params) (route.StageFactory, error) {
		return named(pipeline.StageAuthorize, func() pipeline.Performer {
			return &pipeline.Authorize{Decider: d, Now: deps.Now}
		}), nil
	}
}

// webhook asks an external endpoint for the authorize decision.
func webhook(deps Deps) plugin.StageBuilder {
	return func(p plugin.Params) (route.StageFactory, error) {
		timeout, err := time.ParseDuration(p.String("timeout", "5s"))
		if err != nil {
			return nil, fmt.Errorf("webhook authorizer: timeout: %w", err)
		}
		headers := make(map[string]string)
		if raw, ok := p["headers"].(map[string]any); ok {
			for k, v := range raw {
				headers[k] = fmt.Sprint(v)
			}
		}
		cfg := pipeline.WebhookConfig{
			URL:     p.String("url", ""),
			Timeout: timeout,
			OnError: pipeline.OnError(p.String("on_error", "")),
			Headers: headers,
		}
		if !p.Bool("allow_private_network", false) {
			cfg.Transport = safehttp.NewTransport()
		}
		d, err := pipeline.NewWebhookDecider(cfg)
		if err != nil {
			return nil, err
		}
		return decider(d, deps)(p)
	}
}

// echo answers with what the request and the earlier stages produced.
func echo(p plugin.Params) (route.StageFactory, error) {
	message := p.String("message", "")
	return named(pipeline.StageAction, func() pipeline.Performer {
		return pipeline.PerformerFunc(func(ctx context.Context, sc *domain.Context) domain.Result {
			logic := func(_ context.Context, req domain.Request, id *domain.Identity, _ *domain.Permissions) (any, error) {
				out := map[string]any{
					"method": req.Method(),
					"path":   req.Path(),
				}
				if id != nil {
					out["user_id"] = id.UserID
				}
				if params := sc.PathParams(); len(params) > 0 {
					out["params"] = params
				}
				if message != "" {
					out["message"] = message
				}
				return out, nil
			}
			return (&pipeline.Action{Logic: logic}).Perform(ctx, sc)
		})
	}), nil
}

// status answers with a fixed status code.
func status(p plugin.Params) (route.StageFactory, error) {
	code := p.Int("code", http.StatusOK)
	if code < 100 || code > 999 {
		return nil, errors.New("status action: code must be a valid HTTP status")
	}
	message := p.String("message", http.StatusText(code))
	return named(pipeline.StageAction, func() pipeline.Performer {
		return &pipeline.Action{Logic: func(context.Context, domain.Request, *domain.Identity, *domain.Permissions) (any, error) {
			return &pipeline.Reply{Status: code, Body: map[string]any{"status": code, "message": message}}, nil
		}}
	}), nil
}

func renderJSON(p plugin.Params) (route.StageFactory, error) {
	code := p.Int("status", 0)
	return named(pipeline.StageRender, func() pipeline.Performer {
		return &pipeline.Render{Status: code}
	}), nil
}
