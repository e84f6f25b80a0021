package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// OnError is what a WebhookDecider answers when the webhook cannot be reached.
type OnError string

const (
	OnErrorAllow OnError = "allow"
	OnErrorDeny  OnError = "deny"
)

// WebhookRequest is the body posted to an authorization webhook.
type WebhookRequest struct {
	Resource   string         `json:"resource"`
	Action     string         `json:"action"`
	UserID     string         `json:"user_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WebhookResponse is the decision an authorization webhook returns.
type WebhookResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// WebhookDecider delegates the authorize decision to an external HTTP
// endpoint.
type WebhookDecider struct {
	url     string
	onError OnError
	headers map[string]string
	client  *http.Client
}

// WebhookConfig configures a WebhookDecider.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	OnError OnError // default: deny
	Headers map[string]string
	// Transport is the round tripper used for calls. Default: http.DefaultTransport.
	Transport http.RoundTripper
}

// NewWebhookDecider creates a webhook decider.
func NewWebhookDecider(cfg WebhookConfig) (*WebhookDecider, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook decider: url is required")
	}
	onError := cfg.OnError
	if onError == "" {
		onError = OnErrorDeny
	}
	if onError != OnErrorAllow && onError != OnErrorDeny {
		return nil, fmt.Errorf("webhook decider: invalid on_error %q (must be 'allow' or 'deny')", onError)
	}
	return &WebhookDecider{
		url:     cfg.URL,
		onError: onError,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}, nil
}

// Decide implements Decider. The webhook is called once; when it cannot
// answer, OnError decides. A denial with a reason is reported as an error so
// the reason reaches the access_denied message.
func (w *WebhookDecider) Decide(ctx context.Context, identity *domain.Identity, resource, action string) (bool, error) {
	in := WebhookRequest{Resource: resource, Action: action}
	if identity != nil {
		in.UserID = identity.UserID
		in.Attributes = identity.Attributes
	}

	out, err := w.do(ctx, in)
	if err != nil {
		if w.onError == OnErrorAllow {
			return true, nil
		}
		return false, fmt.Errorf("authorization webhook error: %w", err)
	}
	if !out.Allowed && out.Reason != "" {
		return false, errors.New(out.Reason)
	}
	return out.Allowed, nil
}

func (w *WebhookDecider) do(ctx context.Context, in WebhookRequest) (*WebhookResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out WebhookResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal webhook response: %w", err)
	}
	return &out, nil
}

var _ Decider = (*WebhookDecider)(nil)
