package forwarders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ocx/gateway/internal/gwerrors"
)

// HTTPForwarder posts JSON payloads to a target's HTTP endpoint, per
// spec.md §4.7: "HTTP: POST/PUT JSON body; honors auth header
// constructors; surfaces non-2xx as failure."
type HTTPForwarder struct {
	URL    string
	Method string // defaults to POST
	cfg    Config
	client *http.Client
}

// NewHTTPForwarder builds a forwarder posting/putting to url.
func NewHTTPForwarder(url, method string, cfg Config) *HTTPForwarder {
	if method == "" {
		method = http.MethodPost
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{
		URL:    url,
		Method: method,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPForwarder) Start() error { return nil }
func (f *HTTPForwarder) Stop() error  { return nil }

// Forward dispatches payload with retry, per withRetry's policy.
func (f *HTTPForwarder) Forward(ctx context.Context, payload map[string]any) (Result, error) {
	maxRetries := f.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return withRetry(ctx, maxRetries, func(ctx context.Context, n int) (Result, error) {
		return f.attempt(ctx, payload)
	})
}

func (f *HTTPForwarder) attempt(ctx context.Context, payload map[string]any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeRemote4xx, "payload marshal failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, f.Method, f.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeConnection, "request construction failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.cfg.Auth {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeCancelled, "request cancelled", err)
		}
		return Result{Status: StatusFailure}, gwerrors.Wrap(gwerrors.KindForward, gwerrors.CodeTimeout, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Status: StatusSuccess, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode >= 500:
		return Result{Status: StatusFailure, StatusCode: resp.StatusCode},
			gwerrors.New(gwerrors.KindForward, gwerrors.CodeRemote5xx, fmt.Sprintf("server error %d", resp.StatusCode))
	default:
		return Result{Status: StatusFailure, StatusCode: resp.StatusCode},
			gwerrors.New(gwerrors.KindForward, gwerrors.CodeRemote4xx, fmt.Sprintf("client error %d", resp.StatusCode))
	}
}
