package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-connect/pkg/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Provider string // used in errors, logs and span names
	BaseURL  string
	Timeout  time.Duration
	Retry    retry.Config
	// Transport overrides the base transport (tests). It is still wrapped by otelhttp.
	Transport http.RoundTripper
}

// Client performs bearer-authenticated JSON calls against one provider API,
// with bounded retries on transient failures and a span per logical call.
type Client struct {
	provider string
	baseURL  string
	http     *http.Client
	retry    retry.Config
	tracer   trace.Tracer
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		provider: cfg.Provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		retry:  cfg.Retry,
		tracer: otel.Tracer("az-connect/" + cfg.Provider),
	}
}

func (c *Client) Provider() string {
	return c.provider
}

// JSON sends body (if any) as JSON to path and decodes the response into dest (if any).
// Status >= 400 becomes a *ProviderError; transient ones are retried.
func (c *Client) JSON(ctx context.Context, op, method, path, token string, body, dest any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", c.provider, op, err)
		}
		payload = b
	}

	ctx, span := c.tracer.Start(ctx, c.provider+"."+op, trace.WithAttributes(
		attribute.String("provider", c.provider),
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	))
	defer span.End()

	data, err := retry.Do(ctx, c.retry, c.provider+"."+op, func(ctx context.Context) ([]byte, error) {
		return c.once(ctx, op, method, path, token, payload)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if dest != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", c.provider, op, err)
		}
	}
	return nil
}

func (c *Client) once(ctx context.Context, op, method, path, token string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.TransportError(c.provider, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.TransportError(c.provider, op, err)
	}
	if resp.StatusCode >= 400 {
		return nil, retry.StatusError(c.provider, op, resp.StatusCode, string(data))
	}
	return data, nil
}
