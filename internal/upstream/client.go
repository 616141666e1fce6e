package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"devbridge-go/internal/observability"
)

const (
	ProviderGitHub  = "github"
	ProviderClickUp = "clickup"

	userAgent      = "devbridge"
	maxErrorBody   = 4 << 10
	defaultTimeout = 15 * time.Second
)

// Options configures a provider client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.MetricsManager
	Tracing    *observability.TracingManager
}

type client struct {
	provider  string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	logger    *zap.Logger
	metrics   *observability.MetricsManager
	tracing   *observability.TracingManager
	authorize func(h http.Header, token string)
	accept    string
}

func newClient(provider string, opts Options, authorize func(http.Header, string), accept string) client {
	c := client{
		provider:  provider,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracing:   opts.Tracing,
		authorize: authorize,
		accept:    accept,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// do sends one request and decodes a JSON response into out (when non-nil).
// The whole exchange, body read included, is bounded by the client timeout.
func (c *client) do(ctx context.Context, method, path string, query url.Values, token string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracing.TraceUpstream(ctx, c.provider, method, path)
	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, query, token, in, out)
	elapsed := time.Since(start)

	c.metrics.RecordUpstream(c.provider, status, elapsed)
	observability.EndSpan(span, err)

	c.logger.Debug("Upstream request",
		zap.String("provider", c.provider),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
		zap.Error(err))
	return err
}

func (c *client) roundTrip(ctx context.Context, method, path string, query url.Values, token string, in, out interface{}) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s request: %w", c.provider, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", c.provider, err)
	}
	req.Header.Set("Accept", c.accept)
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, c.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &Error{
			Provider: c.provider,
			Method:   method,
			Path:     path,
			Status:   resp.StatusCode,
			Body:     string(data),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if tErr := c.transportError(ctx, method, path, err); errors.Is(tErr, ErrUpstreamTimeout) {
			return resp.StatusCode, tErr
		}
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", c.provider, path, err)
	}
	return resp.StatusCode, nil
}

func (c *client) transportError(ctx context.Context, method, path string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s %s %s: %w", c.provider, method, path, ErrUpstreamTimeout)
	}
	return fmt.Errorf("%s %s %s: %w", c.provider, method, path, err)
}
