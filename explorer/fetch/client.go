// Package fetch is the HTTP plumbing shared by the subgraph, IPFS and price clients.
// It issues a single request per call, turns non-2xx answers into *StatusError and
// records a span and request metrics for every upstream call.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"

// DefaultTimeout bounds every upstream call unless overridden.
const DefaultTimeout = 30 * time.Second

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "fetch").Logger()
}

// Client performs requests against one upstream service.
type Client struct {
	service    string
	httpClient *http.Client
	headers    http.Header

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeader adds a header sent on every request of this client.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// NewClient creates a client for the named service (one of the Service constants).
func NewClient(service string, opts ...Option) *Client {
	c := &Client{
		service:    service,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		headers:    make(http.Header),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	c.requests, err = meter.Int64Counter(
		"explorer.upstream.requests",
		metric.WithDescription("Upstream requests by service and HTTP status"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create upstream request counter")
	}
	c.duration, err = meter.Float64Histogram(
		"explorer.upstream.duration",
		metric.WithDescription("Upstream request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create upstream duration histogram")
	}
	return c
}

// Service returns the service name this client reports in errors and metrics.
func (c *Client) Service() string {
	return c.service
}

// Get issues a GET and returns the response body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", c.service, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return c.Do(req)
}

// PostJSON marshals payload and POSTs it with Content-Type: application/json.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", c.service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// Do sends req once. Any status outside 200-299 yields a *StatusError.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	for key, values := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = values
		}
	}

	ctx, span := c.tracer.Start(req.Context(), c.service+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, start, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug().Err(err).Str("service", c.service).Str("url", req.URL.String()).Msg("Request failed")
		return nil, fmt.Errorf("%s request to %s failed: %w", c.service, req.URL.String(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	status := strconv.Itoa(resp.StatusCode)
	c.record(ctx, start, status)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{Service: c.service, URL: req.URL.String(), Status: resp.StatusCode}
		span.SetStatus(codes.Error, statusErr.Error())
		log.Debug().
			Str("service", c.service).
			Str("url", req.URL.String()).
			Int("status", resp.StatusCode).
			Msg("Upstream returned non-success status")
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read %s response: %w", c.service, err)
	}
	return body, nil
}

func (c *Client) record(ctx context.Context, start time.Time, status string) {
	attrs := metric.WithAttributes(
		attribute.String("service", c.service),
		attribute.String("status", status),
	)
	if c.requests != nil {
		c.requests.Add(ctx, 1, attrs)
	}
	if c.duration != nil {
		c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
