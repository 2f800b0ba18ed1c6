package rtdb

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skycoder42/firebox/internal/httpx"
	"github.com/Skycoder42/firebox/internal/logging"
	"github.com/Skycoder42/firebox/internal/telemetry"
)

// TokenSink receives auth tokens from an external provider.
type TokenSink interface {
	SetAuthToken(token string)
}

// Client talks to one database instance. It is safe for concurrent use.
type Client struct {
	http      *httpx.Client
	basePath  string
	session   atomic.Pointer[Session]
	logger    *slog.Logger
	telemetry *telemetry.Instruments
}

var _ TokenSink = (*Client)(nil)

type config struct {
	endpoint       string
	basePath       string
	session        Session
	httpClient     *http.Client
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Client.
type Option func(*config)

// WithEndpoint replaces the default https://{database}.firebaseio.com origin,
// e.g. to target an emulator or a local sandbox.
func WithEndpoint(rawURL string) Option {
	return func(c *config) {
		c.endpoint = rawURL
	}
}

// WithBasePath prefixes every request path with p.
func WithBasePath(p string) Option {
	return func(c *config) {
		c.basePath = p
	}
}

// WithAuthToken sets the initial auth token.
func WithAuthToken(token string) Option {
	return func(c *config) {
		c.session.AuthToken = token
	}
}

// WithTimeout sets the server-side request timeout. Values above MaxTimeout
// are clamped.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.session.Timeout = d
	}
}

// WithWriteSizeLimit sets the write size limit tier.
func WithWriteSizeLimit(l WriteSizeLimit) Option {
	return func(c *config) {
		c.session.WriteSizeLimit = l
	}
}

// WithHTTPClient overrides the underlying HTTP client. It should not set a
// client-wide Timeout, which would cut event streams short.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		c.httpClient = h
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// New creates a Client for the named database. database may be empty when
// WithEndpoint is supplied.
func New(database string, opts ...Option) (*Client, error) {
	cfg := config{session: defaultSession()}
	for _, opt := range opts {
		opt(&cfg)
	}

	endpoint := strings.TrimSpace(cfg.endpoint)
	if endpoint == "" {
		database = strings.TrimSpace(database)
		if database == "" {
			return nil, fmt.Errorf("rtdb: database name is required")
		}
		if strings.ContainsAny(database, "/:?#@ ") {
			return nil, fmt.Errorf("rtdb: invalid database name %q", database)
		}
		endpoint = "https://" + database + ".firebaseio.com"
	}

	var httpOpts []httpx.Option
	if cfg.httpClient != nil {
		httpOpts = append(httpOpts, httpx.WithHTTPClient(cfg.httpClient))
	}
	hc, err := httpx.NewClient(endpoint, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("rtdb: %w", err)
	}

	inst, err := telemetry.New(telemetry.Config{
		TracerProvider: cfg.tracerProvider,
		MeterProvider:  cfg.meterProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("rtdb: init telemetry: %w", err)
	}

	c := &Client{
		http:      hc,
		basePath:  cfg.basePath,
		logger:    logging.OrNop(cfg.logger),
		telemetry: inst,
	}
	session := cfg.session.normalize()
	c.session.Store(&session)
	return c, nil
}

// Endpoint returns the origin requests are sent to.
func (c *Client) Endpoint() string {
	return c.http.BaseURL().String()
}

// BasePath returns the path prefix applied to every request.
func (c *Client) BasePath() string {
	return c.basePath
}

// Session returns a snapshot of the current session state.
func (c *Client) Session() Session {
	return *c.session.Load()
}

// SetAuthToken replaces the auth token. Requests already built keep the token
// they were built with. An empty token disables authentication.
func (c *Client) SetAuthToken(token string) {
	c.updateSession(func(s *Session) { s.AuthToken = token })
}

// SetTimeout replaces the server-side request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.updateSession(func(s *Session) { s.Timeout = d })
}

// SetWriteSizeLimit replaces the write size limit tier.
func (c *Client) SetWriteSizeLimit(l WriteSizeLimit) {
	c.updateSession(func(s *Session) { s.WriteSizeLimit = l })
}

func (c *Client) updateSession(fn func(*Session)) {
	for {
		old := c.session.Load()
		next := *old
		fn(&next)
		next = next.normalize()
		if c.session.CompareAndSwap(old, &next) {
			return
		}
	}
}
