// ABOUTME: HTTP transport for KSC OpenAPI calls, one POST per method invocation
// ABOUTME: Owns the HTTP client, cookie jar, TLS settings, auth headers and rate limiting

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIPrefix = "/api/v1.0"
	DefaultTimeout   = 30 * time.Second
	DefaultPort      = 13299
)

var log = logger.Named("transport")

type Config struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration
	VerifyTLS bool
	CAFile    string
	Headers   map[string]string
	Auth      Authenticator
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Tracing   bool
	// TracerProvider receives the HTTP client spans; nil means the global provider.
	TracerProvider trace.TracerProvider
}

// Transport performs RPC POSTs against one server. It is safe for concurrent use but
// callers serialise calls per session.
type Transport struct {
	cfg      Config
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func New(cfg Config) (*Transport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("transport: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultAPIPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.TLSClientConfig = tlsConfig

	var rt http.RoundTripper = httpTransport
	if cfg.Tracing {
		opts := []otelhttp.Option{otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "ksc " + strings.TrimPrefix(r.URL.Path, cfg.APIPrefix+"/")
		})}
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		rt = otelhttp.NewTransport(rt, opts...)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: cookie jar: %w", err)
	}

	t := &Transport{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIPrefix, "/"),
		client: &http.Client{
			Transport: rt,
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if !cfg.VerifyTLS {
		// KSC ships with a self-signed certificate; operators opt out explicitly.
		tlsConfig.InsecureSkipVerify = true //nolint:gosec
		return tlsConfig, nil
	}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("transport: read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("transport: no certificates found in %s", cfg.CAFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// BaseURL builds https://host:port from a bare host name. Hosts that already carry a
// scheme are returned unchanged apart from a port when none is present.
func BaseURL(host string, port int) string {
	if port <= 0 {
		port = DefaultPort
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return host
	}
	if u.Port() == "" {
		u.Host = u.Hostname() + ":" + strconv.Itoa(port)
	}
	return strings.TrimRight(u.String(), "/")
}

// Endpoint returns the URL a method path is posted to.
func (t *Transport) Endpoint(methodPath string) string {
	return t.endpoint + "/" + methodPath
}

// ValidateMethodPath accepts [instance.]Class.Method where every segment is non-empty.
func ValidateMethodPath(methodPath string) error {
	if methodPath == "" {
		return fmt.Errorf("empty method path")
	}
	if strings.ContainsAny(methodPath, "/ \t\r\n?#") {
		return fmt.Errorf("method path %q contains invalid characters", methodPath)
	}
	segments := strings.Split(methodPath, ".")
	if len(segments) < 2 {
		return fmt.Errorf("method path %q is not of the form Class.Method", methodPath)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("method path %q has an empty segment", methodPath)
		}
	}
	return nil
}

// Invoke posts body to the method path and returns the raw status and body. Transport
// failures are *errors.TransportError; no status code is interpreted here.
func (t *Transport) Invoke(ctx context.Context, methodPath string, body []byte) (int, []byte, error) {
	if err := ValidateMethodPath(methodPath); err != nil {
		return 0, nil, apierrors.NewTransportError(methodPath, "", apierrors.ReasonRequest, err)
	}
	return t.post(ctx, methodPath, t.Endpoint(methodPath), body)
}

// Login opens a server session with the configured authenticator.
func (t *Transport) Login(ctx context.Context) error {
	status, body, err := t.post(ctx, "login", t.endpoint+"/login", []byte("{}"))
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &apierrors.ApplicationError{
			Method:     "login",
			HTTPStatus: status,
			Message:    strings.TrimSpace(snippet(body)),
		}
	}
	log.Debug("login to %s succeeded", t.endpoint)
	return nil
}

// Logout ends the server session. Failures are logged and otherwise ignored.
func (t *Transport) Logout(ctx context.Context) {
	status, _, err := t.post(ctx, "Session.EndSession", t.Endpoint("Session.EndSession"), []byte("{}"))
	switch {
	case err != nil:
		log.Warn("logout failed: %v", err)
	case status < 200 || status > 299:
		log.Warn("logout returned HTTP %d", status)
	}
	t.client.CloseIdleConnections()
}

// Close drops pooled connections.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}

func (t *Transport) post(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			reason := classify(ctx, err)
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				// Wait fails early when the deadline falls before the next token.
				reason = apierrors.ReasonTimeout
			}
			return 0, nil, apierrors.NewTransportError(method, target, reason, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, apierrors.NewTransportError(method, target, apierrors.ReasonRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if t.cfg.Auth != nil {
		t.cfg.Auth.Apply(req)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		reason := classify(ctx, err)
		log.Debug("POST %s failed after %s: %s", method, time.Since(start).Round(time.Millisecond), reason)
		return 0, nil, apierrors.NewTransportError(method, target, reason, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apierrors.NewTransportError(method, target, classify(ctx, err), err)
	}
	log.Debug("POST %s -> %d (%d bytes in, %d bytes out, %s)",
		method, resp.StatusCode, len(body), len(data), time.Since(start).Round(time.Millisecond))
	return resp.StatusCode, data, nil
}

func snippet(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
