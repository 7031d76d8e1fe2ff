// Package fetch downloads catalog pages from an allowlisted set of hosts.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mfc-shop/mfc-shop/internal/page"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	apperrors "github.com/mfc-shop/mfc-shop/pkg/errors"
	"github.com/mfc-shop/mfc-shop/pkg/health"
	"github.com/mfc-shop/mfc-shop/pkg/metrics"
	"github.com/mfc-shop/mfc-shop/pkg/resilience"
)

const maxRedirects = 10

// Fetcher retrieves and parses catalog pages. Transient failures are
// retried with backoff behind a circuit breaker shared by all requests.
type Fetcher struct {
	client  *http.Client
	cfg     config.FetchConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Fetcher. m may be nil.
func New(cfg config.FetchConfig, m *metrics.Metrics) *Fetcher {
	f := &Fetcher{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "page-fetcher"),
	}
	f.client = &http.Client{CheckRedirect: f.checkRedirect}
	f.breaker = resilience.NewCircuitBreaker("page-fetch", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return f
}

// HealthCheck reports the catalog site degraded while the breaker is not
// closed. Pages already cached are still served.
func (f *Fetcher) HealthCheck(context.Context) health.ComponentHealth {
	switch state := f.breaker.GetState(); state {
	case resilience.StateClosed:
		return health.ComponentHealth{Status: health.StatusUp}
	default:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
	}
}

// Allowed reports whether rawURL is an http(s) address on an allowed host
// or one of its subdomains.
func (f *Fetcher) Allowed(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid page url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range f.cfg.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrHostNotAllowed, http.StatusBadRequest, "host %q is not allowed", host)
}

// checkRedirect applies the host allowlist to every redirect hop.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return resilience.Permanent(fmt.Errorf("%w: stopped after %d redirects", apperrors.ErrFetchFailed, maxRedirects))
	}
	if _, err := f.Allowed(req.URL.String()); err != nil {
		return resilience.Permanent(fmt.Errorf("redirect to %s: %w", req.URL.Host, err))
	}
	return nil
}

// Fetch downloads rawURL and parses it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*page.Document, error) {
	u, err := f.Allowed(rawURL)
	if err != nil {
		f.observe("rejected")
		return nil, err
	}

	var doc *page.Document
	err = resilience.Retry(ctx, "page-fetch", resilience.RetryConfig{MaxAttempts: f.cfg.MaxAttempts}, func() error {
		return f.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, f.cfg.Timeout, "page-fetch", func(ctx context.Context) error {
				d, err := f.fetchOnce(ctx, u.String())
				if err != nil {
					return err
				}
				doc = d
				return nil
			})
		})
	})
	if err != nil {
		f.observe("error")
		f.logger.Warn("page fetch failed", "url", u.String(), "error", err)
		return nil, classify(err)
	}
	f.observe("ok")
	return doc, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (*page.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(apperrors.ErrPageNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", apperrors.ErrFetchFailed, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.Permanent(fmt.Errorf("%w: upstream status %d", apperrors.ErrFetchFailed, resp.StatusCode))
	}

	body := io.Reader(resp.Body)
	if limit := f.cfg.MaxPageBytes; limit > 0 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", target, err)
		}
		// A truncated page would parse into partial terms.
		if int64(len(data)) > limit {
			return nil, resilience.Permanent(apperrors.Newf(apperrors.ErrFetchFailed, http.StatusBadGateway,
				"page larger than %d bytes", limit))
		}
		body = bytes.NewReader(data)
	}
	doc, err := page.Parse(body)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("parsing page: %w", err))
	}
	return doc, nil
}

// classify maps a fetch failure onto the service error it answers with.
func classify(err error) error {
	if errors.Is(err, apperrors.ErrHostNotAllowed) {
		return apperrors.New(apperrors.ErrHostNotAllowed, http.StatusBadGateway, "page redirected to a host that is not allowed")
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, apperrors.ErrPageNotFound):
		return apperrors.New(apperrors.ErrPageNotFound, http.StatusNotFound, "catalog page not found")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "fetching page: %v", err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.New(apperrors.ErrFetchFailed, http.StatusServiceUnavailable, "catalog site unavailable, try again later")
	default:
		return apperrors.Newf(apperrors.ErrFetchFailed, http.StatusBadGateway, "fetching page: %v", err)
	}
}

func (f *Fetcher) observe(outcome string) {
	if f.metrics != nil {
		f.metrics.PageFetchesTotal.WithLabelValues(outcome).Inc()
	}
}
