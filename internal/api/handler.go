// Package api exposes the shop over HTTP: page extraction, query
// translation and editing, and the hand-off to merchant searches.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfc-shop/mfc-shop/internal/analytics"
	"github.com/mfc-shop/mfc-shop/internal/cache"
	"github.com/mfc-shop/mfc-shop/internal/merchant"
	"github.com/mfc-shop/mfc-shop/internal/page"
	"github.com/mfc-shop/mfc-shop/internal/query"
	"github.com/mfc-shop/mfc-shop/internal/shop"
	"github.com/mfc-shop/mfc-shop/internal/terms"
	apperrors "github.com/mfc-shop/mfc-shop/pkg/errors"
	"github.com/mfc-shop/mfc-shop/pkg/logger"
	"github.com/mfc-shop/mfc-shop/pkg/metrics"
	"github.com/mfc-shop/mfc-shop/pkg/middleware"
	"github.com/mfc-shop/mfc-shop/pkg/tracing"
)

// PageSource downloads catalog pages.
type PageSource interface {
	Fetch(ctx context.Context, url string) (*page.Document, error)
}

// Tracker receives analytics events.
type Tracker interface {
	Track(key string, event any)
}

// Options carries the optional collaborators of a Handler. Nil fields
// disable the feature that needs them.
type Options struct {
	Pages        PageSource
	Cache        *cache.TermCache
	Tracker      Tracker
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

type Handler struct {
	registry     *merchant.Registry
	pages        PageSource
	cache        *cache.TermCache
	tracker      Tracker
	metrics      *metrics.Metrics
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHandler(registry *merchant.Registry, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	return &Handler{
		registry:     registry,
		pages:        opts.Pages,
		cache:        opts.Cache,
		tracker:      opts.Tracker,
		metrics:      opts.Metrics,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       slog.Default().With("component", "shop-handler"),
	}
}

// Extract builds the shop section of an uploaded page.
// POST /api/v1/extract with the page HTML as body.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "extract-upload", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer finishSpan(span, log)
	event := analytics.NewExtractEvent(analytics.SourceUpload, "", middleware.GetRequestID(ctx))

	_, parseSpan := tracing.Child(ctx, "parse")
	doc, err := page.Parse(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	parseSpan.End()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("page larger than %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, "unreadable page body")
		return
	}

	_, augmentSpan := tracing.Child(ctx, "augment")
	section, err := shop.Augment(doc, h.registry)
	augmentSpan.End()
	if err != nil {
		log.Error("shop section not built", "error", err)
		h.finishExtract(event, start, nil, false, err)
		h.writeAppError(w, err)
		return
	}
	h.finishExtract(event, start, section.Terms, false, nil)
	h.writeJSON(w, http.StatusOK, section)
}

// Page fetches a catalog page by URL, caching its terms.
// GET /api/v1/pages?url=
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'url' is required")
		return
	}
	ctx := logger.With(r.Context(), "url", pageURL)
	ctx, span := tracing.Start(ctx, "extract-url", middleware.GetRequestID(ctx))
	span.SetAttr("url", pageURL)
	defer finishSpan(span, logger.FromContext(ctx))
	event := analytics.NewExtractEvent(analytics.SourceURL, pageURL, middleware.GetRequestID(ctx))

	t, cached, err := h.termsForURL(ctx, pageURL)
	if err != nil {
		logger.FromContext(ctx).Warn("page not loaded", "error", err)
		h.finishExtract(event, start, nil, cached, err)
		h.writeAppError(w, err)
		return
	}
	h.finishExtract(event, start, t, cached, nil)
	h.writeJSON(w, http.StatusOK, shop.Build(t, h.registry))
}

// queryRequest is the body of the translate and edit endpoints. Terms, if
// present, take precedence over URL.
type queryRequest struct {
	URL   string       `json:"url,omitempty"`
	Terms *terms.Terms `json:"terms,omitempty"`
	Query string       `json:"query"`
	Term  string       `json:"term,omitempty"`
	Index *int         `json:"index,omitempty"`
}

type queryResponse struct {
	Query    string          `json:"query"`
	Segments []query.Segment `json:"segments"`
}

// Translate segments a query against the page dictionary.
// POST /api/v1/translate
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	_, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	h.writeQuery(w, "translate", ed)
}

// AddTerm appends a term to the query.
// POST /api/v1/query/add
func (h *Handler) AddTerm(w http.ResponseWriter, r *http.Request) {
	req, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	if req.Term == "" {
		h.writeError(w, http.StatusBadRequest, "field 'term' is required")
		return
	}
	ed.AddTerm(req.Term)
	h.writeQuery(w, "add", ed)
}

// RemoveSegment drops one segment from the query.
// POST /api/v1/query/remove
func (h *Handler) RemoveSegment(w http.ResponseWriter, r *http.Request) {
	req, ed, ok := h.editorFor(w, r)
	if !ok {
		return
	}
	if req.Index == nil {
		h.writeError(w, http.StatusBadRequest, "field 'index' is required")
		return
	}
	if err := ed.Remove(*req.Index); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeQuery(w, "remove", ed)
}

// Merchants lists the marketplaces in display order.
// GET /api/v1/merchants
func (h *Handler) Merchants(w http.ResponseWriter, r *http.Request) {
	buttons := make([]shop.Button, 0, h.registry.Len())
	for _, m := range h.registry.All() {
		buttons = append(buttons, shop.Button{ID: m.ID, DisplayName: m.DisplayName, ImageURL: m.ImageURL})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"merchants": buttons})
}

// Search redirects to a merchant's search for q and records the hand-off.
// GET /api/v1/search?merchant=&q=[&url=]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()
	id := params.Get("merchant")
	q := params.Get("q")

	m, ok := h.registry.Lookup(id)
	if !ok {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrUnknownMerchant, http.StatusNotFound, "unknown merchant %q", id))
		return
	}

	target := m.QueryURL(q)
	segments, matched := h.matchCounts(ctx, params.Get("url"), q)
	if h.tracker != nil {
		h.tracker.Track(m.ID, analytics.NewHandoffEvent(m.ID, q, segments, matched, middleware.GetRequestID(ctx)))
	}
	if h.metrics != nil {
		h.metrics.HandoffsTotal.WithLabelValues(m.ID).Inc()
	}
	logger.FromContext(ctx).Info("merchant handoff", "merchant", m.ID, "query", q)
	http.Redirect(w, r, target, http.StatusFound)
}

// matchCounts segments q with the cached dictionary of pageURL, if any.
// It never fetches.
func (h *Handler) matchCounts(ctx context.Context, pageURL, q string) (segments, matched int) {
	dict := terms.Dictionary{}
	if pageURL != "" && h.cache != nil {
		if t, ok := h.cache.Get(ctx, pageURL); ok {
			dict = terms.BuildDictionary(t)
		}
	}
	segs := query.NewTokenizer(dict).Tokenize(q)
	for _, s := range segs {
		if s.Kind == query.Match {
			matched++
		}
	}
	return len(segs), matched
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// editorFor decodes a query request and rebuilds the editor state from the
// request's terms. It writes the error response itself when it fails.
func (h *Handler) editorFor(w http.ResponseWriter, r *http.Request) (*queryRequest, *query.Editor, bool) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, nil, false
	}

	t := req.Terms
	if t == nil && req.URL != "" {
		loaded, _, err := h.termsForURL(r.Context(), req.URL)
		if err != nil {
			h.writeAppError(w, err)
			return nil, nil, false
		}
		t = loaded
	}
	dict := terms.Dictionary{}
	if t != nil {
		dict = terms.BuildDictionary(t)
	}
	return &req, query.NewEditor(query.NewTokenizer(dict), req.Query), true
}

// termsForURL loads the terms of pageURL through the cache when there is
// one.
func (h *Handler) termsForURL(ctx context.Context, pageURL string) (*terms.Terms, bool, error) {
	if h.pages == nil {
		return nil, false, apperrors.New(apperrors.ErrFetchFailed, http.StatusServiceUnavailable, "page fetching is disabled")
	}
	compute := func() (*terms.Terms, error) {
		_, fetchSpan := tracing.Child(ctx, "fetch")
		doc, err := h.pages.Fetch(ctx, pageURL)
		fetchSpan.End()
		if err != nil {
			return nil, err
		}
		_, extractSpan := tracing.Child(ctx, "extract")
		defer extractSpan.End()
		return shop.ExtractTerms(doc)
	}
	if h.cache == nil {
		t, err := compute()
		return t, false, err
	}
	t, cached, err := h.cache.GetOrCompute(ctx, pageURL, compute)
	if span := tracing.FromContext(ctx); span != nil {
		span.SetAttr("cache_hit", cached)
	}
	return t, cached, err
}

func finishSpan(span *tracing.Span, log *slog.Logger) {
	span.End()
	span.Log(log)
}

func (h *Handler) finishExtract(event analytics.ExtractEvent, start time.Time, t *terms.Terms, cached bool, err error) {
	elapsed := time.Since(start)
	event.LatencyMs = elapsed.Milliseconds()
	event.CacheHit = cached
	event.Failed = err != nil
	dictSize := 0
	if t != nil {
		event.Categories = t.Len()
		dictSize = len(terms.BuildDictionary(t))
		event.DictionarySize = dictSize
	}
	if h.tracker != nil {
		h.tracker.Track(event.Source, event)
	}
	if h.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		h.metrics.ExtractionsTotal.WithLabelValues(outcome).Inc()
		if err == nil {
			h.metrics.ExtractionDuration.Observe(elapsed.Seconds())
			h.metrics.TermsExtracted.Observe(float64(dictSize))
		}
	}
}

func (h *Handler) writeQuery(w http.ResponseWriter, operation string, ed *query.Editor) {
	segs := ed.Segments()
	if h.metrics != nil {
		h.metrics.QuerySegments.WithLabelValues(operation).Observe(float64(len(segs)))
	}
	h.writeJSON(w, http.StatusOK, queryResponse{Query: ed.Query(), Segments: segs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status and message carried by err.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError && appErr == nil {
		message = "internal error"
	}
	h.writeError(w, status, message)
}
