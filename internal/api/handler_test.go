package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfc-shop/mfc-shop/internal/analytics"
	apimw "github.com/mfc-shop/mfc-shop/internal/api/middleware"
	"github.com/mfc-shop/mfc-shop/internal/cache"
	"github.com/mfc-shop/mfc-shop/internal/merchant"
	"github.com/mfc-shop/mfc-shop/internal/page"
	"github.com/mfc-shop/mfc-shop/internal/query"
	"github.com/mfc-shop/mfc-shop/internal/shop"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	apperrors "github.com/mfc-shop/mfc-shop/pkg/errors"
	"github.com/mfc-shop/mfc-shop/pkg/health"
	pkgredis "github.com/mfc-shop/mfc-shop/pkg/redis"
)

const mikuURL = "https://myfigurecollection.net/item/1"

const mikuPage = `<html><body>
<a class="item-switch-alphabet" href="#">English</a>
<div class="data-field"><div class="data-label">Category</div>
  <div class="data-value"><span class="icon"></span>Prepainted</div></div>
<div class="data-field"><div class="data-label">Origin</div>
  <div class="data-value"><a href="/o/1"><span switch="Vocaloid">ボーカロイド</span></a></div></div>
<div class="data-field"><div class="data-label">Character</div>
  <div class="data-value"><a href="/c/1"><span switch="Hatsune Miku">初音ミク</span></a></div></div>
</body></html>`

type fakePages struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePages) Fetch(_ context.Context, url string) (*page.Document, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if url != mikuURL {
		return nil, apperrors.New(apperrors.ErrPageNotFound, http.StatusNotFound, "catalog page not found")
	}
	return page.ParseString(mikuPage)
}

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingTracker) Track(_ string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func registry() *merchant.Registry {
	return merchant.Default(config.MerchantsConfig{NeokyoBaseURL: "https://neokyo.com"})
}

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	agg := analytics.NewAggregator(nil, 10)
	h := NewHandler(registry(), opts)
	router := NewRouter(h, analytics.NewHandler(agg, nil), health.NewChecker(), RouterConfig{
		CORS:           config.CORSConfig{AllowOrigins: []string{"https://myfigurecollection.net"}},
		Limiter:        apimw.NewLimiter(1000, time.Minute),
		RequestTimeout: 5 * time.Second,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeQuery(t *testing.T, resp *http.Response) queryResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestExtractUpload(t *testing.T) {
	tracker := &recordingTracker{}
	srv := newServer(t, Options{Tracker: tracker})

	resp, err := http.Post(srv.URL+"/api/v1/extract", "text/html", strings.NewReader(mikuPage))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var section shop.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&section))
	var categories []string
	for _, g := range section.Groups {
		categories = append(categories, g.Category)
	}
	assert.Equal(t, []string{"Category", "Origins", "Characters"}, categories)
	assert.Equal(t, shop.Chip{Label: "Vocaloid", Value: "ボーカロイド", Translated: true}, section.Groups[1].Chips[0])
	assert.Equal(t, 3, section.DictionarySize)
	assert.Len(t, section.Merchants, 7)

	require.Len(t, tracker.events, 1)
	event := tracker.events[0].(analytics.ExtractEvent)
	assert.Equal(t, analytics.SourceUpload, event.Source)
	assert.False(t, event.Failed)
	assert.Equal(t, 3, event.DictionarySize)
}

func TestExtractTooLarge(t *testing.T) {
	srv := newServer(t, Options{MaxBodyBytes: 16})

	resp, err := http.Post(srv.URL+"/api/v1/extract", "text/html", strings.NewReader(mikuPage))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestPageUsesCache(t *testing.T) {
	hash := sha256.Sum256([]byte(cache.NormalizeURL(mikuURL)))
	key := fmt.Sprintf("terms:%x", hash[:16])
	db, mock := redismock.NewClientMock()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(mikuTermsJSON(t)), time.Hour).SetVal("OK")
	termCache := cache.New(pkgredis.NewFromRDB(db), config.RedisConfig{CacheTTL: time.Hour}, nil)
	pages := &fakePages{}
	srv := newServer(t, Options{Pages: pages, Cache: termCache})

	resp, err := http.Get(srv.URL + "/api/v1/pages?url=" + mikuURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var section shop.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&section))
	assert.Equal(t, 3, section.DictionarySize)
	assert.Equal(t, 1, pages.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageErrors(t *testing.T) {
	srv := newServer(t, Options{Pages: &fakePages{}})

	resp, err := http.Get(srv.URL + "/api/v1/pages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/pages?url=https://myfigurecollection.net/item/404")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "catalog page not found", body["error"])

	disabled := newServer(t, Options{})
	resp, err = http.Get(disabled.URL + "/api/v1/pages?url=" + mikuURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func mikuTermsJSON(t *testing.T) json.RawMessage {
	t.Helper()
	doc, err := page.ParseString(mikuPage)
	require.NoError(t, err)
	tm, err := shop.ExtractTerms(doc)
	require.NoError(t, err)
	data, err := json.Marshal(tm)
	require.NoError(t, err)
	return data
}

func TestTranslateWithTerms(t *testing.T) {
	srv := newServer(t, Options{})

	out := decodeQuery(t, postJSON(t, srv.URL+"/api/v1/translate", map[string]any{
		"terms": mikuTermsJSON(t),
		"query": "初音ミク 1/8 フィギュア",
	}))

	assert.Equal(t, "初音ミク 1/8 フィギュア", out.Query)
	require.Len(t, out.Segments, 3)
	assert.Equal(t, query.Segment{Kind: query.Match, Text: "初音ミク", Translation: "Hatsune Miku"}, out.Segments[0])
	assert.Equal(t, query.Literal, out.Segments[1].Kind)
	assert.Equal(t, "Figure", out.Segments[2].Translation)
}

func TestTranslateWithURL(t *testing.T) {
	pages := &fakePages{}
	srv := newServer(t, Options{Pages: pages})

	out := decodeQuery(t, postJSON(t, srv.URL+"/api/v1/translate", map[string]any{
		"url":   mikuURL,
		"query": "ボーカロイド",
	}))

	require.Len(t, out.Segments, 1)
	assert.Equal(t, "Vocaloid", out.Segments[0].Translation)
	assert.Equal(t, 1, pages.calls)
}

func TestTranslateWithoutDictionary(t *testing.T) {
	srv := newServer(t, Options{})

	out := decodeQuery(t, postJSON(t, srv.URL+"/api/v1/translate", map[string]any{"query": "初音ミク"}))

	assert.Equal(t, []query.Segment{{Kind: query.Literal, Text: "初音ミク", Translation: "初音ミク"}}, out.Segments)
}

func TestAddAndRemove(t *testing.T) {
	srv := newServer(t, Options{})
	termsJSON := mikuTermsJSON(t)

	added := decodeQuery(t, postJSON(t, srv.URL+"/api/v1/query/add", map[string]any{
		"terms": termsJSON,
		"query": "初音ミク",
		"term":  "フィギュア",
	}))
	assert.Equal(t, "初音ミク フィギュア", added.Query)
	require.Len(t, added.Segments, 2)

	removed := decodeQuery(t, postJSON(t, srv.URL+"/api/v1/query/remove", map[string]any{
		"terms": termsJSON,
		"query": added.Query,
		"index": 0,
	}))
	assert.Equal(t, "フィギュア", removed.Query)
	require.Len(t, removed.Segments, 1)
	assert.Equal(t, "Figure", removed.Segments[0].Translation)
}

func TestEditValidation(t *testing.T) {
	srv := newServer(t, Options{})

	resp := postJSON(t, srv.URL+"/api/v1/query/remove", map[string]any{"query": "a", "index": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/v1/query/remove", map[string]any{"query": "a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/v1/query/add", map[string]any{"query": "a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/api/v1/translate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestMerchants(t *testing.T) {
	srv := newServer(t, Options{})

	resp, err := http.Get(srv.URL + "/api/v1/merchants")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Merchants []shop.Button `json:"merchants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Merchants, 7)
	assert.Equal(t, "neokyo-rakuma", body.Merchants[0].ID)
}

func TestSearchRedirects(t *testing.T) {
	tracker := &recordingTracker{}
	srv := newServer(t, Options{Tracker: tracker})
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(srv.URL + "/api/v1/search?merchant=neokyo-magi&q=%E5%88%9D%E9%9F%B3")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://neokyo.com/en/search-results?keyword=%E5%88%9D%E9%9F%B3&provider=magi", resp.Header.Get("Location"))
	require.Len(t, tracker.events, 1)
	handoff := tracker.events[0].(analytics.HandoffEvent)
	assert.Equal(t, "neokyo-magi", handoff.MerchantID)
	assert.Equal(t, "初音", handoff.Query)

	resp, err = client.Get(srv.URL + "/api/v1/search?merchant=ebay&q=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCacheEndpointsDisabled(t *testing.T) {
	srv := newServer(t, Options{})

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnalyticsAndHealthRoutes(t *testing.T) {
	srv := newServer(t, Options{})

	for _, path := range []string{"/api/v1/analytics", "/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
