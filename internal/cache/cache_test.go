package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfc-shop/mfc-shop/internal/terms"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	pkgredis "github.com/mfc-shop/mfc-shop/pkg/redis"
)

const pageURL = "https://myfigurecollection.net/item/12345"

func sampleTerms() *terms.Terms {
	t := terms.New()
	t.Set(terms.CategoryCategory, []terms.Term{terms.Plain("Prepainted"), terms.Pair("Figure", "フィギュア")})
	return t
}

func newCache(t *testing.T) (*TermCache, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return New(pkgredis.NewFromRDB(db), config.RedisConfig{CacheTTL: time.Hour}, nil), mock
}

func TestGetHit(t *testing.T) {
	c, mock := newCache(t)
	data, err := json.Marshal(sampleTerms())
	require.NoError(t, err)
	mock.ExpectGet(buildKey(pageURL)).SetVal(string(data))

	got, ok := c.Get(context.Background(), pageURL)

	require.True(t, ok)
	assert.Equal(t, sampleTerms().Get(terms.CategoryCategory), got.Get(terms.CategoryCategory))
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Zero(t, misses)
}

func TestGetMissAndCorrupt(t *testing.T) {
	c, mock := newCache(t)
	mock.ExpectGet(buildKey(pageURL)).RedisNil()
	mock.ExpectGet(buildKey(pageURL)).SetVal("not json")
	mock.ExpectGet(buildKey(pageURL)).SetErr(errors.New("connection refused"))

	for i := 0; i < 3; i++ {
		_, ok := c.Get(context.Background(), pageURL)
		assert.False(t, ok)
	}
	_, misses := c.Stats()
	assert.Equal(t, int64(3), misses)
}

func TestGetOrComputeStoresResult(t *testing.T) {
	c, mock := newCache(t)
	key := buildKey(pageURL)
	data, err := json.Marshal(sampleTerms())
	require.NoError(t, err)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(data), time.Hour).SetVal("OK")

	got, cached, err := c.GetOrCompute(context.Background(), pageURL, func() (*terms.Terms, error) {
		return sampleTerms(), nil
	})

	require.NoError(t, err)
	assert.False(t, cached)
	assert.True(t, got.Has(terms.CategoryCategory))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrComputeError(t *testing.T) {
	c, mock := newCache(t)
	mock.ExpectGet(buildKey(pageURL)).RedisNil()

	_, _, err := c.GetOrCompute(context.Background(), pageURL, func() (*terms.Terms, error) {
		return nil, errors.New("fetch failed")
	})

	assert.EqualError(t, err, "fetch failed")
}

func TestGetOrComputeSharesInflight(t *testing.T) {
	c, mock := newCache(t)
	mock.MatchExpectationsInOrder(false)
	key := buildKey(pageURL)
	data, err := json.Marshal(sampleTerms())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		mock.ExpectGet(key).RedisNil()
	}
	mock.ExpectSet(key, string(data), time.Hour).SetVal("OK")

	var calls atomic.Int32
	start := make(chan struct{})
	compute := func() (*terms.Terms, error) {
		calls.Add(1)
		<-start
		return sampleTerms(), nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), pageURL, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	c, mock := newCache(t)
	mock.ExpectScan(0, "terms:*", 100).SetVal([]string{"terms:a"}, 0)
	mock.ExpectDel("terms:a").SetVal(1)

	deleted, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://MyFigureCollection.net/item/12345/":         "https://myfigurecollection.net/item/12345",
		"https://myfigurecollection.net/item/12345#comments": "https://myfigurecollection.net/item/12345",
		"https://myfigurecollection.net/item/1?b=2&a=1":      "https://myfigurecollection.net/item/1?a=1&b=2",
		"  https://myfigurecollection.net/item/12345  ":      "https://myfigurecollection.net/item/12345",
		"not a url":                                          "not a url",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURL(in), in)
	}
	assert.Equal(t, buildKey("https://myfigurecollection.net/item/12345/"), buildKey(pageURL))
}
