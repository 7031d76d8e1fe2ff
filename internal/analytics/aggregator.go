package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mfc-shop/mfc-shop/pkg/kafka"
)

type AggregatedStats struct {
	TotalHandoffs       int64           `json:"total_handoffs"`
	TotalExtractions    int64           `json:"total_extractions"`
	FailedExtractions   int64           `json:"failed_extractions"`
	CacheHits           int64           `json:"cache_hits"`
	CacheMisses         int64           `json:"cache_misses"`
	AvgDictionarySize   float64         `json:"avg_dictionary_size"`
	MatchRate           float64         `json:"match_rate"`
	P50ExtractLatencyMs int64           `json:"p50_extract_latency_ms"`
	P95ExtractLatencyMs int64           `json:"p95_extract_latency_ms"`
	P99ExtractLatencyMs int64           `json:"p99_extract_latency_ms"`
	HandoffsByMerchant  []MerchantCount `json:"handoffs_by_merchant"`
	TopQueries          []QueryCount    `json:"top_queries"`
	HandoffsPerMinute   float64         `json:"handoffs_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type MerchantCount struct {
	MerchantID string `json:"merchant_id"`
	Count      int64  `json:"count"`
}

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

// Aggregator folds handoff and extraction events into running totals.
type Aggregator struct {
	mu sync.RWMutex

	totalHandoffs     int64
	totalExtractions  int64
	failedExtractions int64
	cacheHits         int64
	cacheMisses       int64
	dictionaryTotal   int64
	segmentsTotal     int64
	matchedTotal      int64
	latencies         []int64
	queryCounts       map[string]int64
	merchantCounts    map[string]int64
	startTime         time.Time
	topN              int

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator reporting the topN most frequent
// queries. consumer may be nil when events are fed in-process.
func NewAggregator(consumer *kafka.Consumer, topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:      make([]int64, 0, 1024),
		queryCounts:    make(map[string]int64),
		merchantCounts: make(map[string]int64),
		startTime:      time.Now(),
		topN:           topN,
		consumer:       consumer,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the Kafka consumer that Start reads from.
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

// Start consumes events until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent adapts the aggregator to a Kafka message handler. Undecodable
// messages are logged and skipped so they are still committed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := DecodeEvent(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// PublishBatch records events directly, letting the aggregator stand in
// for Kafka when the service runs on its own.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		a.Record(e.Value)
	}
	return nil
}

// Record folds one event into the totals. Unknown values are ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case HandoffEvent:
		a.recordHandoff(e)
	case *HandoffEvent:
		a.recordHandoff(*e)
	case ExtractEvent:
		a.recordExtract(e)
	case *ExtractEvent:
		a.recordExtract(*e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", e)
	}
}

func (a *Aggregator) recordHandoff(e HandoffEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalHandoffs++
	a.segmentsTotal += int64(e.Segments)
	a.matchedTotal += int64(e.Matched)
	a.merchantCounts[e.MerchantID]++
	if e.Query != "" {
		a.queryCounts[e.Query]++
	}
}

func (a *Aggregator) recordExtract(e ExtractEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalExtractions++
	if e.Failed {
		a.failedExtractions++
		return
	}
	if e.Source == SourceURL {
		if e.CacheHit {
			a.cacheHits++
		} else {
			a.cacheMisses++
		}
	}
	a.dictionaryTotal += int64(e.DictionarySize)
	if len(a.latencies) >= maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, e.LatencyMs)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalHandoffs:     a.totalHandoffs,
		TotalExtractions:  a.totalExtractions,
		FailedExtractions: a.failedExtractions,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
	}
	if ok := a.totalExtractions - a.failedExtractions; ok > 0 {
		stats.AvgDictionarySize = float64(a.dictionaryTotal) / float64(ok)
	}
	if a.segmentsTotal > 0 {
		stats.MatchRate = float64(a.matchedTotal) / float64(a.segmentsTotal)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50ExtractLatencyMs = percentile(sorted, 50)
		stats.P95ExtractLatencyMs = percentile(sorted, 95)
		stats.P99ExtractLatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	for _, qc := range topN(a.merchantCounts, len(a.merchantCounts)) {
		stats.HandoffsByMerchant = append(stats.HandoffsByMerchant, MerchantCount{MerchantID: qc.Query, Count: qc.Count})
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.HandoffsPerMinute = float64(stats.TotalHandoffs) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by key so equal counts are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
