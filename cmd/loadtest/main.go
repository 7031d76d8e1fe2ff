// Command loadtest drives the shop service's query endpoints with
// concurrent workers and reports throughput, latency percentiles and status
// codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-page https://myfigurecollection.net/item/1]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	PageURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

// operation is one endpoint hit in rotation.
type operation struct {
	name string
	path string
	body func(query string) map[string]any
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	perOperation  map[string]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:    make([]time.Duration, 0, 100000),
		statusCodes:  make(map[int]*atomic.Int64),
		perOperation: make(map[string]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(op string, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	if _, ok := s.perOperation[op]; !ok {
		s.perOperation[op] = &atomic.Int64{}
	}
	s.perOperation[op].Add(1)
	s.statusCodesMu.Unlock()
}

// sampleTerms stands in for a page when no -page is given, so the run
// exercises matching without fetching.
var sampleTerms = map[string]any{
	"Category":   []any{"Prepainted", map[string]string{"en": "Figure", "jp": "フィギュア"}},
	"Origins":    []any{map[string]string{"en": "Vocaloid", "jp": "ボーカロイド"}},
	"Characters": []any{map[string]string{"en": "Hatsune Miku", "jp": "初音ミク"}},
	"Companies":  []any{map[string]string{"en": "Good Smile Company", "jp": "グッドスマイルカンパニー"}},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the shop service")
	pageURL := flag.String("page", "", "catalog page whose terms are used; built-in sample terms when empty")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	queries := []string{
		"初音ミク",
		"初音ミク フィギュア",
		"ボーカロイド 初音ミク 1/7",
		"グッドスマイルカンパニー ねんどろいど",
		"フィギュア",
		"初音ミク　雪ミク",
		"figma 初音ミク",
		"ボーカロイド",
	}

	cfg := Config{
		BaseURL:     *baseURL,
		PageURL:     *pageURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== MFC Shop Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func operations(cfg Config) []operation {
	source := func(body map[string]any) map[string]any {
		if cfg.PageURL != "" {
			body["url"] = cfg.PageURL
		} else {
			body["terms"] = sampleTerms
		}
		return body
	}
	return []operation{
		{"translate", "/api/v1/translate", func(q string) map[string]any {
			return source(map[string]any{"query": q})
		}},
		{"add", "/api/v1/query/add", func(q string) map[string]any {
			return source(map[string]any{"query": q, "term": "フィギュア"})
		}},
		{"remove", "/api/v1/query/remove", func(q string) map[string]any {
			return source(map[string]any{"query": q, "index": 0})
		}},
	}
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ops := operations(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			i := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				op := ops[i%len(ops)]
				query := cfg.Queries[i%len(cfg.Queries)]
				i++

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, cfg.BaseURL+op.path, op.body(query)))
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(op.name, duration, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(op.name, duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string, body map[string]any) *http.Request {
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("encoding body: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Operations ===")
	stats.statusCodesMu.Lock()
	names := make([]string, 0, len(stats.perOperation))
	for name := range stats.perOperation {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-10s %d\n", name, stats.perOperation[name].Load())
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
