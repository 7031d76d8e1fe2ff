// Package health reports whether the shop service can answer requests.
// Each dependency registers a Check; the readiness endpoint runs them side
// by side and reports the worst result.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is the state of one dependency or of the service as a whole.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check inspects one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the outcome of one Check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is what /health/ready answers with.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

const defaultCheckTimeout = 2 * time.Second

// Checker holds the registered checks.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]Check
	checkTimeout time.Duration
	logger       *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks:       make(map[string]Check),
		checkTimeout: defaultCheckTimeout,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

type namedResult struct {
	name   string
	result ComponentHealth
}

// Run executes every check concurrently, each bounded by its own timeout.
// A check that outlives it is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.checkTimeout
	c.mu.RUnlock()

	results := make(chan namedResult, len(checks))
	for name, check := range checks {
		go func() {
			results <- namedResult{name: name, result: c.runOne(ctx, check, timeout)}
		}()
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range checks {
		r := <-results
		report.Components[r.name] = r.result
		if r.result.Status.rank() > report.Status.rank() {
			report.Status = r.result.Status
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, check Check, timeout time.Duration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

// PingCheck wraps a connectivity test. The shop runs without any optional
// dependency, so a failed non-critical ping is degraded rather than down.
func PingCheck(ping func(ctx context.Context) error, critical bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDegraded
			if critical {
				status = StatusDown
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BacklogCheck watches a bounded queue such as the analytics event buffer.
// At highWater (a fraction of capacity) it reports degraded, because new
// events are about to be dropped; a full queue is still only degraded.
func BacklogCheck(length func() int, capacity int, highWater float64) Check {
	return func(context.Context) ComponentHealth {
		n := length()
		if capacity <= 0 || float64(n) < highWater*float64(capacity) {
			return ComponentHealth{Status: StatusUp}
		}
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d of %d slots in use", n, capacity),
		}
	}
}

// NonEmptyCheck reports down when count is zero, as for a merchant registry
// with nothing to hand off to.
func NonEmptyCheck(what string, count func() int) Check {
	return func(context.Context) ComponentHealth {
		if n := count(); n == 0 {
			return ComponentHealth{Status: StatusDown, Message: "no " + what + " loaded"}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// LiveHandler answers as long as the process serves HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler runs the checks. Degraded is still ready; only a down
// component answers 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())

		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.logger.Error("encoding health report", "error", err)
		}
	}
}
