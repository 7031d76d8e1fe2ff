package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("redis", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	c.Register("kafka", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)

	c.Register("postgres", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPingCheck(t *testing.T) {
	failing := func(context.Context) error { return errors.New("connection refused") }

	down := PingCheck(failing, true)(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.Equal(t, "connection refused", down.Message)

	degraded := PingCheck(failing, false)(context.Background())
	assert.Equal(t, StatusDegraded, degraded.Status)

	up := PingCheck(func(context.Context) error { return nil }, true)(context.Background())
	assert.Equal(t, StatusUp, up.Status)
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker()
	c.checkTimeout = 20 * time.Millisecond
	c.Register("postgres", func(ctx context.Context) ComponentHealth {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("redis", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["postgres"].Message)
	assert.Equal(t, StatusUp, report.Components["redis"].Status)
}

func TestBacklogCheck(t *testing.T) {
	queued := 0
	check := BacklogCheck(func() int { return queued }, 100, 0.8)

	queued = 79
	assert.Equal(t, StatusUp, check(context.Background()).Status)

	queued = 80
	got := check(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "80 of 100 slots in use", got.Message)

	queued = 100
	assert.Equal(t, StatusDegraded, check(context.Background()).Status)

	assert.Equal(t, StatusUp, BacklogCheck(func() int { return 5 }, 0, 0.8)(context.Background()).Status)
}

func TestNonEmptyCheck(t *testing.T) {
	down := NonEmptyCheck("merchants", func() int { return 0 })(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.Equal(t, "no merchants loaded", down.Message)

	assert.Equal(t, StatusUp, NonEmptyCheck("merchants", func() int { return 2 })(context.Background()).Status)
}

func TestReadyHandlerDegradedIsReady(t *testing.T) {
	c := NewChecker()
	c.Register("kafka", PingCheck(func(context.Context) error { return errors.New("no brokers") }, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "no brokers", report.Components["kafka"].Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDown, report.Components["redis"].Status)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
