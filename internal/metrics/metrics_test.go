package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.RatingSubmitted(true)
	m.RatingSubmitted(false)
	m.RatingSubmitted(false)
	m.MilestoneTransition("approved")
	m.Payout("success")
	m.Payout("failure")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ratingsSubmitted.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ratingsSubmitted.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.milestoneTransitions.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payouts.WithLabelValues("failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RatingSubmitted(true)
		m.MilestoneTransition("paid")
		m.Payout("success")
		m.ObserveRequest(http.MethodGet, "/healthz", 200, time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/users/{userID}/ratings", http.StatusCreated, 20*time.Millisecond)
	m.RatingSubmitted(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `freelance_http_request_duration_seconds_count{method="POST",route="/users/{userID}/ratings",status="201"} 1`), body)
	assert.Contains(t, body, `freelance_ratings_submitted_total{outlier="false"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
