package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveRequest("listing", "ok", time.Second)
		r.RetryHook("listing", 1, nil)
		r.ArticleSeen("new")
		r.CalendarEvents(3)
		r.ObserveCycle(nil, time.Second)
	})
	assert.Nil(t, r.Registry())
}

func TestCounters(t *testing.T) {
	r := New()

	r.ObserveRequest("listing", "ok", 120*time.Millisecond)
	r.ObserveRequest("listing", "ok", 80*time.Millisecond)
	r.ObserveRequest("article", "error", time.Second)
	r.RetryHook("page", 1, errors.New("x"))
	r.ArticleSeen("new")
	r.ArticleSeen("dedup")
	r.ArticleSeen("dedup")
	r.CalendarEvents(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("listing", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("article", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("page")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.articles.WithLabelValues("dedup")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.calendarRows))
}

func TestObserveCycleSetsLastSuccess(t *testing.T) {
	r := New()

	r.ObserveCycle(errors.New("failed"), time.Second)
	assert.Zero(t, testutil.ToFloat64(r.lastSuccessTS))

	r.ObserveCycle(nil, 2*time.Second)
	assert.Greater(t, testutil.ToFloat64(r.lastSuccessTS), 0.0)
}

func TestHandlerServesMetrics(t *testing.T) {
	r := New()
	r.ArticleSeen("new")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `fxdigest_articles_total{result="new"} 1`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
