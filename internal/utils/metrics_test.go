package utils

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

func TestMetricsCounters(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordBackendRequest("scripts/split", nil, 10*time.Millisecond)
	m.RecordBackendRequest("scripts/split", errors.New("boom"), 10*time.Millisecond)
	m.RecordBackendRequest("scripts/split", nil, 10*time.Millisecond)
	m.RecordJobTerminal("completed")
	m.RecordPollTick("error")
	m.TaskStarted("image")
	m.TaskStarted("image")
	m.TaskFinished("image")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backendRequests.WithLabelValues("scripts/split", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendRequests.WithLabelValues("scripts/split", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTerminal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollTicks.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksActive.WithLabelValues("image")))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordJobSubmitted()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "composer_jobs_submitted_total 1")
}
