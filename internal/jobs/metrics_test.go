package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("rbac:permissions:warm").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("rbac:permissions:warm").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rbac:permissions:warm", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rbac:permissions:warm", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("rbac:permissions:warm")))
}

func TestAddItems(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddItems("deadlines:batch", "", 3)
	m.AddItems("deadlines:batch", "error", 1)
	m.AddItems("deadlines:batch", "error", 0)

	expected := `
# HELP odyssey_job_items_total Items processed by background jobs grouped by outcome.
# TYPE odyssey_job_items_total counter
odyssey_job_items_total{job="deadlines:batch",outcome="error"} 1
odyssey_job_items_total{job="deadlines:batch",outcome="ok"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "odyssey_job_items_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddItems("x", "ok", 1)
	require.NoError(t, m.Track("x").End(nil))
}
