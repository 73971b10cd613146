package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("ledger:integrity")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger:integrity")))
}

func TestFailedRunLeavesLastSuccessUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.Error(t, m.Track("inventory:reconcile").End(errors.New("store down")))
	require.Equal(t, 0, testutil.CollectAndCount(m.lastSuccess))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestAddAnomaliesIgnoresEmptyCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddAnomalies("sequence_gap", "", 0)
	m.AddAnomalies("sequence_gap", "", 2)
	m.AddAnomalies("inventory_variance", "acme", 1)

	expected := `
# HELP books_ledger_anomalies_total Ledger defects found by background checks, by kind and ledger.
# TYPE books_ledger_anomalies_total counter
books_ledger_anomalies_total{kind="inventory_variance",ledger="acme"} 1
books_ledger_anomalies_total{kind="sequence_gap",ledger="default"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "books_ledger_anomalies_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddAnomalies("x", "y", 3)
	require.NoError(t, m.Track("job").End(nil))
}
