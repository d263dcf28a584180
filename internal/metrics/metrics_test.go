package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.IncWindow("MockA", "Date")
	m.IncWindow("MockA", "Date")
	m.AddRecords("MockA", "id", 3)
	m.AddRecords("MockA", "id", 0)
	m.IncError("MockA", "NO_DATA")
	m.ObserveRequest("MockA", "GET", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WindowsTotal.WithLabelValues("MockA", "Date")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("MockA", "id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("MockA", "NO_DATA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("MockA", "GET")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.IncWindow("a", "b")
	m.IncError("a", "b")
	m.IncRetry("a")
	assert.NoError(t, m.WriteTextfile("ignored"))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.IncRetry("MockA")
	path := filepath.Join(t.TempDir(), "planscrape.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `planscrape_retries_total{authority="MockA"} 1`)
}
