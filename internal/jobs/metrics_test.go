package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("reorder:scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("reorder:scan").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reorder:scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reorder:scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("reorder:scan")))

	m.AddSuggestions("high", 2)
	m.AddSuggestions("high", 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.suggested.WithLabelValues("high")))
}
