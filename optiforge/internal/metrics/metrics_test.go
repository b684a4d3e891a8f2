package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RunCreated()
	m.RunCreated()
	m.Transition("solved")
	m.Transition("error")
	m.Transition("solved")
	m.ObserveSolve("optimal", 20*time.Millisecond)
	m.ObserveGenerate("ok", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("error")))

	n, err := testutil.GatherAndCount(reg, "optiforge_solve_duration_seconds", "optiforge_generate_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expected := `
# HELP optiforge_runs_created_total Runs created.
# TYPE optiforge_runs_created_total counter
optiforge_runs_created_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "optiforge_runs_created_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunCreated()
		m.Transition("solved")
		m.ObserveSolve("optimal", time.Second)
		m.ObserveGenerate("ok", time.Second)
	})
}
