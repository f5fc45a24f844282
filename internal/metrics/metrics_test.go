package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.GrantsTotal.WithLabelValues("high").Inc()
	m.DenialsTotal.WithLabelValues("medium").Inc()
	m.RevokesTotal.WithLabelValues("explicit").Inc()
	m.ActiveGrants.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.GrantsTotal.WithLabelValues("high")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DenialsTotal.WithLabelValues("medium")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveGrants))
}

func TestSampleActiveGrants_SetsGaugeFromCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.SampleActiveGrants(func() int { return 7 })
	assert.Equal(t, float64(7), testutil.ToFloat64(m.ActiveGrants))
}

func TestRunProcessSampler_StopsOnContextCancelWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunProcessSampler(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunProcessSampler did not return after context cancellation")
	}
}
