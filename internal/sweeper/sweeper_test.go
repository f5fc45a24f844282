package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo-systems/policyd/internal/obslog"
)

func testLogger() *obslog.Logger { return obslog.New("policyd-test", "error", "json") }

func TestTicker_RunDeliversTicksOnChannel(t *testing.T) {
	tk := NewTicker(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tk.Run(ctx, 10*time.Millisecond) // below the 1s floor, rounded up

	select {
	case <-tk.Channel():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a sweep tick")
	}
}

func TestTicker_RunStopsOnContextCancel(t *testing.T) {
	tk := NewTicker(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		tk.Run(ctx, time.Second)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestTicker_StartSummaryJobRegistersHourlyJob(t *testing.T) {
	tk := NewTicker(testLogger())
	called := false
	err := tk.StartSummaryJob(func() int {
		called = true
		return 3
	})
	require.NoError(t, err)
	tk.StopSummaryJob()
	assert.False(t, called) // @hourly never fires within the test's lifetime
}
