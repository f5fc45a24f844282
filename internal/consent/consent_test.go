package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo-systems/policyd/internal/compositor"
	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/risk"
)

func testLogger() *obslog.Logger { return obslog.New("policyd-test", "error", "json") }

func fixedTimeout() TimeoutFunc {
	return func(risk.Level) time.Duration { return 50 * time.Millisecond }
}

func TestEngine_ApprovedPrompt(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)
	comp := compositor.NewFake()

	e := New(fake, comp, fixedTimeout(), testLogger())
	approved, err := e.Request(context.Background(), policy.FromBadge(1), policy.ClearName("camera.use"), risk.High)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Len(t, comp.Requests(), 1)
}

func TestEngine_DeniedPrompt(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)
	comp := compositor.NewFake()
	comp.SetDefault(compositor.Decision{Approved: false, Reason: "denied"})

	e := New(fake, comp, fixedTimeout(), testLogger())
	approved, err := e.Request(context.Background(), policy.FromBadge(1), policy.ClearName("camera.use"), risk.High)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestEngine_CriticalWithoutHardwarePresenceNeverPrompts(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)
	fake.SetHardwarePresence(false)
	comp := compositor.NewFake()

	e := New(fake, comp, fixedTimeout(), testLogger())
	approved, err := e.Request(context.Background(), policy.FromBadge(1), policy.ClearName("disk.erase"), risk.Critical)
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Empty(t, comp.Requests())
}

func TestEngine_CriticalWithHardwarePresencePrompts(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)
	comp := compositor.NewFake()

	e := New(fake, comp, fixedTimeout(), testLogger())
	approved, err := e.Request(context.Background(), policy.FromBadge(1), policy.ClearName("disk.erase"), risk.Critical)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Len(t, comp.Requests(), 1)
}

func TestEngine_TimeoutIsTreatedAsDenial(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)
	comp := compositor.NewFake()
	comp.SetDefault(compositor.Decision{Delay: true})

	e := New(fake, comp, func(risk.Level) time.Duration { return 20 * time.Millisecond }, testLogger())
	approved, err := e.Request(context.Background(), policy.FromBadge(1), policy.ClearName("camera.use"), risk.Medium)
	require.NoError(t, err)
	assert.False(t, approved)
}
