package compositor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_DefaultApprovesEveryPrompt(t *testing.T) {
	f := NewFake()
	resp, err := f.RequestConsent(context.Background(), PromptRequest{Ticket: "t1", ClearName: "camera.use"})
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Len(t, f.Requests(), 1)
}

func TestFake_SetDefaultAppliesToUnregisteredTickets(t *testing.T) {
	f := NewFake()
	f.SetDefault(Decision{Approved: false, Reason: "denied"})

	resp, err := f.RequestConsent(context.Background(), PromptRequest{Ticket: "unregistered"})
	require.NoError(t, err)
	assert.False(t, resp.Approved)
	assert.Equal(t, "denied", resp.Reason)
}

func TestFake_DecideOverridesDefaultForSpecificTicket(t *testing.T) {
	f := NewFake()
	f.SetDefault(Decision{Approved: false})
	f.Decide("special", Decision{Approved: true, Reason: "ok"})

	resp, err := f.RequestConsent(context.Background(), PromptRequest{Ticket: "special"})
	require.NoError(t, err)
	assert.True(t, resp.Approved)

	resp, err = f.RequestConsent(context.Background(), PromptRequest{Ticket: "other"})
	require.NoError(t, err)
	assert.False(t, resp.Approved)
}

func TestFake_DelayBlocksUntilContextCancelled(t *testing.T) {
	f := NewFake()
	f.SetDefault(Decision{Delay: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.RequestConsent(ctx, PromptRequest{Ticket: "slow"})
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestFake_RequestsRecordsEveryCall(t *testing.T) {
	f := NewFake()
	_, _ = f.RequestConsent(context.Background(), PromptRequest{Ticket: "a", ClearName: "camera.use"})
	_, _ = f.RequestConsent(context.Background(), PromptRequest{Ticket: "b", ClearName: "network.outbound"})

	reqs := f.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "camera.use", reqs[0].ClearName)
	assert.Equal(t, "network.outbound", reqs[1].ClearName)
}
