package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) ClearName {
	t.Helper()
	n, err := NewClearName(s)
	require.NoError(t, err)
	return n
}

func TestGrantStore_GrantAndIsGranted(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	store := NewGrantStore(8, 8, 16, clock)

	id := FromBadge(1)
	name := mustName(t, "camera.use")

	assert.False(t, store.IsGranted(id, name))

	require.NoError(t, store.Grant(id, name, nil))
	assert.True(t, store.IsGranted(id, name))
}

func TestGrantStore_ExpiryMakesGrantUnobservable(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	store := NewGrantStore(8, 8, 16, clock)

	id := FromBadge(1)
	name := mustName(t, "network.outbound")
	d := 60 * time.Second

	require.NoError(t, store.Grant(id, name, &d))
	assert.True(t, store.IsGranted(id, name))

	clock.Advance(61 * time.Second)
	assert.False(t, store.IsGranted(id, name))
	assert.True(t, store.IsExpired(id, name))
}

func TestGrantStore_RevokeIsIdempotent(t *testing.T) {
	store := NewGrantStore(8, 8, 16, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)
	name := mustName(t, "camera.use")

	store.Revoke(id, name) // no-op, never granted
	require.NoError(t, store.Grant(id, name, nil))
	store.Revoke(id, name)
	assert.False(t, store.IsGranted(id, name))
	store.Revoke(id, name) // second revoke, still a no-op
	assert.False(t, store.IsGranted(id, name))
}

func TestGrantStore_MaxAppsBound(t *testing.T) {
	store := NewGrantStore(1, 8, 16, NewFakeClock(time.Unix(0, 0)))
	name := mustName(t, "camera.use")

	require.NoError(t, store.Grant(FromBadge(1), name, nil))
	err := store.Grant(FromBadge(2), name, nil)
	require.Error(t, err)
}

func TestGrantStore_MaxGrantsPerAppBound(t *testing.T) {
	store := NewGrantStore(8, 1, 16, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)

	require.NoError(t, store.Grant(id, mustName(t, "camera.use"), nil))
	err := store.Grant(id, mustName(t, "network.outbound"), nil)
	require.Error(t, err)
}

func TestGrantStore_GrantRenewsExistingEntry(t *testing.T) {
	store := NewGrantStore(8, 1, 16, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)
	name := mustName(t, "camera.use")

	require.NoError(t, store.Grant(id, name, nil))
	require.NoError(t, store.Grant(id, name, nil)) // same name, within the 1-grant bound
	assert.True(t, store.IsGranted(id, name))
}

func TestGrantStore_SweepTombstonesExpiredOnly(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	store := NewGrantStore(8, 8, 16, clock)
	id := FromBadge(1)

	short := 10 * time.Second
	require.NoError(t, store.Grant(id, mustName(t, "network.outbound"), &short))
	require.NoError(t, store.Grant(id, mustName(t, "camera.use"), nil))

	clock.Advance(11 * time.Second)
	swept := store.Sweep()
	assert.Equal(t, 1, swept)
	assert.False(t, store.IsGranted(id, mustName(t, "network.outbound")))
	assert.True(t, store.IsGranted(id, mustName(t, "camera.use")))
}

func TestGrantStore_RecentRingBufferNeverLosesMostRecentEvents(t *testing.T) {
	store := NewGrantStore(8, 32, 4, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)

	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		require.NoError(t, store.Grant(id, ClearName(n), nil))
	}

	recent := store.Recent(4)
	require.Len(t, recent, 4)
	want := []string{"c", "d", "e", "f"}
	for i, ev := range recent {
		assert.Equal(t, want[i], string(ev.ClearName))
	}
}

func TestGrantStore_RecentBeforeRingIsFull(t *testing.T) {
	store := NewGrantStore(8, 32, 10, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)

	require.NoError(t, store.Grant(id, ClearName("a"), nil))
	require.NoError(t, store.Grant(id, ClearName("b"), nil))

	recent := store.Recent(5)
	require.Len(t, recent, 2)
	assert.Equal(t, "a", string(recent[0].ClearName))
	assert.Equal(t, "b", string(recent[1].ClearName))
}

func TestGrantStore_OnAuditCalledForEveryEvent(t *testing.T) {
	store := NewGrantStore(8, 32, 16, NewFakeClock(time.Unix(0, 0)))
	var seen []AuditAction
	store.OnAudit(func(ev AuditEvent) { seen = append(seen, ev.Action) })

	id := FromBadge(1)
	name := mustName(t, "camera.use")
	require.NoError(t, store.Grant(id, name, nil))
	store.IsGranted(id, name)
	store.Revoke(id, name)
	store.LogDenial(id, name)

	require.Len(t, seen, 4)
	assert.Equal(t, []AuditAction{AuditGrant, AuditQuery, AuditRevoke, AuditDeny}, seen)
}

func TestGrantStore_ListGranted(t *testing.T) {
	store := NewGrantStore(8, 32, 16, NewFakeClock(time.Unix(0, 0)))
	id := FromBadge(1)
	require.NoError(t, store.Grant(id, mustName(t, "camera.use"), nil))
	require.NoError(t, store.Grant(id, mustName(t, "network.outbound"), nil))

	names := store.ListGranted(id)
	require.Len(t, names, 2)
}
