package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo-systems/policyd/internal/svcerr"
)

func TestFake_CapVerify_DeniedBadge(t *testing.T) {
	f, err := NewFake(false)
	require.NoError(t, err)

	f.DenyBadge(99)
	_, err = f.CapVerify(context.Background(), 99, ThreadCap(1))
	require.Error(t, err)
	assert.True(t, svcerr.Is(err, svcerr.CodeAccessDenied))

	assertion, err := f.CapVerify(context.Background(), 100, ThreadCap(1))
	require.NoError(t, err)
	assert.Empty(t, assertion.Token)
}

func TestFake_CapVerify_SignsWhenConfigured(t *testing.T) {
	f, err := NewFake(true)
	require.NoError(t, err)

	assertion, err := f.CapVerify(context.Background(), 0xA1, ThreadCap(2))
	require.NoError(t, err)
	require.NotEmpty(t, assertion.Token)

	assert.NoError(t, VerifyBadgeAssertion(f.PublicKey(), assertion.Token, 0xA1, 2))
}

func TestFake_CapTransfer_RecordsAndCanBeForcedToFail(t *testing.T) {
	f, err := NewFake(false)
	require.NoError(t, err)

	require.NoError(t, f.CapTransfer(context.Background(), Slot(1), CNodeID(0xA1), Slot(7), RightRead))
	require.Len(t, f.Transfers(), 1)

	f.FailNextTransfer()
	err = f.CapTransfer(context.Background(), Slot(1), CNodeID(0xA1), Slot(7), RightRead)
	require.Error(t, err)
	assert.Len(t, f.Transfers(), 1) // failed attempt is not recorded
}

func TestFake_CapRevoke_NoCapOnSecondCall(t *testing.T) {
	f, err := NewFake(false)
	require.NoError(t, err)

	require.NoError(t, f.CapRevoke(context.Background(), CNodeID(1), Slot(7)))
	err = f.CapRevoke(context.Background(), CNodeID(1), Slot(7))
	require.Error(t, err)
	assert.True(t, svcerr.Is(err, svcerr.CodeNoCap))
}

func TestFake_CapMint_AllocatesDistinctSlots(t *testing.T) {
	f, err := NewFake(false)
	require.NoError(t, err)

	s1, err := f.CapMint(context.Background(), Slot(4), RightRead, "/home")
	require.NoError(t, err)
	s2, err := f.CapMint(context.Background(), Slot(4), RightRead, "/home")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, f.Mints(), 2)
}

func TestFake_HardwareAttest(t *testing.T) {
	f, err := NewFake(false)
	require.NoError(t, err)

	present, err := f.HardwareAttest(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, present)

	f.SetHardwarePresence(false)
	present, err = f.HardwareAttest(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestRights_HasAndString(t *testing.T) {
	r := RightRead | RightWrite
	assert.True(t, r.Has(RightRead))
	assert.False(t, r.Has(RightGrant))
	assert.Equal(t, "READ|WRITE", r.String())
	assert.Equal(t, "NONE", Rights(0).String())
}
