package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo-systems/policyd/internal/kernel"
)

func TestVerifier_AcceptsGenuineBadge(t *testing.T) {
	fake, err := kernel.NewFake(true)
	require.NoError(t, err)

	v := NewVerifier(fake, fake.PublicKey())
	id, err := v.Verify(context.Background(), 0xA1, kernel.ThreadCap(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA1), id.Raw())
}

func TestVerifier_RejectsDeniedBadge(t *testing.T) {
	fake, err := kernel.NewFake(true)
	require.NoError(t, err)
	fake.DenyBadge(0xB2)

	v := NewVerifier(fake, fake.PublicKey())
	_, err = v.Verify(context.Background(), 0xB2, kernel.ThreadCap(1))
	assert.Error(t, err)
}

func TestVerifier_NoSigningKeyStillTrustsCapVerify(t *testing.T) {
	fake, err := kernel.NewFake(false)
	require.NoError(t, err)

	v := NewVerifier(fake, nil)
	id, err := v.Verify(context.Background(), 0xC3, kernel.ThreadCap(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0xC3), id.Raw())
}
