// Package identity verifies that an inbound request's kernel-stamped
// badge is genuine before any other component trusts it. Verification
// has two independent layers: the kernel's own cap_verify syscall
// result, and (when a kernel signing key is configured) the RS256
// badge assertion riding alongside it.
package identity

import (
	"context"
	"crypto/rsa"

	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/svcerr"
)

// Verifier checks inbound badges against the kernel.
type Verifier struct {
	kernelClient kernel.Client
	kernelPubKey *rsa.PublicKey
}

// NewVerifier constructs a Verifier. pubKey may be nil, in which case
// only the cap_verify syscall result is trusted (still unforgeable, but
// without the defense-in-depth assertion layer).
func NewVerifier(kernelClient kernel.Client, pubKey *rsa.PublicKey) *Verifier {
	return &Verifier{kernelClient: kernelClient, kernelPubKey: pubKey}
}

// Verify confirms that badge was in fact stamped by the kernel for
// threadCap, and returns the resulting ApplicationIdentity. On any error
// the caller must not run authorization logic for the request; the
// request loop answers it with Error(AccessDenied).
func (v *Verifier) Verify(ctx context.Context, badge uint64, threadCap kernel.ThreadCap) (policy.ApplicationIdentity, error) {
	assertion, err := v.kernelClient.CapVerify(ctx, badge, threadCap)
	if err != nil {
		return 0, err
	}
	if assertion == nil {
		return 0, svcerr.AccessDenied("identity: kernel returned no badge assertion")
	}
	if err := kernel.VerifyBadgeAssertion(v.kernelPubKey, assertion.Token, badge, uint64(threadCap)); err != nil {
		return 0, svcerr.Wrap(svcerr.CodeAccessDenied, "identity: badge assertion rejected", err)
	}
	return policy.FromBadge(badge), nil
}
