package kernel

import "context"

// BadgeAssertion is returned by CapVerify alongside the ok/deny result:
// a signed statement from the kernel that the given badge was in fact
// stamped for the given thread capability at the time of the call. This
// is defense-in-depth on top of the already-unforgeable badge stamp
// itself; see jwt.go for the verification path.
type BadgeAssertion struct {
	Badge     uint64
	ThreadCap uint64
	Token     string // RS256 JWT, empty when the kernel has no signing key configured
}

// Client is the Policy Service's view of the microkernel syscall
// surface. Implementations: RemoteClient (production, Unix-domain
// transport) and Fake (tests).
type Client interface {
	// Retype converts untyped memory into a typed kernel object.
	Retype(ctx context.Context, untypedSlot Slot, target CapType, destSlot Slot, sizeBits int) error

	// CapTransfer moves (or copies, kernel-determined) a capability into
	// another CNode's slot with attenuated rights.
	CapTransfer(ctx context.Context, srcSlot Slot, destCNode CNodeID, destSlot Slot, rights Rights) error

	// CapMint derives a new, more restricted capability from parentSlot,
	// returning its slot in the Policy Service's own CNode. pathDescriptor
	// carries the path-prefix restriction for filesystem capabilities;
	// empty for non-path-scoped mints.
	CapMint(ctx context.Context, parentSlot Slot, rights Rights, pathDescriptor string) (Slot, error)

	// CapRevoke destroys a capability and its derivatives in cnode's slot.
	// A "no such capability" result is surfaced as a NoCap error; callers
	// that want revoke to be idempotent treat NoCap as success.
	CapRevoke(ctx context.Context, cnode CNodeID, slot Slot) error

	// CapDelete destroys a capability in the Policy Service's own CNode,
	// used to roll back a minted intermediate on delegation failure.
	CapDelete(ctx context.Context, slot Slot) error

	// CapVerify confirms that badge is in fact the badge the kernel would
	// stamp for threadCap right now.
	CapVerify(ctx context.Context, badge uint64, threadCap ThreadCap) (*BadgeAssertion, error)

	// EndpointCreate allocates a new IPC endpoint capability.
	EndpointCreate(ctx context.Context) (Endpoint, error)

	// NamespaceRegister publishes an endpoint under a well-known name.
	NamespaceRegister(ctx context.Context, ep Endpoint, name string) error

	// Recv blocks for the next message on ep, returning the sender's
	// badge and the raw request payload.
	Recv(ctx context.Context, ep Endpoint) (badge uint64, payload []byte, err error)

	// Reply sends buf as the response to the message most recently
	// received via Recv, addressed to the given badge. The reply always
	// uses a distinct buffer from the request.
	Reply(ctx context.Context, badge uint64, buf []byte) error

	// Call performs a blocking request/response IPC exchange against ep
	// (used for hardware_attest-adjacent flows that aren't plain
	// recv/reply); not used on the application-facing endpoint.
	Call(ctx context.Context, ep Endpoint, buf []byte) ([]byte, error)

	// HardwareAttest checks a physical-presence signal (chassis button,
	// security-key touch, TPM attestation) for Critical-risk escalation.
	HardwareAttest(ctx context.Context, flags AttestFlags) (present bool, err error)

	// DebugPutChar writes one byte to the kernel debug console. Exists
	// for parity with the full syscall table; the Policy Service itself
	// logs through internal/obslog and rarely calls this directly.
	DebugPutChar(b byte) error
}
