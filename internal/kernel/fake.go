package kernel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/kozo-systems/policyd/internal/svcerr"
)

// TransferRecord captures one CapTransfer call, for test assertions
// against end-to-end delegation scenarios.
type TransferRecord struct {
	SrcSlot   Slot
	DestCNode CNodeID
	DestSlot  Slot
	Rights    Rights
}

// MintRecord captures one CapMint call.
type MintRecord struct {
	ParentSlot Slot
	Rights     Rights
	Path       string
	ResultSlot Slot
}

// RevokeRecord captures one CapRevoke call.
type RevokeRecord struct {
	CNode CNodeID
	Slot  Slot
}

// Fake is an in-memory kernel.Client for tests: it never touches a real
// transport and exposes recorded calls for assertions.
type Fake struct {
	mu sync.Mutex

	priv *rsa.PrivateKey
	pub  *rsa.PublicKey

	deniedBadges map[uint64]bool
	failTransfer bool
	failMintErr  error
	failRevoke   error

	transfers []TransferRecord
	mints     []MintRecord
	revokes   []RevokeRecord
	deleted   []Slot

	nextMintSlot Slot
	revokedSlots map[revokeKey]bool

	hwPresent bool

	nextEndpoint uint64
	registered   map[string]Endpoint

	recvQueue chan recvItem
	replies   []ReplyRecord
}

type recvItem struct {
	badge   uint64
	payload []byte
}

// ReplyRecord captures one Reply call, for request-loop scenario tests.
type ReplyRecord struct {
	Badge uint64
	Buf   []byte
}

type revokeKey struct {
	cnode CNodeID
	slot  Slot
}

// NewFake constructs a ready-to-use Fake. signBadges selects whether
// CapVerify mints a real RSA-signed BadgeAssertion (exercising the
// golang-jwt path) or leaves Token empty (exercising the
// assertion-disabled path).
func NewFake(signBadges bool) (*Fake, error) {
	f := &Fake{
		deniedBadges: map[uint64]bool{},
		nextMintSlot: 1000,
		revokedSlots: map[revokeKey]bool{},
		hwPresent:    true,
		registered:   map[string]Endpoint{},
		recvQueue:    make(chan recvItem, 64),
	}
	if signBadges {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("kernel: fake keypair: %w", err)
		}
		f.priv = priv
		f.pub = &priv.PublicKey
	}
	return f, nil
}

// PublicKey returns the fake kernel's signing public key, or nil if
// signBadges was false at construction.
func (f *Fake) PublicKey() *rsa.PublicKey { return f.pub }

// DenyBadge makes future CapVerify calls for this badge fail, simulating
// a forged or revoked identity.
func (f *Fake) DenyBadge(badge uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deniedBadges[badge] = true
}

// SetHardwarePresence configures the result of the next HardwareAttest
// calls.
func (f *Fake) SetHardwarePresence(present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hwPresent = present
}

// FailNextTransfer makes the next CapTransfer call return an internal
// error, to exercise the Delegator's rollback path.
func (f *Fake) FailNextTransfer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTransfer = true
}

// Transfers returns a copy of all recorded CapTransfer calls.
func (f *Fake) Transfers() []TransferRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TransferRecord, len(f.transfers))
	copy(out, f.transfers)
	return out
}

// Mints returns a copy of all recorded CapMint calls.
func (f *Fake) Mints() []MintRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MintRecord, len(f.mints))
	copy(out, f.mints)
	return out
}

// Revokes returns a copy of all recorded CapRevoke calls.
func (f *Fake) Revokes() []RevokeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RevokeRecord, len(f.revokes))
	copy(out, f.revokes)
	return out
}

// DeletedSlots returns the slots destroyed via CapDelete, in order.
func (f *Fake) DeletedSlots() []Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Slot, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func (f *Fake) Retype(ctx context.Context, untypedSlot Slot, target CapType, destSlot Slot, sizeBits int) error {
	return nil
}

func (f *Fake) CapTransfer(ctx context.Context, srcSlot Slot, destCNode CNodeID, destSlot Slot, rights Rights) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		f.failTransfer = false
		return svcerr.Internal("fake kernel: forced transfer failure", nil)
	}
	f.transfers = append(f.transfers, TransferRecord{
		SrcSlot: srcSlot, DestCNode: destCNode, DestSlot: destSlot, Rights: rights,
	})
	return nil
}

func (f *Fake) CapMint(ctx context.Context, parentSlot Slot, rights Rights, pathDescriptor string) (Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMintErr != nil {
		err := f.failMintErr
		f.failMintErr = nil
		return SlotNone, err
	}
	slot := f.nextMintSlot
	f.nextMintSlot++
	f.mints = append(f.mints, MintRecord{ParentSlot: parentSlot, Rights: rights, Path: pathDescriptor, ResultSlot: slot})
	return slot, nil
}

func (f *Fake) CapRevoke(ctx context.Context, cnode CNodeID, slot Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevoke != nil {
		err := f.failRevoke
		f.failRevoke = nil
		return err
	}
	key := revokeKey{cnode: cnode, slot: slot}
	if f.revokedSlots[key] {
		return svcerr.NoCap("fake kernel: capability already revoked")
	}
	f.revokedSlots[key] = true
	f.revokes = append(f.revokes, RevokeRecord{CNode: cnode, Slot: slot})
	return nil
}

func (f *Fake) CapDelete(ctx context.Context, slot Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, slot)
	return nil
}

func (f *Fake) CapVerify(ctx context.Context, badge uint64, threadCap ThreadCap) (*BadgeAssertion, error) {
	f.mu.Lock()
	denied := f.deniedBadges[badge]
	priv := f.priv
	f.mu.Unlock()

	if denied {
		return nil, svcerr.AccessDenied("fake kernel: badge verification failed")
	}

	assertion := &BadgeAssertion{Badge: badge, ThreadCap: uint64(threadCap)}
	if priv != nil {
		token, err := SignBadgeAssertion(priv, badge, uint64(threadCap), time.Minute)
		if err != nil {
			return nil, svcerr.Internal("fake kernel: sign badge assertion", err)
		}
		assertion.Token = token
	}
	return assertion, nil
}

func (f *Fake) EndpointCreate(ctx context.Context) (Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextEndpoint++
	return EndpointFromRaw(f.nextEndpoint), nil
}

func (f *Fake) NamespaceRegister(ctx context.Context, ep Endpoint, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[name] = ep
	return nil
}

// EnqueueRecv schedules a message Recv will return next, in FIFO order.
// Used to drive the request loop end-to-end without a real transport.
func (f *Fake) EnqueueRecv(badge uint64, payload []byte) {
	f.recvQueue <- recvItem{badge: badge, payload: payload}
}

func (f *Fake) Recv(ctx context.Context, ep Endpoint) (uint64, []byte, error) {
	select {
	case item := <-f.recvQueue:
		return item.badge, item.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *Fake) Reply(ctx context.Context, badge uint64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(buf))
	copy(out, buf)
	f.replies = append(f.replies, ReplyRecord{Badge: badge, Buf: out})
	return nil
}

// Replies returns a copy of every Reply call recorded so far.
func (f *Fake) Replies() []ReplyRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReplyRecord, len(f.replies))
	copy(out, f.replies)
	return out
}

func (f *Fake) Call(ctx context.Context, ep Endpoint, buf []byte) ([]byte, error) {
	return nil, svcerr.Internal("fake kernel: Call not supported", nil)
}

func (f *Fake) HardwareAttest(ctx context.Context, flags AttestFlags) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hwPresent, nil
}

func (f *Fake) DebugPutChar(b byte) error { return nil }
