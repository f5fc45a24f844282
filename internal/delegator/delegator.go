// Package delegator turns an approved, resolved Clear-Name into an
// actual capability transfer into the requesting application's own
// CNode. It is the only component that ever attenuates rights or mints
// a child capability.
package delegator

import (
	"context"
	"strings"

	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/resolver"
	"github.com/kozo-systems/policyd/internal/svcerr"
)

// APPDelegationSlot is the fixed, well-known slot in every application's
// CNode where the Policy Service deposits a granted capability.
const APPDelegationSlot = kernel.Slot(7)

// Delegator performs capability transfer for approved grants.
type Delegator struct {
	kernelClient kernel.Client
}

// New constructs a Delegator.
func New(kernelClient kernel.Client) *Delegator {
	return &Delegator{kernelClient: kernelClient}
}

// masterSlots maps a resolved system slot to the Policy Service's own
// master capability slot holding the full-rights original.
var masterSlots = map[resolver.Slot]kernel.Slot{
	resolver.SlotCamera:        kernel.Slot(1),
	resolver.SlotNetOutbound:   kernel.Slot(2),
	resolver.SlotNetLocal:      kernel.Slot(3),
	resolver.SlotFSHome:        kernel.Slot(4),
	resolver.SlotFSSystem:      kernel.Slot(5),
	resolver.SlotProcessSpawn:  kernel.Slot(6),
	resolver.SlotProcessSignal: kernel.Slot(8),
	resolver.SlotAudioOut:      kernel.Slot(9),
	resolver.SlotAudioIn:       kernel.Slot(10),
	resolver.SlotGPURender:     kernel.Slot(11),
}

// attenuatedRights computes the minimal right set a Clear-Name needs,
// by lexical suffix: ".write"/".use" get READ|WRITE, ".grant" gets
// READ|WRITE|GRANT, ".map" gets READ|MAP, everything else is read-only.
func attenuatedRights(name string) kernel.Rights {
	switch {
	case strings.HasSuffix(name, ".write"), strings.HasSuffix(name, ".use"):
		return kernel.RightRead | kernel.RightWrite
	case strings.HasSuffix(name, ".grant"):
		return kernel.RightRead | kernel.RightWrite | kernel.RightGrant
	case strings.HasSuffix(name, ".map"):
		return kernel.RightRead | kernel.RightMap
	default:
		return kernel.RightRead
	}
}

// pathRestriction extracts the path-prefix restriction to bake into a
// minted filesystem capability, e.g. "files.home.write" -> "/home/user".
// Every "files." name gets one ("/" when no narrower prefix applies);
// names with no filesystem prefix return "".
func pathRestriction(name string) string {
	switch {
	case !strings.HasPrefix(name, "files."):
		return ""
	case strings.HasPrefix(name, "files.home"):
		return "/home/user"
	case strings.HasPrefix(name, "files.system"):
		return "/etc"
	case strings.HasPrefix(name, "files.temp"):
		return "/tmp"
	default:
		return "/"
	}
}

// Delegate performs the five-step transfer: resolve, attenuate, mint (for
// path-scoped filesystem names), transfer into the application's CNode,
// and roll back the minted intermediate if the transfer fails.
func (d *Delegator) Delegate(ctx context.Context, identity policy.ApplicationIdentity, name policy.ClearName) error {
	slot, err := resolver.Resolve(string(name))
	if err != nil {
		return err
	}

	masterSlot, ok := masterSlots[slot]
	if !ok {
		return svcerr.Internal("delegator: resolved slot has no master capability", nil)
	}

	rights := attenuatedRights(string(name))
	destCNode := kernel.CNodeID(identity.Raw())

	path := pathRestriction(string(name))
	if path == "" {
		if err := d.kernelClient.CapTransfer(ctx, masterSlot, destCNode, APPDelegationSlot, rights); err != nil {
			return err
		}
		return nil
	}

	mintedSlot, err := d.kernelClient.CapMint(ctx, masterSlot, rights, path)
	if err != nil {
		return err
	}

	if err := d.kernelClient.CapTransfer(ctx, mintedSlot, destCNode, APPDelegationSlot, rights); err != nil {
		if delErr := d.kernelClient.CapDelete(ctx, mintedSlot); delErr != nil {
			return svcerr.Wrap(svcerr.CodeInternal, "delegator: transfer failed and rollback of minted capability also failed", delErr)
		}
		return err
	}

	return nil
}

// Revoke destroys the application's delegated capability for name. A
// kernel NoCap result (nothing to revoke) is treated as success: revoke
// is idempotent.
func (d *Delegator) Revoke(ctx context.Context, identity policy.ApplicationIdentity, name policy.ClearName) error {
	destCNode := kernel.CNodeID(identity.Raw())
	err := d.kernelClient.CapRevoke(ctx, destCNode, APPDelegationSlot)
	if err != nil && svcerr.Is(err, svcerr.CodeNoCap) {
		return nil
	}
	return err
}
