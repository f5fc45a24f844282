// Package resolver implements the Name Resolver: Clear-Name to system
// capability slot. Forbidden entries are rejected even on user
// approval — policy fixed in code, not user-overridable — so this is a
// fixed table, not a generic rule engine.
package resolver

import "github.com/kozo-systems/policyd/internal/svcerr"

// Slot identifies one of the Policy Service's own master capability
// slots, given a symbolic name for logging and tests.
type Slot int

const (
	SlotNone Slot = iota
	SlotCamera
	SlotNetOutbound
	SlotNetLocal
	SlotFSHome
	SlotFSSystem
	SlotProcessSpawn
	SlotProcessSignal
	SlotAudioOut
	SlotAudioIn
	SlotGPURender
)

func (s Slot) String() string {
	switch s {
	case SlotCamera:
		return "SYSTEM_CAMERA"
	case SlotNetOutbound:
		return "SYSTEM_NET_OUTBOUND"
	case SlotNetLocal:
		return "SYSTEM_NET_LOCAL"
	case SlotFSHome:
		return "SYSTEM_FS_HOME"
	case SlotFSSystem:
		return "SYSTEM_FS_SYSTEM"
	case SlotProcessSpawn:
		return "SYSTEM_PROCESS_SPAWN"
	case SlotProcessSignal:
		return "SYSTEM_PROCESS_SIGNAL"
	case SlotAudioOut:
		return "SYSTEM_AUDIO_OUT"
	case SlotAudioIn:
		return "SYSTEM_AUDIO_IN"
	case SlotGPURender:
		return "SYSTEM_GPU_RENDER"
	default:
		return "NONE"
	}
}

// forbidden names are rejected with AccessDenied even though their
// domain prefix is otherwise recognized: the Policy Service refuses to
// hold a master capability for them at all.
var forbidden = map[string]struct{}{
	"network.inbound":   {},
	"files.system.write": {},
}

var table = map[string]Slot{
	"camera.use":         SlotCamera,
	"camera.record":      SlotCamera,
	"network.outbound":   SlotNetOutbound,
	"network.local":      SlotNetLocal,
	"files.home.read":    SlotFSHome,
	"files.home.write":   SlotFSHome,
	"files.system.read":  SlotFSSystem,
	"process.spawn":      SlotProcessSpawn,
	"process.signal":     SlotProcessSignal,
	"audio.in":           SlotAudioIn,
	"audio.out":          SlotAudioOut,
	"graphics.render":    SlotGPURender,
	"gpu.compute":        SlotGPURender,
}

// Resolve maps a Clear-Name to the Policy Service's own capability slot,
// or returns AccessDenied for names the policy forbids outright, or
// Invalid for names it has never heard of.
func Resolve(name string) (Slot, error) {
	if _, ok := forbidden[name]; ok {
		return SlotNone, svcerr.AccessDenied("clear name is forbidden by policy: " + name)
	}
	slot, ok := table[name]
	if !ok {
		return SlotNone, svcerr.Invalid("unknown clear name: " + name)
	}
	return slot, nil
}
