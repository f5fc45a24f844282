// Package ipc implements the application-facing wire protocol: a
// tag-prefixed binary request and a kind-prefixed binary reply, carried
// over the IPC payloads internal/kernel's Recv/Reply exchange.
package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/kozo-systems/policyd/internal/policy"
)

// RequestTag identifies the kind of application request.
type RequestTag byte

const (
	TagCapability RequestTag = 0
	TagRevoke     RequestTag = 1
	TagQuery      RequestTag = 2
)

// ReplyKind identifies the kind of Policy Service reply.
type ReplyKind byte

const (
	ReplyGranted ReplyKind = 0
	ReplyDenied  ReplyKind = 1
	ReplyRevoked ReplyKind = 2
	ReplyList    ReplyKind = 3
	ReplyError   ReplyKind = 4
)

// Request is a decoded application request: one tag byte followed by a
// 32-byte canonical Clear-Name. Query additionally accepts a zero-length
// name (meaning "list everything this application holds").
type Request struct {
	Tag  RequestTag
	Name policy.ClearName
}

// minRequestLen is 1 tag byte + 32 canonical name bytes.
const minRequestLen = 1 + 32

// DecodeRequest parses a raw IPC payload into a Request.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < minRequestLen {
		return Request{}, fmt.Errorf("ipc: request too short: %d bytes", len(buf))
	}
	tag := RequestTag(buf[0])
	if tag != TagCapability && tag != TagRevoke && tag != TagQuery {
		return Request{}, fmt.Errorf("ipc: unknown request tag %d", tag)
	}
	var canonical [32]byte
	copy(canonical[:], buf[1:33])
	return Request{Tag: tag, Name: policy.CanonicalFromBytes(canonical)}, nil
}

// EncodeRequest is the inverse of DecodeRequest, used by tests that
// drive the request loop end-to-end.
func EncodeRequest(tag RequestTag, name policy.ClearName) []byte {
	buf := make([]byte, minRequestLen)
	buf[0] = byte(tag)
	canonical := name.Canonical()
	copy(buf[1:33], canonical[:])
	return buf
}

// EncodeSimpleReply builds a reply carrying only a kind byte, used for
// Granted, Denied, and Revoked.
func EncodeSimpleReply(kind ReplyKind) []byte {
	return []byte{byte(kind)}
}

// EncodeErrorReply builds an Error reply carrying the kernel-wire errno.
func EncodeErrorReply(errno int32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(ReplyError)
	binary.LittleEndian.PutUint32(buf[1:], uint32(errno))
	return buf
}

// EncodeListReply builds a List reply: kind byte, uint16 count, then
// count 32-byte canonical names. Used for Query responses enumerating
// everything an application currently holds.
func EncodeListReply(names []policy.ClearName) []byte {
	buf := make([]byte, 1+2+32*len(names))
	buf[0] = byte(ReplyList)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(names)))
	off := 3
	for _, n := range names {
		c := n.Canonical()
		copy(buf[off:off+32], c[:])
		off += 32
	}
	return buf
}

// DecodeListReply is the inverse of EncodeListReply, used by tests.
func DecodeListReply(buf []byte) ([]policy.ClearName, error) {
	if len(buf) < 3 || ReplyKind(buf[0]) != ReplyList {
		return nil, fmt.Errorf("ipc: not a list reply")
	}
	count := int(binary.LittleEndian.Uint16(buf[1:3]))
	want := 3 + 32*count
	if len(buf) < want {
		return nil, fmt.Errorf("ipc: truncated list reply: want %d bytes, got %d", want, len(buf))
	}
	names := make([]policy.ClearName, count)
	off := 3
	for i := 0; i < count; i++ {
		var canonical [32]byte
		copy(canonical[:], buf[off:off+32])
		names[i] = policy.CanonicalFromBytes(canonical)
		off += 32
	}
	return names, nil
}
