// Package policy implements the Policy Service's core data model: an
// unforgeable application identity, a bounded Clear-Name, and the
// time-bounded Grant Store.
package policy

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ApplicationIdentity wraps the kernel-stamped badge of an incoming
// message. Equality and hashing are bit-equality on the underlying token,
// which falls out for free from using it as a Go map key.
type ApplicationIdentity uint64

// FromBadge wraps a raw kernel badge as an ApplicationIdentity.
func FromBadge(badge uint64) ApplicationIdentity {
	return ApplicationIdentity(badge)
}

// Raw returns the underlying badge value, for logging only.
func (a ApplicationIdentity) Raw() uint64 { return uint64(a) }

// clearNameMaxBytes bounds Clear-Names to ≤ 31 bytes so the canonical
// form fits a 32-byte null-padded buffer.
const clearNameMaxBytes = 31

// ClearName is a human-meaningful capability identifier, e.g.
// "camera.use" or "files.home.write".
type ClearName string

// ErrClearNameTooLong is returned by NewClearName when the input exceeds
// the 31-byte bound.
var ErrClearNameTooLong = fmt.Errorf("clear name exceeds %d bytes", clearNameMaxBytes)

// NewClearName validates and returns a ClearName, or an error if the
// input is not valid UTF-8 or exceeds the byte bound.
func NewClearName(s string) (ClearName, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("clear name is not valid UTF-8")
	}
	if len(s) > clearNameMaxBytes {
		return "", ErrClearNameTooLong
	}
	return ClearName(s), nil
}

// Canonical returns the 32-byte null-padded wire form used for storage
// and byte-equality comparisons. Names longer than 31 bytes are
// truncated, matching the reference's silent-truncate behavior at the
// storage boundary (validation at the request boundary is expected to
// have already rejected them via NewClearName).
func (c ClearName) Canonical() [32]byte {
	var buf [32]byte
	b := []byte(c)
	n := len(b)
	if n > clearNameMaxBytes {
		n = clearNameMaxBytes
	}
	copy(buf[:n], b[:n])
	return buf
}

// CanonicalFromBytes decodes a 32-byte wire buffer back into a ClearName,
// stopping at the first null byte.
func CanonicalFromBytes(buf [32]byte) ClearName {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return ClearName(buf[:n])
}

// RiskLevel intentionally has no presence in this package: importing
// internal/risk here would create an import cycle, and policy.Grant only
// ever needs the resulting ExpiresAt, never the enum itself.

// Grant is a single (Clear-Name, expiry, active) tuple for one app.
type Grant struct {
	ClearName ClearName
	GrantedAt time.Time
	// ExpiresAt is the zero time.Time to denote a permanent grant,
	// matching Go idiom for "no deadline" rather than carrying a separate
	// boolean.
	ExpiresAt time.Time
	Active    bool
}

// Permanent reports whether this grant has no expiry.
func (g Grant) Permanent() bool { return g.ExpiresAt.IsZero() }

// Observable reports whether the grant currently counts as granted:
// active ∧ (expires_at = ∞ ∨ now < expires_at).
func (g Grant) Observable(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.Permanent() {
		return true
	}
	return now.Before(g.ExpiresAt)
}

// AuditAction enumerates the kinds of audit events the Grant Store
// records.
type AuditAction string

const (
	AuditGrant  AuditAction = "grant"
	AuditRevoke AuditAction = "revoke"
	AuditDeny   AuditAction = "deny"
	AuditQuery  AuditAction = "query"
)

// AuditEvent is an immutable audit log entry.
type AuditEvent struct {
	Timestamp time.Time
	Identity  ApplicationIdentity
	Action    AuditAction
	ClearName ClearName
	Success   bool
}
