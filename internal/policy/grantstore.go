package policy

import (
	"sync"
	"time"

	"github.com/kozo-systems/policyd/internal/svcerr"
)

// appEntry is one application's grant set, insertion-ordered with no
// duplicate Clear-Names.
type appEntry struct {
	identity ApplicationIdentity
	grants   []Grant // len <= maxGrantsPerApp
}

// GrantStore is the Policy Service's bounded in-memory grant database
// plus append-only audit ring buffer.
//
// GrantStore has no internal mutex guarding apps by design: the Request
// Loop is the only goroutine that calls its mutating methods. The mutex
// present here guards only the audit ring against the handful of other
// goroutines (admin API, audit archive) that call Recent concurrently;
// it is never held across a mutation of apps.
type GrantStore struct {
	maxApps         int
	maxGrantsPerApp int

	clock Clock

	apps []*appEntry // len <= maxApps, sparse via nil-free compaction

	auditMu  sync.Mutex
	ring     []AuditEvent // fixed-size ring, len == auditRingSize once warm
	auditCap int
	head     int

	// onAudit, when set, receives a copy of every audit event as it is
	// written. Used by internal/auditsink and internal/auditarchive to
	// mirror events without holding the store's invariants hostage to a
	// slow downstream — it is always called synchronously but must never
	// block (callers use buffered channels internally).
	onAudit func(AuditEvent)
}

// NewGrantStore constructs an empty store bounded by n apps, k grants per
// app, and an m-slot audit ring.
func NewGrantStore(n, k, m int, clock Clock) *GrantStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &GrantStore{
		maxApps:         n,
		maxGrantsPerApp: k,
		clock:           clock,
		apps:            make([]*appEntry, 0, n),
		auditCap:        m,
	}
}

// OnAudit registers a callback invoked synchronously after every audit
// write. Callbacks registered by successive calls are all invoked, in
// registration order. Must be set before the store is used concurrently
// with readers of Recent.
func (s *GrantStore) OnAudit(fn func(AuditEvent)) {
	prev := s.onAudit
	if prev == nil {
		s.onAudit = fn
		return
	}
	s.onAudit = func(ev AuditEvent) {
		prev(ev)
		fn(ev)
	}
}

func (s *GrantStore) findApp(id ApplicationIdentity) *appEntry {
	for _, e := range s.apps {
		if e.identity == id {
			return e
		}
	}
	return nil
}

func (s *GrantStore) findOrCreateApp(id ApplicationIdentity) (*appEntry, error) {
	if e := s.findApp(id); e != nil {
		return e, nil
	}
	if len(s.apps) >= s.maxApps {
		return nil, svcerr.NoMem("grant store: no room for new application entry")
	}
	e := &appEntry{identity: id, grants: make([]Grant, 0, s.maxGrantsPerApp)}
	s.apps = append(s.apps, e)
	return e, nil
}

// IsGranted reports whether name is currently granted to identity,
// refreshing now and writing a Query audit event.
func (s *GrantStore) IsGranted(identity ApplicationIdentity, name ClearName) bool {
	now := s.clock.Now()
	defer s.audit(identity, AuditQuery, name, true)

	entry := s.findApp(identity)
	if entry == nil {
		return false
	}
	canonical := name.Canonical()
	for i := range entry.grants {
		if entry.grants[i].ClearName.Canonical() == canonical {
			return entry.grants[i].Observable(now)
		}
	}
	return false
}

// IsExpired is the negation of IsGranted's liveness check; a missing
// entry or missing grant counts as expired.
func (s *GrantStore) IsExpired(identity ApplicationIdentity, name ClearName) bool {
	now := s.clock.Now()
	entry := s.findApp(identity)
	if entry == nil {
		return true
	}
	canonical := name.Canonical()
	for i := range entry.grants {
		if entry.grants[i].ClearName.Canonical() == canonical {
			g := entry.grants[i]
			if !g.Active {
				return true
			}
			if g.Permanent() {
				return false
			}
			return !now.Before(g.ExpiresAt)
		}
	}
	return true
}

// Grant records a new grant, or renews an existing one by Clear-Name.
// duration == nil means permanent (expires_at = ∞).
func (s *GrantStore) Grant(identity ApplicationIdentity, name ClearName, duration *time.Duration) error {
	now := s.clock.Now()

	entry, err := s.findOrCreateApp(identity)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if duration != nil {
		expiresAt = now.Add(*duration)
	}

	canonical := name.Canonical()
	for i := range entry.grants {
		if entry.grants[i].ClearName.Canonical() == canonical {
			entry.grants[i].ExpiresAt = expiresAt
			entry.grants[i].Active = true
			s.audit(identity, AuditGrant, name, true)
			return nil
		}
	}

	if len(entry.grants) >= s.maxGrantsPerApp {
		return svcerr.NoMem("grant store: no room for new grant on this application")
	}

	entry.grants = append(entry.grants, Grant{
		ClearName: name,
		GrantedAt: now,
		ExpiresAt: expiresAt,
		Active:    true,
	})
	s.audit(identity, AuditGrant, name, true)
	return nil
}

// Revoke tombstones a live grant by Clear-Name. A missing entry or
// missing grant is a no-op (idempotent).
func (s *GrantStore) Revoke(identity ApplicationIdentity, name ClearName) {
	entry := s.findApp(identity)
	if entry == nil {
		return
	}
	canonical := name.Canonical()
	for i := range entry.grants {
		if entry.grants[i].Active && entry.grants[i].ClearName.Canonical() == canonical {
			entry.grants[i].Active = false
			s.audit(identity, AuditRevoke, name, true)
			return
		}
	}
}

// LogDenial appends a Deny audit event for a request the Consent Engine
// rejected.
func (s *GrantStore) LogDenial(identity ApplicationIdentity, name ClearName) {
	s.audit(identity, AuditDeny, name, false)
}

// Sweep tombstones every grant that has passed its expiry without having
// been explicitly revoked. It changes no externally observable answer
// from IsGranted/IsExpired (both already treat an expired-but-active
// grant as not granted); it only frees slots for reuse sooner.
func (s *GrantStore) Sweep() int {
	now := s.clock.Now()
	swept := 0
	for _, e := range s.apps {
		for i := range e.grants {
			g := &e.grants[i]
			if g.Active && !g.Permanent() && !now.Before(g.ExpiresAt) {
				g.Active = false
				swept++
			}
		}
	}
	return swept
}

// ListGranted returns every Clear-Name currently observable for
// identity, for the Query request's "list everything" form. The result
// order matches insertion order; it carries no further guarantee.
func (s *GrantStore) ListGranted(identity ApplicationIdentity) []ClearName {
	now := s.clock.Now()
	defer s.audit(identity, AuditQuery, "", true)

	entry := s.findApp(identity)
	if entry == nil {
		return nil
	}
	var out []ClearName
	for i := range entry.grants {
		if entry.grants[i].Observable(now) {
			out = append(out, entry.grants[i].ClearName)
		}
	}
	return out
}

// ActiveGrantCount returns the number of currently-observable grants
// across all apps, used by internal/metrics for a gauge.
func (s *GrantStore) ActiveGrantCount() int {
	now := s.clock.Now()
	count := 0
	for _, e := range s.apps {
		for i := range e.grants {
			if e.grants[i].Observable(now) {
				count++
			}
		}
	}
	return count
}

// Recent returns a copy of the most recent count audit events, oldest
// first, for an external monitor. Safe to call concurrently with the loop.
func (s *GrantStore) Recent(count int) []AuditEvent {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	n := len(s.ring)
	if count > n {
		count = n
	}
	if count <= 0 {
		return nil
	}
	out := make([]AuditEvent, count)
	// ring is stored oldest-to-newest once warm via ring semantics; head
	// points at the next write position, i.e. the oldest surviving entry
	// once the ring has wrapped.
	if n < s.auditCap {
		copy(out, s.ring[n-count:n])
		return out
	}
	for i := 0; i < count; i++ {
		idx := (s.head - count + i + len(s.ring)) % len(s.ring)
		out[i] = s.ring[idx]
	}
	return out
}

func (s *GrantStore) audit(identity ApplicationIdentity, action AuditAction, name ClearName, success bool) {
	ev := AuditEvent{
		Timestamp: s.clock.Now(),
		Identity:  identity,
		Action:    action,
		ClearName: name,
		Success:   success,
	}

	s.auditMu.Lock()
	if s.auditCap <= 0 {
		s.auditMu.Unlock()
		return
	}
	if len(s.ring) < s.auditCap {
		s.ring = append(s.ring, ev)
		s.head = len(s.ring) % s.auditCap
	} else {
		s.ring[s.head] = ev
		s.head = (s.head + 1) % s.auditCap
	}
	s.auditMu.Unlock()

	// Best-effort: audit mirrors never fail the request.
	if s.onAudit != nil {
		s.onAudit(ev)
	}
}
