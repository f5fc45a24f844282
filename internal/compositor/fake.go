package compositor

import (
	"context"
	"sync"
)

// Decision is a canned answer the Fake returns for a specific ticket, or
// as the default for tickets with no specific entry.
type Decision struct {
	Approved bool
	Reason   string
	Delay    bool // if true, RequestConsent blocks until ctx is cancelled
}

// Fake is an in-memory compositor.Client for tests.
type Fake struct {
	mu        sync.Mutex
	decisions map[string]Decision
	defaultD  Decision
	requests  []PromptRequest
}

// NewFake constructs a Fake that approves every prompt by default.
func NewFake() *Fake {
	return &Fake{
		decisions: map[string]Decision{},
		defaultD:  Decision{Approved: true, Reason: "approved"},
	}
}

// SetDefault changes the fallback decision for tickets with no specific
// entry registered via Decide.
func (f *Fake) SetDefault(d Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultD = d
}

// Decide registers the answer to give for one specific ticket.
func (f *Fake) Decide(ticket string, d Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions[ticket] = d
}

// Requests returns a copy of every PromptRequest received so far.
func (f *Fake) Requests() []PromptRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PromptRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *Fake) RequestConsent(ctx context.Context, req PromptRequest) (*PromptResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	d, ok := f.decisions[req.Ticket]
	if !ok {
		d = f.defaultD
	}
	f.mu.Unlock()

	if d.Delay {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return &PromptResponse{Approved: d.Approved, Reason: d.Reason}, nil
}
