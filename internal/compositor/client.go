// Package compositor is the Policy Service's boundary with the
// un-hijackable consent-prompt surface: a separate, trusted process that
// owns the display and can show a permission dialog no application can
// spoof or dismiss on the user's behalf. Implementations: RemoteClient
// (production, Unix-domain transport) and Fake (tests).
package compositor

import "context"

// PromptRequest describes the consent dialog to show.
type PromptRequest struct {
	Ticket      string // google/uuid nonce correlating this prompt to its response
	Identity    uint64
	ClearName   string
	RiskLevel   string
	Description string // human-readable sentence shown in the dialog
}

// PromptResponse is the compositor's answer to a PromptRequest.
type PromptResponse struct {
	Approved bool
	Reason   string // "approved" | "denied" | "timeout" | "dismissed"
	Raw      []byte // raw JSON payload, for callers that want additional fields via gjson
}

// Client is the Policy Service's view of the compositor's consent API.
type Client interface {
	// RequestConsent blocks until the user answers the prompt, the
	// context is cancelled, or the compositor itself reports a timeout.
	RequestConsent(ctx context.Context, req PromptRequest) (*PromptResponse, error)
}
