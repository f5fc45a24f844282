package compositor

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/kozo-systems/policyd/internal/svcerr"
)

// RemoteClient is the production compositor.Client: one JSON request/
// response line per prompt over a Unix domain socket to the compositor
// process. Unlike RemoteClient in internal/kernel, each RequestConsent
// call dials its own connection — prompts are infrequent and long-lived
// (bounded by the per-risk consent timeout, not by socket keep-alive),
// so there is no benefit to a shared persistent connection and every
// benefit to isolating one slow or stuck prompt from the next.
type RemoteClient struct {
	socketPath string
	dialTO     time.Duration

	mu sync.Mutex
}

// NewRemoteClient returns a RemoteClient dialing socketPath per request.
func NewRemoteClient(socketPath string) *RemoteClient {
	return &RemoteClient{socketPath: socketPath, dialTO: 3 * time.Second}
}

type wireRequest struct {
	Ticket      string `json:"ticket"`
	Identity    uint64 `json:"identity"`
	ClearName   string `json:"clear_name"`
	RiskLevel   string `json:"risk_level"`
	Description string `json:"description"`
}

type wireResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

func (c *RemoteClient) RequestConsent(ctx context.Context, req PromptRequest) (*PromptResponse, error) {
	d := net.Dialer{Timeout: c.dialTO}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, svcerr.Internal("compositor: dial", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	wreq := wireRequest{
		Ticket:      req.Ticket,
		Identity:    req.Identity,
		ClearName:   req.ClearName,
		RiskLevel:   req.RiskLevel,
		Description: req.Description,
	}
	if err := json.NewEncoder(conn).Encode(wreq); err != nil {
		return nil, svcerr.Internal("compositor: write prompt", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, svcerr.Internal("compositor: read prompt response", err)
	}

	var wresp wireResponse
	if err := json.Unmarshal(line, &wresp); err != nil {
		return nil, svcerr.Internal("compositor: decode prompt response", err)
	}
	return &PromptResponse{Approved: wresp.Approved, Reason: wresp.Reason, Raw: line}, nil
}
