// Package consent implements the Consent Engine: the synchronous
// user-approval step between a classified request and delegation. It
// owns the per-risk timeout budget and, for Critical-risk requests, the
// hardware-presence gate that must pass before the user is ever shown a
// prompt at all.
package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/kozo-systems/policyd/internal/compositor"
	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/risk"
	"github.com/kozo-systems/policyd/internal/svcerr"
)

// TimeoutFunc resolves the consent budget for a risk level; normally
// config.Config.ConsentTimeout bound to an integer cast of risk.Level.
type TimeoutFunc func(level risk.Level) time.Duration

// Engine drives the compositor's consent prompt.
type Engine struct {
	kernelClient kernel.Client
	compositor   compositor.Client
	timeoutOf    TimeoutFunc
	logger       *obslog.Logger
}

// New constructs a consent Engine.
func New(kernelClient kernel.Client, compositorClient compositor.Client, timeoutOf TimeoutFunc, logger *obslog.Logger) *Engine {
	return &Engine{kernelClient: kernelClient, compositor: compositorClient, timeoutOf: timeoutOf, logger: logger}
}

// Request shows the user a consent prompt for name at the given risk
// level and blocks for at most the configured timeout. A Critical
// request that fails the hardware-presence check is denied without ever
// reaching the compositor: the chassis signal or security-key touch is
// a precondition for showing the dialog, not an alternative to it.
func (e *Engine) Request(ctx context.Context, identity policy.ApplicationIdentity, name policy.ClearName, level risk.Level) (bool, error) {
	if level == risk.Critical {
		present, err := e.kernelClient.HardwareAttest(ctx, 0)
		if err != nil {
			return false, svcerr.Wrap(svcerr.CodeInternal, "consent: hardware attestation failed", err)
		}
		if !present {
			e.logger.LogSecurityEvent(ctx, "critical_consent_without_presence", map[string]interface{}{
				"identity":   identity.Raw(),
				"clear_name": string(name),
			})
			return false, nil
		}
	}

	ticket := uuid.NewString()
	timeout := e.timeoutOf(level)

	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.compositor.RequestConsent(promptCtx, compositor.PromptRequest{
		Ticket:      ticket,
		Identity:    identity.Raw(),
		ClearName:   string(name),
		RiskLevel:   level.String(),
		Description: fmt.Sprintf("Allow this application to use %q?", name),
	})
	if err != nil {
		e.logger.LogConsent(ctx, string(name), level.String(), false, timeout)
		return false, nil
	}

	approved := resp.Approved
	if len(resp.Raw) > 0 && gjson.GetBytes(resp.Raw, "approved").Exists() {
		approved = gjson.GetBytes(resp.Raw, "approved").Bool()
	}

	e.logger.LogConsent(ctx, string(name), level.String(), approved, timeout)
	return approved, nil
}
