// Package requestloop wires every other component into the single
// cooperative event loop that owns the Grant Store. Exactly one
// goroutine calls into GrantStore's mutating methods; every other
// goroutine in the process (metrics, admin API, audit mirrors, the
// sweeper) only reads snapshots or pushes to channels.
package requestloop

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/kozo-systems/policyd/internal/compositor"
	"github.com/kozo-systems/policyd/internal/consent"
	"github.com/kozo-systems/policyd/internal/delegator"
	"github.com/kozo-systems/policyd/internal/identity"
	"github.com/kozo-systems/policyd/internal/ipc"
	"github.com/kozo-systems/policyd/internal/kernel"
	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
	"github.com/kozo-systems/policyd/internal/risk"
	"github.com/kozo-systems/policyd/internal/svcerr"
)

// Loop is the Policy Service's single request-handling goroutine.
type Loop struct {
	kernelClient kernel.Client
	endpoint     kernel.Endpoint

	verifier  *identity.Verifier
	store     *policy.GrantStore
	consent   *consent.Engine
	delegator *delegator.Delegator
	logger    *obslog.Logger

	rateBurst      int
	ratePerSecond  float64
	limiters       map[policy.ApplicationIdentity]*rate.Limiter

	// sweepTick, when set, triggers a GrantStore.Sweep on every tick
	// without leaving the single-goroutine discipline: the sweeper
	// package only pushes to this channel, it never calls Sweep itself.
	sweepTick <-chan time.Time
}

// Config bundles the Loop's dependencies.
type Config struct {
	KernelClient     kernel.Client
	CompositorClient compositor.Client
	Endpoint         kernel.Endpoint
	Store            *policy.GrantStore
	Logger           *obslog.Logger
	KernelPubKeyPEM  []byte
	ConsentTimeoutOf consent.TimeoutFunc
	RateLimitBurst   int
	RateLimitPerSec  float64
	SweepTick        <-chan time.Time
}

// New constructs a Loop from cfg. Identity verification trusts the
// kernel's cap_verify result alone if no kernel public key is supplied
// or it fails to parse.
func New(cfg Config) *Loop {
	var pubKey *rsa.PublicKey
	if len(cfg.KernelPubKeyPEM) > 0 {
		if key, err := jwt.ParseRSAPublicKeyFromPEM(cfg.KernelPubKeyPEM); err == nil {
			pubKey = key
		} else {
			cfg.Logger.WithContext(context.Background()).WithError(err).Warn("failed to parse kernel JWT public key, badge assertions disabled")
		}
	}

	return &Loop{
		kernelClient:  cfg.KernelClient,
		endpoint:      cfg.Endpoint,
		verifier:      identity.NewVerifier(cfg.KernelClient, pubKey),
		store:         cfg.Store,
		consent:       consent.New(cfg.KernelClient, cfg.CompositorClient, cfg.ConsentTimeoutOf, cfg.Logger),
		delegator:     delegator.New(cfg.KernelClient),
		logger:        cfg.Logger,
		rateBurst:     cfg.RateLimitBurst,
		ratePerSecond: cfg.RateLimitPerSec,
		limiters:      make(map[policy.ApplicationIdentity]*rate.Limiter),
		sweepTick:     cfg.SweepTick,
	}
}

func (l *Loop) limiterFor(id policy.ApplicationIdentity) *rate.Limiter {
	if lim, ok := l.limiters[id]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.ratePerSecond), l.rateBurst)
	l.limiters[id] = lim
	return lim
}

// Run drives the loop until ctx is cancelled. Errors (a malformed
// request, a denied badge, a failed kernel Recv) are logged and the loop
// continues; only ctx cancellation ends it.
func (l *Loop) Run(ctx context.Context) error {
	reqCh := make(chan recvResult, 1)
	go l.recvPump(ctx, reqCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.sweepTick:
			swept := l.store.Sweep()
			if swept > 0 {
				l.logger.WithContext(ctx).WithField("swept", swept).Debug("expired grants swept")
			}

		case res, ok := <-reqCh:
			if !ok {
				return nil
			}
			if res.err != nil {
				l.logger.WithContext(ctx).WithError(res.err).Warn("kernel recv failed")
				continue
			}
			l.handle(ctx, res.badge, res.payload)
		}
	}
}

type recvResult struct {
	badge   uint64
	payload []byte
	err     error
}

// recvPump isolates the blocking kernel Recv call in its own goroutine
// so Run's select can also service the sweep ticker; it never touches
// the Grant Store.
func (l *Loop) recvPump(ctx context.Context, out chan<- recvResult) {
	defer close(out)
	for {
		badge, payload, err := l.kernelClient.Recv(ctx, l.endpoint)
		select {
		case out <- recvResult{badge: badge, payload: payload, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && ctx.Err() != nil {
			return
		}
	}
}

func (l *Loop) handle(ctx context.Context, badge uint64, payload []byte) {
	req, err := ipc.DecodeRequest(payload)
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Warn("malformed request")
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeErrorReply(int32(svcerr.KernelInvalid)))
		return
	}

	id, err := l.verifier.Verify(ctx, badge, kernel.ThreadCap(badge))
	if err != nil {
		l.logger.LogSecurityEvent(ctx, "badge_verification_failed", map[string]interface{}{"badge": badge})
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeErrorReply(int32(svcerr.KernelAccessDenied)))
		return
	}

	if !l.limiterFor(id).Allow() {
		l.logger.LogSecurityEvent(ctx, "rate_limited", map[string]interface{}{"identity": id.Raw()})
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeErrorReply(int32(svcerr.KernelAccessDenied)))
		return
	}

	switch req.Tag {
	case ipc.TagCapability:
		l.handleCapability(ctx, badge, id, req.Name)
	case ipc.TagRevoke:
		l.handleRevoke(ctx, badge, id, req.Name)
	case ipc.TagQuery:
		l.handleQuery(ctx, badge, id, req.Name)
	}
}

func (l *Loop) handleCapability(ctx context.Context, badge uint64, id policy.ApplicationIdentity, name policy.ClearName) {
	if l.store.IsGranted(id, name) {
		if err := l.delegator.Delegate(ctx, id, name); err != nil {
			l.replyError(ctx, badge, err)
			return
		}
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyGranted))
		return
	}

	level := risk.Classify(string(name))
	approved, err := l.consent.Request(ctx, id, name, level)
	if err != nil {
		l.replyError(ctx, badge, err)
		return
	}
	if !approved {
		l.store.LogDenial(id, name)
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyDenied))
		return
	}

	var duration *time.Duration
	if lifetime := level.DefaultLifetime(); lifetime > 0 {
		duration = &lifetime
	}
	if err := l.store.Grant(id, name, duration); err != nil {
		l.replyError(ctx, badge, err)
		return
	}

	if err := l.delegator.Delegate(ctx, id, name); err != nil {
		l.store.Revoke(id, name)
		l.replyError(ctx, badge, err)
		return
	}

	if level.SingleUse() {
		l.store.Revoke(id, name)
	}

	_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyGranted))
}

func (l *Loop) handleRevoke(ctx context.Context, badge uint64, id policy.ApplicationIdentity, name policy.ClearName) {
	if err := l.delegator.Revoke(ctx, id, name); err != nil {
		l.replyError(ctx, badge, err)
		return
	}
	l.store.Revoke(id, name)
	_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyRevoked))
}

func (l *Loop) handleQuery(ctx context.Context, badge uint64, id policy.ApplicationIdentity, name policy.ClearName) {
	if name == "" {
		names := l.store.ListGranted(id)
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeListReply(names))
		return
	}
	if l.store.IsGranted(id, name) {
		_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyGranted))
		return
	}
	_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeSimpleReply(ipc.ReplyDenied))
}

func (l *Loop) replyError(ctx context.Context, badge uint64, err error) {
	l.logger.WithContext(ctx).WithError(err).Error("request handling failed")
	errno := int32(svcerr.KernelInvalid)
	if pe := svcerr.As(err); pe != nil {
		errno = int32(pe.KernelCode())
	}
	_ = l.kernelClient.Reply(ctx, badge, ipc.EncodeErrorReply(errno))
}
