// Package auditsink mirrors audit events to a Redis pub/sub channel for
// external monitors, wired via policy.GrantStore.OnAudit. Publishing is
// best-effort: a slow or unreachable Redis never blocks or fails the
// request the audit event describes.
package auditsink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
)

// RedisSink publishes AuditEvents to a Redis channel via a bounded
// internal queue, decoupling GrantStore's synchronous audit path from
// network latency.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *obslog.Logger
	queue   chan policy.AuditEvent
	done    chan struct{}
}

// NewRedisSink connects to addr (no I/O happens until Run is started;
// go-redis dials lazily on first command).
func NewRedisSink(addr, channel string, logger *obslog.Logger) *RedisSink {
	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		logger:  logger,
		queue:   make(chan policy.AuditEvent, 256),
		done:    make(chan struct{}),
	}
}

// Publish enqueues ev for delivery, dropping it with a warning log if the
// queue is full rather than applying backpressure to the request loop.
func (s *RedisSink) Publish(ev policy.AuditEvent) {
	select {
	case s.queue <- ev:
	default:
		s.logger.WithContext(context.Background()).Warn("audit redis queue full, dropping event")
	}
}

type wireEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  uint64    `json:"identity"`
	Action    string    `json:"action"`
	ClearName string    `json:"clear_name"`
	Success   bool      `json:"success"`
}

// Run drains the internal queue and publishes to Redis until ctx is
// cancelled.
func (s *RedisSink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			payload, err := json.Marshal(wireEvent{
				Timestamp: ev.Timestamp,
				Identity:  ev.Identity.Raw(),
				Action:    string(ev.Action),
				ClearName: string(ev.ClearName),
				Success:   ev.Success,
			})
			if err != nil {
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := s.client.Publish(pubCtx, s.channel, payload).Err(); err != nil {
				s.logger.WithContext(ctx).WithError(err).Debug("audit redis publish failed")
			}
			cancel()
		}
	}
}

// Close releases the Redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
