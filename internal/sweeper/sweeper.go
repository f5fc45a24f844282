// Package sweeper periodically ticks the Grant Store's expiry cleanup.
// It never calls GrantStore.Sweep directly — that would violate the
// single-goroutine-mutates-the-store discipline — it only pushes onto a
// channel the request loop's select reads from.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kozo-systems/policyd/internal/obslog"
)

// StatsFunc reports a point-in-time snapshot for the hourly summary log.
type StatsFunc func() (activeGrants int)

// Ticker owns the sub-minute expiry sweep and a minute-granularity cron
// schedule for housekeeping log lines.
type Ticker struct {
	cron   *cron.Cron
	tickCh chan time.Time
	logger *obslog.Logger
}

// NewTicker builds a Ticker. The expiry sweep itself runs on a plain
// time.Ticker (see Run) since robfig/cron's minimum granularity is one
// minute and bounded grant stores in tests sweep far more often than
// that; cron is reserved for the coarser summary job started by
// StartSummaryJob.
func NewTicker(logger *obslog.Logger) *Ticker {
	return &Ticker{
		tickCh: make(chan time.Time, 1),
		logger: logger,
		cron:   cron.New(),
	}
}

// Channel returns the tick channel for the request loop's select.
func (t *Ticker) Channel() <-chan time.Time { return t.tickCh }

// StartSummaryJob schedules an hourly log line reporting the Grant
// Store's active grant count, read via stats (a closure over
// GrantStore.ActiveGrantCount, which is safe to call from any goroutine).
func (t *Ticker) StartSummaryJob(stats StatsFunc) error {
	_, err := t.cron.AddFunc("@hourly", func() {
		t.logger.WithContext(context.Background()).WithField("active_grants", stats()).Info("hourly grant store summary")
	})
	if err != nil {
		return err
	}
	t.cron.Start()
	return nil
}

// StopSummaryJob stops the cron scheduler, blocking until its running
// job (if any) completes.
func (t *Ticker) StopSummaryJob() {
	<-t.cron.Stop().Done()
}

// Run starts firing ticks at the given interval until ctx is cancelled.
// Interval granularity below one second is rounded up to one second.
func (t *Ticker) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case t.tickCh <- now:
			default:
				t.logger.WithContext(ctx).Debug("sweep tick dropped, loop still processing previous tick")
			}
		}
	}
}
