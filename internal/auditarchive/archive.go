// Package auditarchive provides an optional durable Postgres mirror of
// the Grant Store's audit trail, for deployments that need audit
// retention beyond the in-memory ring buffer's bound.
package auditarchive

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
)

// Archive writes audit events to Postgres via a bounded queue, matching
// internal/auditsink's best-effort delivery discipline.
type Archive struct {
	db      *sqlx.DB
	logger  *obslog.Logger
	queue   chan policy.AuditEvent
}

// Open connects to dsn and runs pending migrations from migrationsPath
// (a "file://..." URL, typically "file://internal/auditarchive/migrations").
func Open(dsn, migrationsPath string, logger *obslog.Logger) (*Archive, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditarchive: connect: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("auditarchive: migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("auditarchive: migration setup: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, fmt.Errorf("auditarchive: migrate up: %w", err)
	}

	return &Archive{db: db, logger: logger, queue: make(chan policy.AuditEvent, 256)}, nil
}

// Publish enqueues ev for durable storage, dropping it if the queue is
// full rather than blocking the Grant Store's audit path.
func (a *Archive) Publish(ev policy.AuditEvent) {
	select {
	case a.queue <- ev:
	default:
		a.logger.WithContext(context.Background()).Warn("audit archive queue full, dropping event")
	}
}

// Run drains the queue into Postgres until ctx is cancelled.
func (a *Archive) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			a.insert(ctx, ev)
		}
	}
}

func (a *Archive) insert(ctx context.Context, ev policy.AuditEvent) {
	insertCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := a.db.ExecContext(insertCtx,
		`INSERT INTO audit_events (occurred_at, identity, action, clear_name, success) VALUES ($1, $2, $3, $4, $5)`,
		ev.Timestamp, ev.Identity.Raw(), string(ev.Action), string(ev.ClearName), ev.Success,
	)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Debug("audit archive insert failed")
	}
}

// Tail returns the most recent n audit events, newest first, for
// operators reading the durable history.
func (a *Archive) Tail(ctx context.Context, n int) ([]TailRow, error) {
	rows := []TailRow{}
	err := a.db.SelectContext(ctx, &rows,
		`SELECT occurred_at, identity, action, clear_name, success FROM audit_events ORDER BY occurred_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("auditarchive: tail query: %w", err)
	}
	return rows, nil
}

// TailRow is one row of a Tail query result.
type TailRow struct {
	OccurredAt time.Time `db:"occurred_at"`
	Identity   uint64    `db:"identity"`
	Action     string    `db:"action"`
	ClearName  string    `db:"clear_name"`
	Success    bool      `db:"success"`
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	return a.db.Close()
}
