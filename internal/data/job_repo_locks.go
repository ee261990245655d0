package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/molcalc/chemjobs/internal/data/pgxutil"
)

// Advisory lock namespace. Two-arg pg_try_advisory_lock(major, minor) keeps our keys
// clear of other applications sharing the database.
const (
	advisoryLockChemjobsMajor = 4100
	advisoryLockReconcileTick = 1
)

// TickLock serialises reconciliation ticks across replicas with a session-level
// Postgres advisory lock held on a dedicated connection for the whole tick.
type TickLock struct {
	repo *JobRepo
}

// NewTickLock returns a TickLock sharing the repository's pool.
func NewTickLock(repo *JobRepo) *TickLock {
	return &TickLock{repo: repo}
}

// WithTickLock runs fn while holding the tick lock. It returns false without
// calling fn when another replica holds it. The lock dies with the session, so a
// crashed replica never strands it.
func (l *TickLock) WithTickLock(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	ran := false
	err := pgxutil.WithPgxConn(ctx, l.repo.DB, func(conn *pgx.Conn) error {
		var locked bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1, $2)",
			advisoryLockChemjobsMajor, advisoryLockReconcileTick).Scan(&locked); err != nil {
			return fmt.Errorf("acquire tick lock: %w", err)
		}
		if !locked {
			return nil
		}
		defer func() {
			// Unlock even when ctx is already cancelled. If that fails the session is closed
			// so the pool cannot hand out a connection still holding the lock.
			unlockCtx := context.WithoutCancel(ctx)
			if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1, $2)",
				advisoryLockChemjobsMajor, advisoryLockReconcileTick); err != nil {
				l.repo.logger.WarnContext(ctx, "release tick lock failed; closing session", "error", err)
				_ = conn.Close(unlockCtx)
			}
		}()

		ran = true
		return fn(ctx)
	})
	return ran, err
}
