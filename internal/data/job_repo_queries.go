package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/molcalc/chemjobs/internal/data/pgxutil"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

// ListByStatus returns every job whose status is in statuses, oldest submission first.
// Reconciliation uses it to build the batch snapshot.
func (r *JobRepo) ListByStatus(ctx context.Context, statuses []model.JobStatus) ([]*model.Job, error) {
	if len(statuses) == 0 {
		return nil, errors.New("at least one status is required")
	}
	names, err := statusNames(statuses)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ANY($1)
		ORDER BY submitted ASC NULLS LAST, created ASC, id ASC
	`
	return r.collectJobs(ctx, "list jobs by status", query, names)
}

// ListByOwner returns a page of one user's jobs, newest first.
func (r *JobRepo) ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, apperrors.ValidationField("userid", "userid is required")
	}
	opts.Sanitize()
	if len(opts.Statuses) == 0 {
		opts.Statuses = append(model.NonTerminalStatuses(), model.TerminalStatuses()...)
	}
	names, err := statusNames(opts.Statuses)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE userid = $1 AND status = ANY($2)
		ORDER BY created DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	return r.collectJobs(ctx, "list jobs by owner", query, opts.UserID, names, opts.Limit, opts.Offset)
}

// CountByOwner counts one user's jobs matching the status filter.
func (r *JobRepo) CountByOwner(ctx context.Context, opts model.JobListOptions) (int, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return 0, apperrors.ValidationField("userid", "userid is required")
	}
	if len(opts.Statuses) == 0 {
		opts.Statuses = append(model.NonTerminalStatuses(), model.TerminalStatuses()...)
	}
	names, err := statusNames(opts.Statuses)
	if err != nil {
		return 0, err
	}

	var count int
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT count(*) FROM jobs WHERE userid = $1 AND status = ANY($2)`,
			opts.UserID, names,
		).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count jobs by owner: %w", apperrors.MapDBError(err))
	}
	return count, nil
}

func (r *JobRepo) collectJobs(ctx context.Context, op, query string, args ...any) ([]*model.Job, error) {
	var result []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		result, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
	}
	return result, nil
}

func statusNames(statuses []model.JobStatus) ([]string, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if !s.Valid() {
			return nil, apperrors.ValidationField("status", fmt.Sprintf("unknown status %q", s))
		}
		names = append(names, string(s))
	}
	return names, nil
}
