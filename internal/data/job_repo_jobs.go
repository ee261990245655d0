package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/molcalc/chemjobs/internal/data/pgxutil"
	"github.com/molcalc/chemjobs/internal/domain/model"
	apperrors "github.com/molcalc/chemjobs/internal/errors"
)

const insertJobSQL = `
  INSERT INTO jobs (id, userid, job_name, status, parameters, created, submitted, updated_at)
  VALUES ($1, $2, $3, 'SUBMITTED', $4, $5, $5, $5)
  RETURNING ` + jobColumns

const selectJobForUpdateSQL = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`

// The status guard makes the write conditional even if the row lock was bypassed.
const updateJobSQL = `
  UPDATE jobs
  SET status = $2,
      started = $3,
      finished = $4,
      error_message = $5,
      updated_at = $6
  WHERE id = $1
    AND status IN ('SUBMITTED', 'RUNNING')
  RETURNING ` + jobColumns

// Create records a job the cluster has accepted. The row starts in SUBMITTED.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	params := req.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	now := r.timeProvider.Now().UTC()

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, insertJobSQL, id, req.UserID, req.Name, []byte(params), now)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// GetByID returns the job or model.ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrJobNotFound
	}

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, apperrors.MapDBError(err))
	}
	return job, nil
}

// Update applies upd to one job atomically. The row is locked, the update is checked
// against the state machine and write-once timestamps, and the write only lands while
// the row is still non-terminal.
func (r *JobRepo) Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error) {
	if upd.IsEmpty() {
		return r.GetByID(ctx, id)
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrJobNotFound
	}

	var out *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, selectJobForUpdateSQL, id)
			if err != nil {
				return err
			}
			current, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrJobNotFound
			}
			if err != nil {
				return err
			}

			next, err := upd.ApplyTo(current)
			if err != nil {
				return err
			}

			rows, err = tx.Query(ctx, updateJobSQL,
				id, next.Status, next.Started, next.Finished, next.ErrorMessage, r.timeProvider.Now().UTC())
			if err != nil {
				return err
			}
			out, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrJobTerminal
			}
			return err
		},
	})
	if err != nil {
		if isDomainError(err) {
			return nil, fmt.Errorf("update job %s: %w", id, err)
		}
		return nil, fmt.Errorf("update job %s: %w", id, apperrors.MapDBError(err))
	}

	r.logger.DebugContext(ctx, "job updated", "job_id", id, "status", out.Status)
	return out, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, model.ErrJobNotFound) ||
		errors.Is(err, model.ErrJobTerminal) ||
		errors.Is(err, model.ErrInvalidTransition) ||
		errors.Is(err, model.ErrTimestampOrder) ||
		errors.Is(err, model.ErrTimestampImmutable)
}
