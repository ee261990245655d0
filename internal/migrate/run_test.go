package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molcalc/chemjobs/internal/migrate"
	"github.com/molcalc/chemjobs/internal/testutil"
)

func TestRun_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, migrate.Run(ctx, db))
	require.NoError(t, migrate.Run(ctx, db))

	status, err := migrate.Status(ctx, db)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, m := range status {
		assert.True(t, m.Applied, m.Version)
	}
	assert.Equal(t, "0001_create_jobs", status[0].Version)
}

func TestJobsGuardTrigger(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO jobs (id, userid, job_name, status)
		VALUES ('7b0c7c1e-7a59-4a1c-9d43-3f2b1d0a9e11', 'ada@example.org', 'guard', 'CANCELLED')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`UPDATE jobs SET status = 'RUNNING' WHERE id = '7b0c7c1e-7a59-4a1c-9d43-3f2b1d0a9e11'`)
	assert.ErrorContains(t, err, "terminal state")

	_, err = db.ExecContext(ctx, `
		INSERT INTO jobs (id, userid, job_name, started)
		VALUES ('0f8c2a57-1e0b-4d7a-8b6e-5c4d3b2a1f00', 'ada@example.org', 'guard', now())`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`UPDATE jobs SET started = now() - interval '1 hour' WHERE id = '0f8c2a57-1e0b-4d7a-8b6e-5c4d3b2a1f00'`)
	assert.ErrorContains(t, err, "started already recorded")
}
