package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	"github.com/molcalc/chemjobs/internal/migrate"
)

func TestPrintUsageListsEveryCommandSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: chemjobs-admin <command> [flags]")
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "cancel-job"), strings.Index(out, "submit-job"))
}

func TestParseSubmitFlags(t *testing.T) {
	opts, err := parseSubmitFlags([]string{"--user", " chemist@example.org ", "--name", "opt", "--params", `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, "chemist@example.org", opts.UserID)
	assert.Equal(t, defaultCommandTimeout, opts.Timeout)

	_, err = parseSubmitFlags([]string{"--name", "opt"})
	require.Error(t, err)

	_, err = parseSubmitFlags([]string{"--user", "a@b", "--name", "x", "--timeout", "0s"})
	require.Error(t, err)
}

func TestParseJobIDFlags(t *testing.T) {
	opts, err := parseJobIDFlags("cancel-job", []string{"--id", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", opts.ID)

	_, err = parseJobIDFlags("cancel-job", nil)
	require.EqualError(t, err, "--id is required")
}

func TestParseListJobsFlags(t *testing.T) {
	opts, err := parseListJobsFlags([]string{"--user", "a@b"})
	require.NoError(t, err)
	assert.Equal(t, "all", opts.Status)
	assert.Equal(t, 5, opts.Limit)

	_, err = parseListJobsFlags([]string{"--user", "a@b", "--offset", "-1"})
	require.Error(t, err)
}

func TestParseDownloadFlags(t *testing.T) {
	opts, err := parseDownloadFlags([]string{"--id", "j1", "--kind", "JOBS"})
	require.NoError(t, err)
	assert.Equal(t, "jobs", opts.Kind)

	_, err = parseDownloadFlags([]string{"--id", "j1", "--kind", "logs"})
	require.Error(t, err)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "-1s"})
	require.Error(t, err)

	opts, err = parseMigrateFlags([]string{"--status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Migration{
		{Version: "0001_create_jobs", Applied: true},
	}))
	assert.Contains(t, buf.String(), "0001_create_jobs")
	assert.Contains(t, buf.String(), "true")
}

func TestResolveParams(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		raw, err := resolveParams("  ")
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("inline", func(t *testing.T) {
		raw, err := resolveParams(`{"basis":"sto-3g"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"basis":"sto-3g"}`, string(raw))
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "params.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"charge":0}`), 0o600))
		raw, err := resolveParams("@" + path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"charge":0}`, string(raw))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := resolveParams("{nope")
		require.Error(t, err)
	})
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, nil))
	assert.Equal(t, "No jobs found.\n", buf.String())

	buf.Reset()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := "SCF did not converge"
	require.NoError(t, printJobs(&buf, []*model.Job{{
		ID:           "j1",
		Name:         "benzene",
		Status:       model.JobStatusFailed,
		Started:      &started,
		ErrorMessage: &msg,
	}}))
	out := buf.String()
	assert.Contains(t, out, "benzene")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "2024-03-01T10:00:00Z")
	assert.Contains(t, out, msg)
}

func TestPrintReport(t *testing.T) {
	report, err := cluster.DecodeCheckReport([]byte(`{"b":0,"a":{"status":"RUNNING"},"c":"disk quota exceeded"}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.Contains(t, lines[1], "RUNNING")
	assert.Contains(t, lines[2], "unchanged")
	assert.Contains(t, lines[3], "legacy-error")
	assert.Contains(t, lines[3], "disk quota exceeded")
}

func TestPrintOutcomes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutcomes(&buf, 3, 1500*time.Millisecond, map[string]int{"running": 2, "completed": 1}))
	out := buf.String()
	assert.Contains(t, out, "Jobs checked: 3 (1.5s)")
	assert.Less(t, strings.Index(out, "completed"), strings.Index(out, "running"))
}

func TestPrintJobLocks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobLocks(&buf, nil, 0))
	assert.Equal(t, "No job locks held.\n", buf.String())

	buf.Reset()
	require.NoError(t, printJobLocks(&buf, []jobLockEntry{{JobID: "j1", Key: "chemjobs:joblock:j1", TTL: 90 * time.Second}}, 2))
	assert.Contains(t, buf.String(), "Showing 1 of 2 lock(s)")
	assert.Contains(t, buf.String(), "1m30s")
}

func TestFormatRedisTTL(t *testing.T) {
	assert.Equal(t, "no expiry", formatRedisTTL(-1))
	assert.Equal(t, "missing", formatRedisTTL(-2))
	assert.Equal(t, "2s", formatRedisTTL(2*time.Second))
}

func TestHasRedisConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RedisConfig
		want bool
	}{
		{name: "nil", cfg: nil, want: false},
		{name: "disabled", cfg: &config.RedisConfig{URI: "localhost:6379"}, want: false},
		{name: "direct", cfg: &config.RedisConfig{Enabled: true, URI: "localhost:6379"}, want: true},
		{name: "sentinel without nodes", cfg: &config.RedisConfig{Enabled: true, UseSentinel: true}, want: false},
		{name: "sentinel nodes", cfg: &config.RedisConfig{Enabled: true, UseSentinel: true, SentinelNodes: []string{"a:26379"}}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRedisConfig(tt.cfg))
		})
	}
}
