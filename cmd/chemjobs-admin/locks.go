package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/molcalc/chemjobs/internal/service"
)

type jobLockEntry struct {
	JobID string
	Key   string
	TTL   time.Duration
}

func runListJobLocks(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-job-locks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 50, "Maximum locks to display (0 for unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := commandDeadline(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	_, client, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("redis is not configured; per-job locks are disabled")
	}
	defer func() {
		if closeErr := closeInfra(nil, client); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	entries, total, err := scanJobLocks(ctx, client, *limit)
	if err != nil {
		return err
	}
	return printJobLocks(os.Stdout, entries, total)
}

func scanJobLocks(ctx context.Context, client redis.UniversalClient, limit int) ([]jobLockEntry, int, error) {
	prefix := service.JobLockKey("")
	var (
		entries []jobLockEntry
		total   int
	)
	iter := client.Scan(ctx, 0, prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		total++
		if limit > 0 && len(entries) >= limit {
			continue
		}
		key := iter.Val()
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("query redis ttl for key %q: %w", key, err)
		}
		entries = append(entries, jobLockEntry{
			JobID: strings.TrimPrefix(key, prefix),
			Key:   key,
			TTL:   ttl,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan job locks: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].JobID < entries[j].JobID })
	return entries, total, nil
}

func printJobLocks(w io.Writer, entries []jobLockEntry, total int) error {
	if total == 0 {
		return writeln(w, "No job locks held.")
	}
	if err := writef(w, "Showing %d of %d lock(s)\n\n", len(entries), total); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tTTL\tKEY"); err != nil {
		return fmt.Errorf("write lock header: %w", err)
	}
	for _, e := range entries {
		if err := writef(tw, "%s\t%s\t%s\n", e.JobID, formatRedisTTL(e.TTL), e.Key); err != nil {
			return fmt.Errorf("write lock row %q: %w", e.Key, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush lock table: %w", err)
	}
	return nil
}

func formatRedisTTL(ttl time.Duration) string {
	switch {
	case ttl == -1:
		return "no expiry"
	case ttl == -2:
		return "missing"
	case ttl < 0:
		return ttl.String()
	default:
		return ttl.Round(time.Millisecond).String()
	}
}
