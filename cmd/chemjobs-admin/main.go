package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/molcalc/chemjobs/config"
	"github.com/molcalc/chemjobs/internal/bootstrap"
	"github.com/molcalc/chemjobs/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"reconcile-once": {
			name:        "reconcile-once",
			description: "Run a single reconciliation tick and print its outcome counts",
			run:         runReconcileOnce,
		},
		"submit-job": {
			name:        "submit-job",
			description: "Submit a job to the cluster and record it",
			run:         runSubmitJob,
		},
		"cancel-job": {
			name:        "cancel-job",
			description: "Cancel a non-terminal job",
			run:         runCancelJob,
		},
		"list-jobs": {
			name:        "list-jobs",
			description: "List one user's jobs",
			run:         runListJobs,
		},
		"download-url": {
			name:        "download-url",
			description: "Mint a download link for a completed job's archive or result",
			run:         runDownloadURL,
		},
		"decode-report": {
			name:        "decode-report",
			description: "Decode a check report captured from the cluster and print each entry",
			run:         runDecodeReport,
		},
		"list-job-locks": {
			name:        "list-job-locks",
			description: "Inspect per-job reconciliation locks in Redis",
			run:         runListJobLocks,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: chemjobs-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		applied, statusErr := migrate.Status(ctx, db)
		if statusErr != nil {
			return fmt.Errorf("migration status: %w", statusErr)
		}
		return printMigrationStatus(os.Stdout, applied)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts migrateOptions
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	fs.BoolVar(&opts.Status, "status", false, "List embedded migrations and whether each is applied, without applying")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func printMigrationStatus(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "VERSION\tAPPLIED"); err != nil {
		return fmt.Errorf("write migration header: %w", err)
	}
	for _, m := range migrations {
		if err := writef(tw, "%s\t%t\n", m.Version, m.Applied); err != nil {
			return fmt.Errorf("write migration row %q: %w", m.Version, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush migration table: %w", err)
	}
	return nil
}

func runReconcileOnce(cmdCtx *commandContext, args []string) error {
	timeout, err := parseTimeoutFlag("reconcile-once", args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deps, err := openServices(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer deps.close(cmdCtx.Logger)

	runner, err := bootstrap.NewReconcilerRunner(bootstrap.ReconcilerConfig{
		Services: deps.Services,
		Config:   &cmdCtx.Config,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("create reconciler runner: %w", err)
	}

	summary, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if summary.Skipped {
		return writeln(os.Stdout, "Tick skipped: another replica holds the tick lock")
	}
	return printOutcomes(os.Stdout, summary.Batch, summary.Duration, summary.Outcomes)
}

func printOutcomes(w io.Writer, batch int, took time.Duration, outcomes map[string]int) error {
	if err := writef(w, "Jobs checked: %d (%s)\n", batch, took.Round(time.Millisecond)); err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "OUTCOME\tJOBS"); err != nil {
		return fmt.Errorf("write outcome header: %w", err)
	}
	for _, name := range names {
		if err := writef(tw, "%s\t%d\n", name, outcomes[name]); err != nil {
			return fmt.Errorf("write outcome row %q: %w", name, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush outcome table: %w", err)
	}
	return nil
}

func parseTimeoutFlag(name string, args []string) (time.Duration, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *timeout <= 0 {
		return 0, errors.New("--timeout must be greater than zero")
	}
	return *timeout, nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
