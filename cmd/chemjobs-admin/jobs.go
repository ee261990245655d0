package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/molcalc/chemjobs/internal/data"
	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
)

type submitOptions struct {
	ID      string
	UserID  string
	Name    string
	Params  string
	Timeout time.Duration
}

type jobIDOptions struct {
	ID      string
	Timeout time.Duration
}

type listJobsOptions struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

type downloadOptions struct {
	ID   string
	Kind string
}

func runSubmitJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseSubmitFlags(args)
	if err != nil {
		return err
	}
	params, err := resolveParams(opts.Params)
	if err != nil {
		return err
	}

	ctx, cancel := commandDeadline(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openServices(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer deps.close(cmdCtx.Logger)

	job, err := deps.Services.Submissions.Submit(ctx, &model.CreateJobRequest{
		ID:         opts.ID,
		UserID:     opts.UserID,
		Name:       opts.Name,
		Parameters: params,
	})
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	return printJobs(os.Stdout, []*model.Job{job})
}

func runCancelJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobIDFlags("cancel-job", args)
	if err != nil {
		return err
	}

	ctx, cancel := commandDeadline(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	deps, err := openServices(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer deps.close(cmdCtx.Logger)

	job, err := deps.Services.Cancellations.Cancel(ctx, opts.ID)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", opts.ID, err)
	}
	return printJobs(os.Stdout, []*model.Job{job})
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}
	statuses, err := model.StatusFilter(opts.Status)
	if err != nil {
		return err
	}

	ctx, cancel := commandDeadline(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(db, nil); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	listOpts := model.JobListOptions{
		UserID:   opts.UserID,
		Statuses: statuses,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	jobs, err := repo.ListByOwner(ctx, listOpts)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	total, err := repo.CountByOwner(ctx, listOpts)
	if err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}

	if err := writef(os.Stdout, "Showing %d of %d job(s) for %s\n\n", len(jobs), total, opts.UserID); err != nil {
		return err
	}
	return printJobs(os.Stdout, jobs)
}

func runDownloadURL(cmdCtx *commandContext, args []string) error {
	opts, err := parseDownloadFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandDeadline(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	deps, err := openServices(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer deps.close(cmdCtx.Logger)

	var link string
	switch model.ArtifactKind(opts.Kind) {
	case model.ArtifactArchive:
		link, err = deps.Services.Downloads.ArchiveURL(ctx, opts.ID)
	default:
		link, err = deps.Services.Downloads.ResultURL(ctx, opts.ID)
	}
	if err != nil {
		return fmt.Errorf("mint %s link for %s: %w", opts.Kind, opts.ID, err)
	}
	return writeln(os.Stdout, link)
}

// runDecodeReport parses a captured check response offline. It reads the file
// named by --file, or stdin when no file is given.
func runDecodeReport(_ *commandContext, args []string) error {
	fs := flag.NewFlagSet("decode-report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "Path to a JSON check report (defaults to stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open report: %w", err)
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	report, err := cluster.DecodeCheckReport(raw)
	if err != nil {
		return err
	}
	return printReport(os.Stdout, report)
}

func printReport(w io.Writer, report cluster.CheckReport) error {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tKIND\tSTATE\tSTARTED\tFINISHED\tDETAIL"); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, id := range ids {
		entry := report[id]
		detail := ""
		if entry.IsFailed() {
			detail = entry.FailureMessage()
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id,
			reportKindName(entry.Kind),
			dash(entry.State),
			formatTimePtr(entry.Started),
			formatTimePtr(entry.Finished),
			dash(detail),
		); err != nil {
			return fmt.Errorf("write report row %q: %w", id, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush report table: %w", err)
	}
	return nil
}

func reportKindName(k cluster.ReportKind) string {
	switch k {
	case cluster.ReportUnchanged:
		return "unchanged"
	case cluster.ReportStatus:
		return "status"
	case cluster.ReportLegacyCompleted:
		return "legacy-completed"
	case cluster.ReportLegacyError:
		return "legacy-error"
	default:
		return "unknown"
	}
}

func printJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(w, "No jobs found.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tNAME\tSTATUS\tSUBMITTED\tSTARTED\tFINISHED\tERROR"); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}
	for _, job := range jobs {
		errMsg := ""
		if job.ErrorMessage != nil {
			errMsg = *job.ErrorMessage
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID,
			job.Name,
			job.Status,
			formatTimePtr(job.Submitted),
			formatTimePtr(job.Started),
			formatTimePtr(job.Finished),
			dash(errMsg),
		); err != nil {
			return fmt.Errorf("write job row %q: %w", job.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush jobs table: %w", err)
	}
	return nil
}

func parseSubmitFlags(args []string) (submitOptions, error) {
	fs := flag.NewFlagSet("submit-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts submitOptions
	fs.StringVar(&opts.ID, "id", "", "Job ID (UUID); generated when empty")
	fs.StringVar(&opts.UserID, "user", "", "Owner email address (required)")
	fs.StringVar(&opts.Name, "name", "", "Job name (required)")
	fs.StringVar(&opts.Params, "params", "", "Job parameters as inline JSON or @path/to/file.json")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the submission")

	if err := fs.Parse(args); err != nil {
		return submitOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.UserID == "" || opts.Name == "" {
		return submitOptions{}, errors.New("--user and --name are required")
	}
	if opts.Timeout <= 0 {
		return submitOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseJobIDFlags(name string, args []string) (jobIDOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobIDOptions
	fs.StringVar(&opts.ID, "id", "", "Job ID (required)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return jobIDOptions{}, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return jobIDOptions{}, errors.New("--id is required")
	}
	if opts.Timeout <= 0 {
		return jobIDOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listJobsOptions
	fs.StringVar(&opts.UserID, "user", "", "Owner email address (required)")
	fs.StringVar(&opts.Status, "status", "all", "Filter: all, completed, failed, cancelled or in-progress")
	fs.IntVar(&opts.Limit, "limit", 5, "Maximum jobs to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of jobs to skip")
	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return listJobsOptions{}, errors.New("--user is required")
	}
	if opts.Offset < 0 {
		return listJobsOptions{}, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func parseDownloadFlags(args []string) (downloadOptions, error) {
	fs := flag.NewFlagSet("download-url", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts downloadOptions
	fs.StringVar(&opts.ID, "id", "", "Job ID (required)")
	fs.StringVar(&opts.Kind, "kind", string(model.ArtifactArchive), "Artifact to link: archive or jobs")
	if err := fs.Parse(args); err != nil {
		return downloadOptions{}, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	opts.Kind = strings.ToLower(strings.TrimSpace(opts.Kind))
	if opts.ID == "" {
		return downloadOptions{}, errors.New("--id is required")
	}
	if !model.ArtifactKind(opts.Kind).Valid() {
		return downloadOptions{}, fmt.Errorf("unknown artifact kind %q", opts.Kind)
	}
	return opts, nil
}

// resolveParams accepts inline JSON or @file and returns nil for an empty flag.
func resolveParams(input string) (json.RawMessage, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	raw := []byte(input)
	if path, ok := strings.CutPrefix(input, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read params file: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, errors.New("--params must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

func commandDeadline(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
