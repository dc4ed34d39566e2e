package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/cli"
	"github.com/ownlingo/ownlingo/internal/jobs"
)

func runJobs(args []string) int {
	if len(args) == 0 {
		printJobsUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "create":
		return runJobsCreate(args[1:])
	case "get":
		return runJobsGet(args[1:])
	case "progress":
		return runJobsProgress(args[1:])
	case "cancel":
		return runJobsCancel(args[1:])
	case "retry":
		return runJobsRetry(args[1:])
	case "list":
		return runJobsList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown jobs subcommand: %s\n\n", args[0])
		printJobsUsage()
		return 2
	}
}

func runJobsCreate(args []string) int {
	fs := flag.NewFlagSet("jobs create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	jobType := fs.String("type", "full", "Job type: full, incremental, or single")
	source := fs.String("source", "", "Source locale (for example: en)")
	targets := fs.String("targets", "", "Comma-separated target locales (for example: de,fr,ja)")
	priority := fs.Int("priority", 0, "Job priority, higher runs first")
	resourceID := fs.String("resource", "", "Resource ID (required for single jobs)")
	maxRetries := fs.Int("max-retries", 0, "Per-item retry budget (0 uses the configured default)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "jobs create does not accept positional arguments")
		return 2
	}

	var targetLocales []string
	for _, raw := range strings.Split(*targets, ",") {
		if locale := strings.TrimSpace(raw); locale != "" {
			targetLocales = append(targetLocales, locale)
		}
	}
	if len(targetLocales) == 0 {
		fmt.Fprintln(os.Stderr, "--targets is required")
		return 2
	}

	ctx, cancel, pool, cfg, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	creator := jobs.NewCreator(pool, pool, pool, nil,
		jobs.CreatorConfig{DefaultMaxRetries: cfg.ItemMaxRetries}, zerolog.Nop())
	job, err := creator.Create(ctx, jobs.CreateParams{
		Type:          jobs.JobType(strings.ToLower(strings.TrimSpace(*jobType))),
		SourceLocale:  *source,
		TargetLocales: targetLocales,
		Priority:      *priority,
		ResourceID:    strings.TrimSpace(*resourceID),
		MaxRetries:    *maxRetries,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Create job failed: %v\n", err)
		return 1
	}

	fmt.Printf("created job_uuid=%s type=%s items=%d targets=%s\n",
		job.JobUUID, job.Type, job.TotalItems, strings.Join(job.TargetLocales, ","))
	return 0
}

func runJobsGet(args []string) int {
	fs := flag.NewFlagSet("jobs get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	jobUUID, code := parseSingleUUIDArg(fs, args, "jobs get")
	if code >= 0 {
		return code
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	job, err := pool.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Query job failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(jobCLIView(job)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeTable(jobTableHeaders(), [][]string{jobTableRow(job)}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}

func runJobsProgress(args []string) int {
	fs := flag.NewFlagSet("jobs progress", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	jobUUID, code := parseSingleUUIDArg(fs, args, "jobs progress")
	if code >= 0 {
		return code
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	progress, err := pool.GetJobProgress(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Query job progress failed: %v\n", err)
		return 1
	}

	fmt.Printf("job_uuid=%s total=%d completed=%d failed=%d progress=%d%%\n",
		jobUUID, progress.Total, progress.Completed, progress.Failed, progress.Percent)
	return 0
}

func runJobsCancel(args []string) int {
	fs := flag.NewFlagSet("jobs cancel", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	jobUUID, code := parseSingleUUIDArg(fs, args, "jobs cancel")
	if code >= 0 {
		return code
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	cancelled, err := pool.CancelPendingJob(ctx, jobUUID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cancel job failed: %v\n", err)
		return 1
	}
	if cancelled {
		fmt.Printf("cancelled job_uuid=%s\n", jobUUID)
		return 0
	}

	job, err := pool.GetJobByUUID(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Query job failed: %v\n", err)
		return 1
	}
	// Only pending jobs can be cancelled without the scheduler. A running
	// job needs the cancel endpoint of the serving process.
	fmt.Fprintf(os.Stderr, "Job %s is %s and cannot be cancelled here\n", jobUUID, job.Status)
	return 1
}

func runJobsRetry(args []string) int {
	fs := flag.NewFlagSet("jobs retry", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	jobUUID, code := parseSingleUUIDArg(fs, args, "jobs retry")
	if code >= 0 {
		return code
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	reset, err := pool.ResetFailedItems(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Retry job failed: %v\n", err)
		return 1
	}

	fmt.Printf("retry job_uuid=%s items_reset=%d\n", jobUUID, reset)
	return 0
}

func runJobsList(args []string) int {
	fs := flag.NewFlagSet("jobs list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	status := fs.String("status", "", "Filter by job status")
	limit := fs.Int("limit", 25, "Maximum jobs to list")
	offset := fs.Int("offset", 0, "Jobs to skip")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "jobs list does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}
	if *offset < 0 {
		fmt.Fprintln(os.Stderr, "--offset must be >= 0")
		return 2
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	listed, err := pool.ListJobs(ctx, strings.TrimSpace(strings.ToLower(*status)), *limit, *offset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List jobs failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		views := make([]map[string]any, 0, len(listed))
		for _, job := range listed {
			views = append(views, jobCLIView(job))
		}
		if err := printJSON(views); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(listed))
	for _, job := range listed {
		rows = append(rows, jobTableRow(job))
	}
	if err := writeTable(jobTableHeaders(), rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}

// parseSingleUUIDArg parses flags plus exactly one positional job UUID.
// It returns -1 as the exit code when parsing succeeded and the command
// should continue.
func parseSingleUUIDArg(fs *flag.FlagSet, args []string, command string) (string, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", 0
		}
		return "", 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s requires exactly one job UUID argument\n", command)
		return "", 2
	}
	jobUUID := strings.TrimSpace(fs.Arg(0))
	if jobUUID == "" {
		fmt.Fprintf(os.Stderr, "%s job UUID must not be empty\n", command)
		return "", 2
	}
	return jobUUID, -1
}

func jobCLIView(job *jobs.Job) map[string]any {
	return map[string]any{
		"job_uuid":        job.JobUUID,
		"job_type":        string(job.Type),
		"status":          string(job.Status),
		"priority":        job.Priority,
		"source_locale":   job.SourceLocale,
		"target_locales":  job.TargetLocales,
		"total_items":     job.TotalItems,
		"completed_items": job.CompletedItems,
		"failed_items":    job.FailedItems,
		"progress":        job.Progress,
		"error_message":   pointerStringOrEmpty(job.ErrorMessage),
		"created_at":      formatUTCTimestamp(job.CreatedAt),
		"started_at":      formatUTCTimestampPtr(job.StartedAt),
		"completed_at":    formatUTCTimestampPtr(job.CompletedAt),
	}
}

func jobTableHeaders() []string {
	return []string{"JOB_UUID", "TYPE", "STATUS", "SOURCE", "TARGETS", "ITEMS", "DONE", "FAILED", "PROGRESS", "CREATED"}
}

func jobTableRow(job *jobs.Job) []string {
	return []string{
		job.JobUUID,
		string(job.Type),
		string(job.Status),
		job.SourceLocale,
		strings.Join(job.TargetLocales, ","),
		strconv.Itoa(job.TotalItems),
		strconv.Itoa(job.CompletedItems),
		strconv.Itoa(job.FailedItems),
		strconv.Itoa(job.Progress) + "%",
		formatUTCTimestamp(job.CreatedAt),
	}
}

func printJobsUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs create --type full --source en --targets de,fr [--priority 0] [--resource <id>] [--max-retries 3]")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs get <job_uuid> [--format table]")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs progress <job_uuid>")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs cancel <job_uuid>")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs retry <job_uuid>")
	fmt.Fprintln(os.Stderr, "  ownlingo jobs list [--status pending] [--limit 25] [--offset 0] [--format table]")
}
