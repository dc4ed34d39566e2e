package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ownlingo/ownlingo/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
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

	stats, err := pool.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		view := map[string]int64{
			"pending_jobs":        stats.PendingJobs,
			"running_jobs":        stats.RunningJobs,
			"completed_jobs":      stats.CompletedJobs,
			"failed_jobs":         stats.FailedJobs,
			"cancelled_jobs":      stats.CancelledJobs,
			"total_items":         stats.TotalItems,
			"cached_translations": stats.CachedTranslations,
		}
		if err := printJSON(view); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"pending_jobs", strconv.FormatInt(stats.PendingJobs, 10)},
		{"running_jobs", strconv.FormatInt(stats.RunningJobs, 10)},
		{"completed_jobs", strconv.FormatInt(stats.CompletedJobs, 10)},
		{"failed_jobs", strconv.FormatInt(stats.FailedJobs, 10)},
		{"cancelled_jobs", strconv.FormatInt(stats.CancelledJobs, 10)},
		{"total_items", strconv.FormatInt(stats.TotalItems, 10)},
		{"cached_translations", strconv.FormatInt(stats.CachedTranslations, 10)},
	}
	if err := writeTable([]string{"METRIC", "VALUE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}
