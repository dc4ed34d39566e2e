package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "translate":
		return runTranslate(args[1:])
	case "stats":
		return runStats(args[1:])
	case "run":
		return runDaemon(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "ownlingo CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  ownlingo <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  jobs       Create, inspect, cancel, and retry translation jobs")
	fmt.Fprintln(os.Stderr, "  translate  Translate one text through the provider chain")
	fmt.Fprintln(os.Stderr, "  stats      Show job and cache counters")
	fmt.Fprintln(os.Stderr, "  run        Start the job scheduler without the HTTP API")
	fmt.Fprintln(os.Stderr, "  serve      Start the HTTP API and the job scheduler")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"ownlingo <command> -h\" for command-specific flags.")
}
