// Command xhscrawl is the CLI driver for the crawl engine (spec.md §6), its
// credential-management subcommand (the manage_cookie_pool.py-derived
// supplemented feature), and its search subcommand (the search_to_json.py-
// derived supplemented feature).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hejianfang/xhs-crawl/internal/app"
	"github.com/hejianfang/xhs-crawl/internal/config"
	"github.com/hejianfang/xhs-crawl/pkg/credential"
)

// Exit codes per spec.md §6: 0 success, 1 fatal misconfiguration, 2 some
// notes failed but the batch finished, 130 on cancellation.
const (
	exitOK             = 0
	exitFatal          = 1
	exitPartialFailure = 2
	exitCancelled      = 130
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "credential":
			runCredential(os.Args[2:])
			return
		case "search":
			runSearch(os.Args[2:])
			return
		}
	}
	runCrawl(os.Args[1:])
}

func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	input := fs.String("input", "", "path to the input note list (overrides XHS_INPUT_PATH)")
	output := fs.String("output", "", "output directory (overrides XHS_OUTPUT_DIR)")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(exitFatal)
	}
	if *input != "" {
		cfg.InputPath = *input
	}
	if *output != "" {
		cfg.OutputDir = *output
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, runErr := app.Run(ctx, cfg)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Warn("cancelled")
			os.Exit(exitCancelled)
		}
		if errors.Is(runErr, credential.ErrNoEligibleCredential) {
			slog.Error("fatal: no eligible credential configured", "error", runErr)
			os.Exit(exitFatal)
		}
		slog.Error("fatal", "error", runErr)
		os.Exit(exitFatal)
	}

	if len(summary.FailedNotes) > 0 {
		slog.Warn("batch finished with failures", "failed", len(summary.FailedNotes))
		os.Exit(exitPartialFailure)
	}

	os.Exit(exitOK)
}
