// Package main implements the reconciler CLI, which re-arms the schedule of
// every stored subject.
//
// Mutations write the record before arming, so a Timer Service outage can
// leave a subject stored but unscheduled (or a deleted subject still
// scheduled until its firing is dropped). Running this tool repairs the
// first case; Arm replaces any existing schedule, so reruns are safe.
//
// Usage:
//
//	go run ./cmd/tools/reconciler
//	go run ./cmd/tools/reconciler --concurrency=8
//	go run ./cmd/tools/reconciler --dry-run
//
// Configuration comes from the environment (or .env) exactly as for the
// Lambdas. Exit status is 1 if any subject failed to arm.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"occasions/internal/app"
	"occasions/internal/reconcile"
)

type options struct {
	concurrency int
	dryRun      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("reconciler", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.IntVar(&opts.concurrency, "concurrency", reconcile.DefaultConcurrency, "Number of subjects armed in parallel")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print each subject's next firing without arming")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: reconciler [flags]\n\n")
		fmt.Fprintf(stderr, "Re-arm the yearly schedule of every stored subject.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.concurrency < 1 {
		return options{}, fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)
	}
	return opts, nil
}

// printReport writes the run summary. Planned instants are shown in UTC.
func printReport(w io.Writer, report *reconcile.Report, dryRun bool) {
	if dryRun {
		for _, p := range report.Planned {
			fmt.Fprintf(w, "%s\t%s\n", p.SubjectID, p.At.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(w, "\nscanned=%d planned=%d failed=%d (dry run)\n",
			report.Scanned, len(report.Planned), len(report.Failures))
	} else {
		fmt.Fprintf(w, "scanned=%d armed=%d failed=%d\n",
			report.Scanned, report.Armed, len(report.Failures))
	}

	for _, f := range report.Failures {
		fmt.Fprintf(w, "FAILED\t%s\t%v\n", f.SubjectID, f.Err)
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts options) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg.LogLevel).With("service", cfg.Service, "component", "reconciler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("failed to wire dependencies", "error", err)
		return 1
	}
	defer deps.Close()

	r := reconcile.New(deps.Store, deps.Coordinator, reconcile.Options{
		Concurrency: opts.concurrency,
		DryRun:      opts.dryRun,
	}, logger)

	report, err := r.Run(ctx)
	if err != nil {
		logger.Error("reconcile failed", "error", err)
		return 1
	}

	printReport(os.Stdout, report, opts.dryRun)

	if !opts.dryRun {
		deps.Metrics.RecordSubjectsArmed(ctx, report.Armed)
	}
	if len(report.Failures) > 0 {
		return 1
	}
	return 0
}
