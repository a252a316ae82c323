// Package main implements the fire CLI, which drops a firing for one subject
// onto the firing queue so the occasion worker delivers it immediately.
//
// Usage:
//
//	go run ./cmd/tools/fire --subject-id=3f0c2a9e-8d7b-4c1e-9a51-0b6f1e2d4c77
//	go run ./cmd/tools/fire --subject-id=... --reason=smoke-test
//
// The worker treats the message exactly like a Timer Service firing: it
// delivers the greeting and re-arms next year's schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"occasions/internal/app"
	"occasions/internal/queue"
)

type options struct {
	subjectID string
	reason    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("fire", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.subjectID, "subject-id", "", "Subject to fire (required)")
	fs.StringVar(&opts.reason, "reason", "manual", "Free-form tag attached to the message")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.subjectID == "" {
		return options{}, fmt.Errorf("--subject-id is required")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel).With("service", cfg.Service, "component", "fire")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return err
	}

	publisher := queue.NewFiringPublisher(sqs.NewFromConfig(awsCfg), cfg.Scheduler.FiringQueueURL, logger)
	messageID, err := publisher.Publish(ctx, opts.subjectID, opts.reason)
	if err != nil {
		return err
	}

	fmt.Printf("queued firing for %s (message %s)\n", opts.subjectID, messageID)
	return nil
}
