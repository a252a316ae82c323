// Package reconcile re-arms every stored subject. Mutations write the record
// before touching the Timer Service, so a failed arm or disarm leaves the two
// out of step; a reconcile run repairs that because Arm is idempotent.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"occasions/internal/types"
)

// DefaultConcurrency is the number of subjects armed in parallel.
const DefaultConcurrency = 4

// SubjectLister streams every stored subject.
type SubjectLister interface {
	List(ctx context.Context, fn func(*types.Subject) error) error
}

// Armer is the subset of schedule.Coordinator the reconciler drives.
type Armer interface {
	NextFiring(subject *types.Subject) (time.Time, error)
	Arm(ctx context.Context, subject *types.Subject) error
}

// Planned is one subject's computed next firing in a dry run.
type Planned struct {
	SubjectID string
	At        time.Time
}

// Failure records a subject that could not be armed.
type Failure struct {
	SubjectID string
	Err       error
}

// Report summarises a run.
type Report struct {
	Scanned  int
	Armed    int
	Planned  []Planned
	Failures []Failure
}

// Reconciler fans Arm calls out over a bounded errgroup.
type Reconciler struct {
	subjects    SubjectLister
	armer       Armer
	concurrency int
	dryRun      bool
	logger      *slog.Logger
}

// Options tune a Reconciler.
type Options struct {
	Concurrency int
	DryRun      bool
}

// New creates a Reconciler. Concurrency below 1 uses DefaultConcurrency.
func New(subjects SubjectLister, armer Armer, opts Options, logger *slog.Logger) *Reconciler {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		subjects:    subjects,
		armer:       armer,
		concurrency: opts.Concurrency,
		dryRun:      opts.DryRun,
		logger:      logger,
	}
}

// Run scans the store and arms each subject. Per-subject failures are
// collected in the report and never stop the scan; only a store error or a
// cancelled context is returned as an error. In dry-run mode nothing is
// armed and Planned lists the computed instants, sorted by subject id.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	var (
		mu     sync.Mutex
		report = &Report{}
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	fail := func(id string, err error) {
		mu.Lock()
		report.Failures = append(report.Failures, Failure{SubjectID: id, Err: err})
		mu.Unlock()
		r.logger.Warn("subject not armed", "subject_id", id, "error", err)
	}

	listErr := r.subjects.List(gCtx, func(s *types.Subject) error {
		mu.Lock()
		report.Scanned++
		mu.Unlock()

		if r.dryRun {
			at, err := r.armer.NextFiring(s)
			if err != nil {
				fail(s.ID, err)
				return nil
			}
			mu.Lock()
			report.Planned = append(report.Planned, Planned{SubjectID: s.ID, At: at})
			mu.Unlock()
			return nil
		}

		if err := gCtx.Err(); err != nil {
			return err
		}

		g.Go(func() error {
			if err := r.armer.Arm(gCtx, s); err != nil {
				fail(s.ID, err)
				return nil
			}
			mu.Lock()
			report.Armed++
			mu.Unlock()
			return nil
		})
		return nil
	})

	// Workers record their own failures and always return nil.
	_ = g.Wait()

	sort.Slice(report.Planned, func(i, j int) bool { return report.Planned[i].SubjectID < report.Planned[j].SubjectID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].SubjectID < report.Failures[j].SubjectID })

	if listErr != nil {
		return report, fmt.Errorf("reconcile: listing subjects: %w", listErr)
	}

	r.logger.Info("reconcile complete",
		"scanned", report.Scanned,
		"armed", report.Armed,
		"failed", len(report.Failures),
		"dry_run", r.dryRun,
	)
	return report, nil
}
