package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// Reconciler is the subset of the reconcile service the runner drives
type Reconciler interface {
	RunReconciliation(ctx context.Context) (*domain.ReconcileReport, error)
}

// DailyRunner triggers a reconciliation once at start and then every day
// at a fixed wall-clock time.
type DailyRunner struct {
	logger     *zap.Logger
	reconciler Reconciler
	hour       int
	minute     int
	location   *time.Location
	now        func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// ParseRunAt parses an "HH:MM" time of day
func ParseRunAt(runAt string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run time %q, want HH:MM: %w", runAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NewDailyRunner constructs a runner firing daily at runAt ("HH:MM") in loc.
// A nil loc means local time.
func NewDailyRunner(logger *zap.Logger, reconciler Reconciler, runAt string, loc *time.Location) (*DailyRunner, error) {
	hour, minute, err := ParseRunAt(runAt)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &DailyRunner{
		logger:     logger,
		reconciler: reconciler,
		hour:       hour,
		minute:     minute,
		location:   loc,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start runs one reconciliation immediately and then loops until Stop is
// called or ctx is canceled.
func (r *DailyRunner) Start(ctx context.Context) {
	r.logger.Info("daily_runner.started",
		zap.String("run_at", fmt.Sprintf("%02d:%02d", r.hour, r.minute)),
		zap.String("location", r.location.String()))

	r.runOnce(ctx)

	for {
		next := nextRun(r.now(), r.hour, r.minute, r.location)
		wait := next.Sub(r.now())
		r.logger.Info("daily_runner.next_run", zap.Time("at", next), zap.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			timer.Stop()
			r.logger.Info("daily_runner.stopped (manual stop)")
			return
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("daily_runner.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the runner. Later calls are no-ops.
func (r *DailyRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// runOnce executes one reconciliation. Failures are logged; the next
// scheduled run still happens.
func (r *DailyRunner) runOnce(ctx context.Context) {
	start := time.Now()
	r.logger.Info("daily_runner.running")

	report, err := r.reconciler.RunReconciliation(ctx)
	if err != nil {
		r.logger.Error("daily_runner.reconcile_failed", zap.Error(err))
		return
	}

	r.logger.Info("daily_runner.success",
		zap.String("run_id", report.RunID),
		zap.Int("applied", report.Applied),
		zap.Duration("duration", time.Since(start)))
}

// nextRun returns the first hour:minute in loc strictly after now
func nextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
