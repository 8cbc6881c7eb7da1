package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/ocpp-log-etl/internal/domain"
	"github.com/couchcryptid/ocpp-log-etl/internal/observability"
	"github.com/couchcryptid/ocpp-log-etl/internal/store"
)

var (
	ErrNoPorts             = errors.New("no tracked ports")
	ErrSnapshotUnavailable = errors.New("store snapshot unavailable")
	ErrBackupFailed        = errors.New("backup failed")
	ErrUpsertFailed        = errors.New("upsert failed")
	ErrPassInProgress      = errors.New("sync pass already in progress")
)

// LogSource fetches the current log page for one charging port.
type LogSource interface {
	FetchLogs(ctx context.Context, port domain.ChargerPort) ([]domain.RawLogLine, error)
}

// Publisher forwards net-new records downstream after they are stored.
type Publisher interface {
	Publish(ctx context.Context, records []domain.NormalizedRecord) error
}

// Locker guards a pass against concurrent runs. When acquired is false the
// lock is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, acquired bool, err error)
}

// Options carries the reconciler's tunables and optional collaborators.
type Options struct {
	// Window is how far back from the pass instant candidates are accepted.
	Window time.Duration
	// Concurrency bounds parallel port fetches. Values below 1 mean 1.
	Concurrency int
	// Interval separates passes in Run.
	Interval time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock

	Publisher Publisher
	Locker    Locker
}

// Reconciler runs sync passes: fetch, normalize, snapshot, backup, reconcile
// and upsert.
type Reconciler struct {
	ports  store.PortRegistry
	source LogSource
	store  store.Store

	publisher   Publisher
	locker      Locker
	clock       clockwork.Clock
	window      time.Duration
	concurrency int
	interval    time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	last    atomic.Pointer[PassStatus]
}

// New creates a Reconciler over the given registry, log source and store.
func New(ports store.PortRegistry, source LogSource, st store.Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Reconciler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reconciler{
		ports:       ports,
		source:      source,
		store:       st,
		publisher:   opts.Publisher,
		locker:      opts.Locker,
		clock:       opts.Clock,
		window:      opts.Window,
		concurrency: opts.Concurrency,
		interval:    opts.Interval,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once a pass has completed successfully.
func (r *Reconciler) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no sync pass has completed yet")
	}
	return nil
}

// LastPass returns the status of the most recent pass that got past the run
// lock. ok is false until one has finished.
func (r *Reconciler) LastPass() (status PassStatus, ok bool) {
	if p := r.last.Load(); p != nil {
		return *p, true
	}
	return PassStatus{}, false
}

// Run executes a pass immediately and then once per interval until the
// context is cancelled. Pass failures are logged and do not stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started", "interval", r.interval, "window", r.window)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunPass(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, ErrPassInProgress) {
				r.logger.Info("sync pass skipped", "reason", err)
			} else {
				r.logger.Error("sync pass failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunPass performs one sync pass. The returned report is populated as far as
// the pass progressed, even on error.
func (r *Reconciler) RunPass(ctx context.Context) (PassReport, error) {
	now := r.clock.Now()
	report := PassReport{RunID: uuid.NewString(), StartedAt: now}
	logger := r.logger.With("run_id", report.RunID)

	if r.locker != nil {
		unlock, acquired, err := r.locker.TryLock(ctx)
		if err != nil {
			r.metrics.PassesTotal.WithLabelValues("failed").Inc()
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			r.metrics.PassesTotal.WithLabelValues("skipped").Inc()
			return report, ErrPassInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release run lock failed", "error", err)
			}
		}()
	}

	r.metrics.PassRunning.Set(1)
	defer r.metrics.PassRunning.Set(0)

	err := r.runPass(ctx, now, &report, logger)
	report.Duration = r.clock.Since(now)
	r.metrics.PassDuration.Observe(report.Duration.Seconds())
	status := report.Status(err)
	r.last.Store(&status)

	if err != nil {
		r.metrics.PassesTotal.WithLabelValues("failed").Inc()
		return report, err
	}

	r.metrics.PassesTotal.WithLabelValues("success").Inc()
	r.metrics.LastSuccess.Set(float64(now.Unix()))
	r.ready.Store(true)
	logger.Info("sync pass complete", report.LogAttrs()...)
	return report, nil
}

func (r *Reconciler) runPass(ctx context.Context, now time.Time, report *PassReport, logger *slog.Logger) error {
	ports, err := r.ports.ListPorts(ctx)
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		return ErrNoPorts
	}
	report.Ports = len(ports)

	lines, failures := r.fetchAll(ctx, ports)
	if err := ctx.Err(); err != nil {
		return err
	}
	report.LogsFetched = len(lines)
	report.FetchFailures = failures
	r.metrics.LogsFetched.Add(float64(len(lines)))
	r.metrics.FetchFailures.Add(float64(len(failures)))
	for _, f := range failures {
		logger.Warn("fetch failed, skipping port", "port_id", f.PortID, "error", f.Err)
	}

	candidates := domain.NormalizeAll(lines)
	for _, c := range candidates {
		if c.ParseFailure == nil {
			continue
		}
		report.ParseFailures++
		r.metrics.ParseFailures.WithLabelValues(string(c.ParseFailure.Reason)).Inc()
		logger.Debug("frame not decoded", "port_id", c.PortID, "reason", c.ParseFailure.Reason, "error", c.ParseFailure.Err)
	}

	snapshot, err := r.store.Select(ctx, store.TableLogs, store.Filter{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	report.SnapshotSize = len(snapshot)
	r.metrics.SnapshotSize.Set(float64(len(snapshot)))

	if err := r.backup(ctx, snapshot); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	report.BackedUp = len(snapshot)

	res := domain.ReconcileDetailed(candidates, domain.NewKnownIDs(snapshot), domain.NewTimeWindow(now, r.window))
	report.OutOfWindow = res.OutOfWindow
	report.Known = res.Known
	report.Duplicates = res.Duplicates
	r.metrics.RecordsSkipped.WithLabelValues("out_of_window").Add(float64(res.OutOfWindow))
	r.metrics.RecordsSkipped.WithLabelValues("known").Add(float64(res.Known))
	r.metrics.RecordsSkipped.WithLabelValues("duplicate").Add(float64(res.Duplicates))

	if len(res.Records) == 0 {
		return nil
	}
	if err := r.store.Upsert(ctx, store.TableLogs, res.Records, store.ConflictKey); err != nil {
		return fmt.Errorf("%w: %w", ErrUpsertFailed, err)
	}
	report.Upserted = len(res.Records)
	r.metrics.RecordsUpserted.Add(float64(len(res.Records)))

	r.publish(ctx, res.Records, report, logger)
	return nil
}

// backup replaces the backup table with the snapshot. An empty snapshot keeps
// the previous backup.
func (r *Reconciler) backup(ctx context.Context, snapshot []domain.NormalizedRecord) error {
	if len(snapshot) == 0 {
		return nil
	}
	if err := r.store.Delete(ctx, store.TableBackup, store.Filter{}); err != nil {
		return fmt.Errorf("clear %s: %w", store.TableBackup, err)
	}
	if err := r.store.Insert(ctx, store.TableBackup, snapshot); err != nil {
		return fmt.Errorf("copy snapshot to %s: %w", store.TableBackup, err)
	}
	return nil
}

func (r *Reconciler) publish(ctx context.Context, records []domain.NormalizedRecord, report *PassReport, logger *slog.Logger) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, records); err != nil {
		r.metrics.PublishErrors.Inc()
		report.PublishError = err
		logger.Warn("publish failed, records are stored", "error", err, "count", len(records))
		return
	}
	report.Published = len(records)
	r.metrics.RecordsPublished.Add(float64(len(records)))
}

// fetchAll fetches every port on a bounded pool. Lines come back in port
// order regardless of completion order.
func (r *Reconciler) fetchAll(ctx context.Context, ports []domain.ChargerPort) ([]domain.RawLogLine, []FetchFailure) {
	results := make([][]domain.RawLogLine, len(ports))
	errs := make([]error, len(ports))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, p := range ports {
		g.Go(func() error {
			results[i], errs[i] = r.source.FetchLogs(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var (
		lines    []domain.RawLogLine
		failures []FetchFailure
	)
	for i, p := range ports {
		if errs[i] != nil {
			failures = append(failures, FetchFailure{PortID: p.PortID, Err: errs[i]})
			continue
		}
		lines = append(lines, results[i]...)
	}
	return lines, failures
}
