// Package worker runs the periodic sweeps that age documents: sent invoices
// past their due date become overdue, sent quotes past their validity date
// expire. On Postgres the sweeps are River periodic jobs; on SQLite a local
// ticker runs them in-process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// Sweeper applies the time-driven status changes and reports how many
// documents changed.
type Sweeper interface {
	MarkOverdueFactures(ctx context.Context, now time.Time) (int, error)
	ExpireDevis(ctx context.Context, now time.Time) (int, error)
}

// OverdueSweepArgs is the periodic job marking invoices overdue.
type OverdueSweepArgs struct{}

// Kind returns the unique job type identifier.
func (OverdueSweepArgs) Kind() string { return "facture_overdue_sweep" }

// InsertOpts disables retries: the next period runs the sweep again.
func (OverdueSweepArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{MaxAttempts: 1} }

// ExpirySweepArgs is the periodic job expiring quotes.
type ExpirySweepArgs struct{}

// Kind returns the unique job type identifier.
func (ExpirySweepArgs) Kind() string { return "devis_expiry_sweep" }

// InsertOpts disables retries: the next period runs the sweep again.
func (ExpirySweepArgs) InsertOpts() river.InsertOpts { return river.InsertOpts{MaxAttempts: 1} }

type sweep struct {
	kind string
	run  func(ctx context.Context, now time.Time) (int, error)
}

func sweeps(s Sweeper) []sweep {
	return []sweep{
		{kind: OverdueSweepArgs{}.Kind(), run: s.MarkOverdueFactures},
		{kind: ExpirySweepArgs{}.Kind(), run: s.ExpireDevis},
	}
}

func (sw sweep) do(ctx context.Context, now time.Time, log *slog.Logger) error {
	n, err := sw.run(ctx, now)
	if err != nil {
		log.ErrorContext(ctx, "sweep failed", "job", sw.kind, "changed", n, "error", err)
		return fmt.Errorf("%s: %w", sw.kind, err)
	}
	if n > 0 {
		log.InfoContext(ctx, "sweep done", "job", sw.kind, "changed", n)
	} else {
		log.DebugContext(ctx, "sweep done", "job", sw.kind, "changed", 0)
	}
	return nil
}

type overdueWorker struct {
	river.WorkerDefaults[OverdueSweepArgs]
	sweep sweep
	log   *slog.Logger
}

func (w *overdueWorker) Work(ctx context.Context, _ *river.Job[OverdueSweepArgs]) error {
	return w.sweep.do(ctx, time.Now(), w.log)
}

type expiryWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	sweep sweep
	log   *slog.Logger
}

func (w *expiryWorker) Work(ctx context.Context, _ *river.Job[ExpirySweepArgs]) error {
	return w.sweep.do(ctx, time.Now(), w.log)
}

// Queue is the interface exposed by both the River client and the local
// ticker.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options tunes the queue.
type Options struct {
	// Concurrency is the River worker count.
	Concurrency int
	// Interval separates two runs of each sweep.
	Interval time.Duration
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": a River client backed by pool, with both sweeps
//     registered as periodic jobs that also run on start.
//   - anything else: a local ticker running the sweeps in-process.
//
// pool may be nil when driver != "postgres".
func New(_ context.Context, pool *pgxpool.Pool, driver string, opts Options, s Sweeper, log *slog.Logger) (Queue, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	all := sweeps(s)
	if driver != "postgres" {
		return &Ticker{sweeps: all, interval: opts.Interval, log: log, now: time.Now}, nil
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &overdueWorker{sweep: all[0], log: log})
	river.AddWorker(workers, &expiryWorker{sweep: all[1], log: log})

	every := river.PeriodicInterval(opts.Interval)
	onStart := &river.PeriodicJobOpts{RunOnStart: true}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: max(opts.Concurrency, 1)},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(every, func() (river.JobArgs, *river.InsertOpts) {
				return OverdueSweepArgs{}, nil
			}, onStart),
			river.NewPeriodicJob(every, func() (river.JobArgs, *river.InsertOpts) {
				return ExpirySweepArgs{}, nil
			}, onStart),
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// Ticker runs the sweeps in-process, once on start and then every
// interval. Used when River is unavailable (DB_DRIVER=sqlite).
type Ticker struct {
	sweeps   []sweep
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the sweep loop. It stops when ctx is cancelled or Stop is
// called.
func (t *Ticker) Start(ctx context.Context) error {
	if t.cancel != nil {
		return errors.New("ticker already started")
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.log.Info("worker queue running locally (sqlite driver; River requires postgres)", "interval", t.interval)
	go t.loop(ctx)
	return nil
}

// Stop ends the loop and waits for a running sweep to return.
func (t *Ticker) Stop(ctx context.Context) error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)
	t.runAll(ctx)
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.runAll(ctx)
		}
	}
}

// runAll runs every sweep; one failing does not skip the others.
func (t *Ticker) runAll(ctx context.Context) {
	now := t.now()
	for _, sw := range t.sweeps {
		if ctx.Err() != nil {
			return
		}
		_ = sw.do(ctx, now, t.log)
	}
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
