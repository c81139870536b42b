package batches

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voice-dialer/internal/metrics"
	"voice-dialer/pkg/logger"
)

// Runner runs one batch to completion. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, batchID string) (BatchUpload, error)
}

// Limiter caps how many batches run at once across processes. *utils.ConcurrencyCap implements it.
type Limiter interface {
	Acquire(ctx context.Context, poll time.Duration) error
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

type DispatcherConfig struct {
	Workers int
	// SweepInterval is how often unfinished batches missing from the queue are re-enqueued.
	// A batch is only considered orphaned when it has not been updated for this long.
	SweepInterval time.Duration
	// DequeueTimeout bounds one blocking dequeue so workers notice shutdown.
	DequeueTimeout time.Duration
	// SlotTTL is the lifetime of an in-flight slot; it is refreshed at half this period.
	SlotTTL time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = time.Minute
	}
	if out.DequeueTimeout <= 0 {
		out.DequeueTimeout = 5 * time.Second
	}
	if out.SlotTTL <= 0 {
		out.SlotTTL = 2 * time.Minute
	}
	return out
}

// Dispatcher runs queued batches on a fixed pool of workers, detached from any request.
// Batches run concurrently with each other; each batch runs on exactly one worker.
type Dispatcher struct {
	queue   Queue
	runner  Runner
	store   Store
	limiter Limiter
	metrics *metrics.Metrics
	cfg     DispatcherConfig
	log     *slog.Logger
	clock   func() time.Time

	mu      sync.Mutex
	running map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(queue Queue, runner Runner, store Store, limiter Limiter, m *metrics.Metrics, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		store:   store,
		limiter: limiter,
		metrics: m,
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "batch_dispatcher"),
		clock:   time.Now,
		running: map[string]struct{}{},
	}
}

// Start restores unacknowledged jobs, runs one reconciliation sweep and starts the workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.cancel != nil {
		return errors.New("dispatcher already started")
	}
	n, err := d.queue.Restore(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		d.log.Info("restored unacknowledged batch jobs", "count", n)
	}

	ctx, cancel := context.WithCancel(logger.With(ctx, d.log))
	d.cancel = cancel

	if _, err := d.Sweep(ctx); err != nil {
		d.log.Warn("initial reconciliation sweep failed", "err", err)
	}

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.wg.Add(1)
	go d.sweepLoop(ctx)
	return nil
}

// Stop cancels workers and waits for them, or for ctx to end. In-flight batches stop
// between items and stay queued for the next start.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, n int) {
	defer d.wg.Done()
	log := d.log.With("worker", n)
	for ctx.Err() == nil {
		job, err := d.queue.Dequeue(ctx, d.cfg.DequeueTimeout)
		if errors.Is(err, ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "err", err)
			_ = sleepCtx(ctx, time.Second)
			continue
		}
		d.handle(ctx, log, job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, log *slog.Logger, job Job) {
	log = log.With("batch_id", job.BatchID)
	ack := func() {
		if err := d.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
			log.Error("ack failed", "err", err)
		}
	}

	if !d.markRunning(job.BatchID) {
		log.Warn("duplicate job for running batch dropped")
		ack()
		return
	}
	defer d.unmarkRunning(job.BatchID)

	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx, 250*time.Millisecond); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("in-flight slot unavailable, running uncapped", "err", err)
		} else {
			stopRefresh := d.refreshSlot(ctx, log)
			defer func() {
				stopRefresh()
				if err := d.limiter.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release in-flight slot", "err", err)
				}
			}()
		}
	}

	_, err := d.runner.Run(logger.With(ctx, log), job.BatchID)
	if err != nil && ctx.Err() != nil {
		// Shutdown: leave the job unacknowledged so Restore picks it up.
		log.Info("batch run interrupted by shutdown")
		return
	}
	if err != nil {
		log.Error("batch run failed", "err", err)
	}
	ack()
}

func (d *Dispatcher) refreshSlot(ctx context.Context, log *slog.Logger) func() {
	stop := make(chan struct{})
	t := time.NewTicker(d.cfg.SlotTTL / 2)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := d.limiter.Refresh(ctx); err != nil {
					log.Warn("refresh in-flight slot", "err", err)
				}
			}
		}
	}()
	return func() { close(stop) }
}

func (d *Dispatcher) markRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.running[id]; ok {
		return false
	}
	d.running[id] = struct{}{}
	return true
}

func (d *Dispatcher) unmarkRunning(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, id)
}

func (d *Dispatcher) isRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[id]
	return ok
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	t := time.NewTicker(d.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := d.Sweep(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn("reconciliation sweep failed", "err", err)
			}
		}
	}
}

// sweepLimit bounds how many batches one sweep re-enqueues.
const sweepLimit = 100

// Sweep re-enqueues unfinished batches that are neither queued nor running here and
// have not progressed for a sweep interval. It returns the re-enqueued ids.
func (d *Dispatcher) Sweep(ctx context.Context) ([]string, error) {
	stale := d.clock().UTC().Add(-d.cfg.SweepInterval)
	batches, err := d.store.ListUnfinishedBatches(ctx, stale, sweepLimit)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	members, err := d.queue.Members(ctx)
	if err != nil {
		return nil, err
	}
	queued := make(map[string]struct{}, len(members))
	for _, id := range members {
		queued[id] = struct{}{}
	}

	var requeued []string
	for _, b := range batches {
		if _, ok := queued[b.ID]; ok || d.isRunning(b.ID) {
			continue
		}
		if err := d.queue.Enqueue(ctx, b.ID); err != nil {
			return requeued, err
		}
		d.metrics.JobRequeued()
		d.log.Info("orphaned batch re-enqueued", "batch_id", b.ID, "status", b.Status)
		requeued = append(requeued, b.ID)
	}
	return requeued, nil
}

// Requeue enqueues one unfinished batch on operator request.
func (d *Dispatcher) Requeue(ctx context.Context, batchID string) error {
	b, err := d.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status.IsTerminal() {
		return ErrAlreadyFinished
	}
	if d.isRunning(batchID) {
		return nil
	}
	members, err := d.queue.Members(ctx)
	if err != nil {
		return err
	}
	for _, id := range members {
		if id == batchID {
			return nil
		}
	}
	d.metrics.JobRequeued()
	return d.queue.Enqueue(ctx, batchID)
}
