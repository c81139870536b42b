package batches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-dialer/internal/audit"
	"voice-dialer/internal/metrics"
	"voice-dialer/pkg/logger"
)

// Policy tunes how fast a batch is dialed.
type Policy struct {
	// Pacing is the wait between two consecutive items of one batch.
	Pacing time.Duration
	// MaxItems caps how many numbers one batch may carry.
	MaxItems int
}

const defaultItemTimeout = time.Minute

func DefaultPolicy() Policy {
	return Policy{Pacing: 500 * time.Millisecond, MaxItems: 1000}
}

// ItemProcessor is satisfied by *Processor.
type ItemProcessor interface {
	Process(ctx context.Context, batch BatchUpload, item CallItem) (Outcome, error)
}

// Orchestrator drives one batch from PENDING/PROCESSING to a terminal status.
//
// Items of a batch are processed strictly one after another, in creation order,
// each exactly once. Counters are incremented atomically after every item and
// the batch is COMPLETED only when successful+failed == total. A failure in the
// store (not in an item) marks the batch FAILED and leaves the rest PENDING.
type Orchestrator struct {
	store     Store
	processor ItemProcessor
	policy    Policy
	audit     *audit.Service
	metrics   *metrics.Metrics
	clock     func() time.Time
	wait      func(ctx context.Context, d time.Duration) error
	// itemTimeout bounds one item's dial and writes.
	itemTimeout time.Duration
}

func NewOrchestrator(store Store, processor ItemProcessor, policy Policy, auditSvc *audit.Service, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		store:     store,
		processor: processor,
		policy:    policy,
		audit:     auditSvc,
		metrics:   m,
		clock:     time.Now,
		wait:      sleepCtx,

		itemTimeout: defaultItemTimeout,
	}
}

// Run processes every PENDING item of the batch. It returns the batch as stored at exit.
// A cancelled ctx stops between items without failing the batch so it can be resumed.
func (o *Orchestrator) Run(ctx context.Context, batchID string) (BatchUpload, error) {
	log := logger.From(ctx).With("batch_id", batchID)

	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return BatchUpload{}, fmt.Errorf("load batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		log.Debug("batch already finished", "status", batch.Status)
		return batch, nil
	}

	o.metrics.BatchRunning(1)
	defer o.metrics.BatchRunning(-1)

	if batch.Status == BatchPending {
		if _, err := o.store.SetBatchStatus(ctx, batch.ID, BatchProcessing, o.now()); err != nil {
			return o.fail(ctx, log, batch, fmt.Errorf("mark processing: %w", err))
		}
		batch.Status = BatchProcessing
	}

	items, err := o.store.ListPendingItems(ctx, batch.ID)
	if err != nil {
		return o.fail(ctx, log, batch, fmt.Errorf("list pending items: %w", err))
	}
	log.Info("batch run started", "pending_items", len(items), "total", batch.TotalCalls)

	counters := batch.Counters()
	counted := false
	for i, item := range items {
		if i > 0 {
			if err := o.wait(ctx, o.policy.Pacing); err != nil {
				log.Warn("batch run interrupted", "processed", i, "err", err)
				return batch, err
			}
		}
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		next, applied, err := o.runItem(ctx, log, batch, item)
		if err != nil {
			return o.fail(ctx, log, batch, err)
		}
		if applied {
			counters, counted = next, true
		}
	}

	if !counted {
		fresh, err := o.store.GetBatch(ctx, batch.ID)
		if err != nil {
			return o.fail(ctx, log, batch, fmt.Errorf("reload batch: %w", err))
		}
		counters = fresh.Counters()
	}
	batch.TotalCalls, batch.SuccessfulCalls, batch.FailedCalls = counters.Total, counters.Successful, counters.Failed

	if !counters.Done() {
		// Items marked before a crash may never have been counted.
		if counters, err = o.recount(ctx, log, batch, counters); err != nil {
			return o.fail(ctx, log, batch, err)
		}
		batch.SuccessfulCalls, batch.FailedCalls = counters.Successful, counters.Failed
		if !counters.Done() {
			log.Warn("batch left incomplete", "successful", counters.Successful, "failed", counters.Failed, "total", counters.Total)
			return batch, nil
		}
	}

	if _, err := o.store.SetBatchStatus(ctx, batch.ID, BatchCompleted, o.now()); err != nil {
		return o.fail(ctx, log, batch, fmt.Errorf("mark completed: %w", err))
	}
	batch.Status = BatchCompleted
	o.metrics.BatchFinished(string(BatchCompleted))
	o.record(ctx, log, audit.EventBatchCompleted, batch, "batch completed")
	log.Info("batch completed", "successful", counters.Successful, "failed", counters.Failed)
	return batch, nil
}

// runItem processes one item and counts it. Once started, an item runs to completion
// on a context detached from ctx so shutdown cannot leave a placed call unrecorded.
// Cancellation is observed between items only.
func (o *Orchestrator) runItem(ctx context.Context, log *slog.Logger, batch BatchUpload, item CallItem) (Counters, bool, error) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.itemTimeout)
	defer cancel()

	out, err := o.processor.Process(ictx, batch, item)
	if err != nil {
		return Counters{}, false, err
	}
	if !out.Applied {
		log.Warn("item already processed, not counted", "item_id", item.ID)
		return Counters{}, false, nil
	}
	if out.Success {
		o.metrics.ItemProcessed("scheduled")
	} else {
		o.metrics.ItemProcessed("failed")
		log.Info("call item failed", "item_id", item.ID, "position", item.Position, "err", out.Message)
	}

	counters, err := o.store.IncrementCounter(ictx, batch.ID, out.Success, o.now())
	if err != nil {
		return Counters{}, false, fmt.Errorf("increment counter: %w", err)
	}
	return counters, true, nil
}

// recount repairs counters from item statuses once no item is left PENDING.
func (o *Orchestrator) recount(ctx context.Context, log *slog.Logger, batch BatchUpload, counters Counters) (Counters, error) {
	pending, err := o.store.ListPendingItems(ctx, batch.ID)
	if err != nil {
		return counters, fmt.Errorf("list pending items: %w", err)
	}
	if len(pending) > 0 {
		return counters, nil
	}
	fixed, err := o.store.RecountBatch(ctx, batch.ID, o.now())
	if err != nil {
		return counters, fmt.Errorf("recount batch: %w", err)
	}
	log.Warn("batch counters recounted", "successful", fixed.Successful, "failed", fixed.Failed, "total", fixed.Total)
	return fixed, nil
}

// fail marks the batch FAILED. Unprocessed items stay PENDING.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, batch BatchUpload, cause error) (BatchUpload, error) {
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		return batch, cause
	}
	log.Error("batch failed", "err", cause)

	// The run context may already be the reason for the failure.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := o.store.SetBatchStatus(wctx, batch.ID, BatchFailed, o.now()); err != nil {
		log.Error("mark batch failed", "err", err)
	} else {
		batch.Status = BatchFailed
	}
	o.metrics.BatchFinished(string(BatchFailed))
	o.record(wctx, log, audit.EventBatchFailed, batch, cause.Error())
	return batch, fmt.Errorf("batch %s failed: %w", batch.ID, cause)
}

func (o *Orchestrator) record(ctx context.Context, log *slog.Logger, typ audit.EventType, b BatchUpload, message string) {
	if o.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]int{
		"totalCalls":      b.TotalCalls,
		"successfulCalls": b.SuccessfulCalls,
		"failedCalls":     b.FailedCalls,
	})
	if err := o.audit.LogBatch(ctx, typ, b.ProfileID, b.ID, message, string(meta)); err != nil {
		log.Warn("audit append failed", "type", typ, "err", err)
	}
}

func (o *Orchestrator) now() time.Time { return o.clock().UTC() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
