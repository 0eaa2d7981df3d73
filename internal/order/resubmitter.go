package order

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"order-engine/internal/model"
)

// Resubmitter periodically retries local-only orders whose remote submission
// failed for a transient reason.
type Resubmitter struct {
	orch        *Orchestrator
	interval    time.Duration
	batchSize   int
	maxAttempts int
	workers     int
	logger      *slog.Logger
	now         func() time.Time
}

// NewResubmitter creates a resubmitter polling every interval.
func NewResubmitter(orch *Orchestrator, interval time.Duration, logger *slog.Logger) *Resubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resubmitter{
		orch:        orch,
		interval:    interval,
		batchSize:   20,
		maxAttempts: 5,
		workers:     4,
		logger:      logger,
		now:         time.Now,
	}
}

// Run polls until ctx is done.
func (r *Resubmitter) Run(ctx context.Context) error {
	r.logger.Info("resubmitter started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resubmitter stopped")
			return nil
		case <-ticker.C:
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("resubmission pass failed", "error", err)
			continue
		}
		if n > 0 {
			r.logger.Info("orders resubmitted", "count", n)
		}
	}
}

// RunOnce processes one batch and returns how many orders reached the remote.
// Orders in a batch are submitted concurrently, at most workers at a time.
func (r *Resubmitter) RunOnce(ctx context.Context) (int, error) {
	orders, err := r.orch.repo.ListLocalOnly(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, err
	}

	var submitted atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, ord := range orders {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.resubmit(gctx, ord) {
				submitted.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	return int(submitted.Load()), nil
}

// resubmit retries one order and reports whether it reached the remote.
// Failures are recorded on the order, never returned.
func (r *Resubmitter) resubmit(ctx context.Context, ord *model.Order) bool {
	tenant, ok := r.orch.tenants[ord.TenantID]
	if !ok || !tenant.RemoteOrders || r.orch.remote == nil {
		if err := r.orch.repo.RecordAttempt(ctx, ord.ID, ReasonRemoteDisabled, false); err != nil {
			r.logger.Error("recording attempt failed", "order_id", ord.ID, "error", err)
		}
		return false
	}

	if err := r.orch.submitRemote(ctx, ord); err != nil {
		reason := "resubmission failed at " + reasonTime(r.now()) + ": " + errorReason(err)
		if recErr := r.orch.repo.RecordAttempt(context.WithoutCancel(ctx), ord.ID, reason, resubmittable(err)); recErr != nil {
			r.logger.Error("recording attempt failed", "order_id", ord.ID, "error", recErr)
		}
		r.logger.Warn("resubmission failed", "order_id", ord.ID, "tenant", ord.TenantID, "error", err)
		return false
	}

	r.logger.Info("order resubmitted",
		"order_id", ord.ID,
		"tenant", ord.TenantID,
		"remote_id", ord.RemoteID,
		"status", ord.Status,
	)
	return true
}
