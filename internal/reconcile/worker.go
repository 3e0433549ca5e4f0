package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/audit"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	sweepBatchSize  = 100
	maxExpiryRetry  = 3
	eventGroupLimit = 4
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	ListSellableEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	SumActiveReservations(ctx context.Context, eventID uuid.UUID, now time.Time) (int, error)
	CountAdmittableTickets(ctx context.Context, eventID uuid.UUID) (int, error)
	SetIssuedCount(ctx context.Context, eventID uuid.UUID, count int) error
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload any) error
}

// Expirer is the reservation lifecycle's expiry operation; the sweep never
// mutates reservations directly.
type Expirer interface {
	Expire(ctx context.Context, reservationID uuid.UUID) error
}

// Worker is the self-healing backstop: it expires lapsed holds, then
// recomputes each sellable event's issued count from the source tables and
// overwrites it on drift. Its effect is idempotent convergence, so
// overlapping runs are harmless.
type Worker struct {
	store     Store
	lifecycle Expirer
	sink      audit.Sink
	clock     clock.Clock
	logger    observability.Logger
}

func NewWorker(store Store, lifecycle Expirer, sink audit.Sink, clk clock.Clock, logger observability.Logger) *Worker {
	return &Worker{store: store, lifecycle: lifecycle, sink: sink, clock: clk, logger: logger}
}

func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reconciliation pass failed", err)
			}
		}
	}
}

// RunOnce performs one sweep-then-reconcile pass.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.sweep(ctx)
	return w.reconcile(ctx)
}

func (w *Worker) sweep(ctx context.Context) {
	now := w.clock.Now()
	expired, err := w.store.ListExpiredReservations(ctx, now, sweepBatchSize)
	if err != nil {
		w.logger.Error("failed to list expired reservations", err)
		return
	}
	for _, res := range expired {
		if err := w.expireWithRetry(ctx, res.ID); err != nil {
			w.logger.WithField("reservation_id", res.ID).Error("failed to expire reservation after retries", err)
		}
	}
}

func (w *Worker) expireWithRetry(ctx context.Context, id uuid.UUID) error {
	var err error
	for i := 0; i < maxExpiryRetry; i++ {
		if err = w.lifecycle.Expire(ctx, id); err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func (w *Worker) reconcile(ctx context.Context) error {
	events, err := w.store.ListSellableEvents(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(eventGroupLimit)
	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			return w.reconcileEvent(gctx, ev.ID)
		})
	}
	return g.Wait()
}

func (w *Worker) reconcileEvent(ctx context.Context, eventID uuid.UUID) error {
	now := w.clock.Now()
	var oldCount, newCount int
	corrected := false

	err := w.store.WithTx(ctx, func(txCtx context.Context) error {
		ev, err := w.store.GetEvent(txCtx, eventID)
		if err != nil {
			return err
		}
		active, err := w.store.SumActiveReservations(txCtx, eventID, now)
		if err != nil {
			return err
		}
		admittable, err := w.store.CountAdmittableTickets(txCtx, eventID)
		if err != nil {
			return err
		}

		actual := active + admittable
		if actual == ev.IssuedCount {
			return nil
		}

		if err := w.store.SetIssuedCount(txCtx, eventID, actual); err != nil {
			return err
		}
		oldCount, newCount = ev.IssuedCount, actual
		corrected = true

		return w.store.EnqueueEvent(txCtx, "event", eventID, "event.capacity_reconciled", map[string]any{
			"old": ev.IssuedCount,
			"new": actual,
		})
	})
	if err != nil {
		return err
	}

	if corrected {
		observability.DriftCorrections.Inc()
		w.logger.WithFields(map[string]interface{}{
			"event_id": eventID,
			"old":      oldCount,
			"new":      newCount,
		}).Warn("corrected capacity drift")
		w.sink.Record(ctx, uuid.Nil, audit.ActionCapacityReconciled, "EVENT", eventID, map[string]any{
			"old_value": oldCount,
			"new_value": newCount,
			"reason":    "mismatch detected by reconciler",
		})
	}
	return nil
}
