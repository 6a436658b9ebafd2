package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/librarium/circulation/internal/api/metrics"
	"github.com/librarium/circulation/internal/core/ports"
)

const (
	defaultReconcileBatch = 100
	defaultReconcileGrace = 2 * time.Minute
)

// AvailabilityReconciler releases books left unavailable with no outstanding
// borrow, for example after a release retry was dropped or lost on restart.
// Books changed within the grace window are skipped so an in-flight borrow
// that has acquired the book but not yet stored its record is left alone.
type AvailabilityReconciler struct {
	books    ports.BookRepository
	borrows  OutstandingChecker
	gate     ports.AvailabilityGate
	interval time.Duration
	grace    time.Duration
	batch    int
	log      zerolog.Logger
	now      func() time.Time
}

func NewAvailabilityReconciler(
	books ports.BookRepository,
	borrows OutstandingChecker,
	gate ports.AvailabilityGate,
	interval, grace time.Duration,
	batch int,
	log zerolog.Logger,
) *AvailabilityReconciler {
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	return &AvailabilityReconciler{
		books:    books,
		borrows:  borrows,
		gate:     gate,
		interval: interval,
		grace:    grace,
		batch:    batch,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run reconciles once at startup and then every interval until ctx is
// cancelled. A non-positive interval runs the startup pass only.
func (r *AvailabilityReconciler) Run(ctx context.Context) {
	r.runOnce(ctx)

	if r.interval <= 0 {
		r.log.Info().Msg("periodic availability reconcile disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *AvailabilityReconciler) runOnce(ctx context.Context) {
	n, err := r.ReconcileOnce(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("availability reconcile failed")
		return
	}
	if n > 0 {
		r.log.Info().Int("released", n).Msg("availability reconcile finished")
	}
}

// ReconcileOnce processes one batch and returns how many books were released.
func (r *AvailabilityReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	before := r.now().Add(-r.grace)
	stranded, err := r.books.ListStranded(ctx, before, r.batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, b := range stranded {
		held, err := r.borrows.HasOutstanding(ctx, b.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("book_id", b.ID).Msg("failed to check outstanding borrows")
			continue
		}
		if held {
			continue
		}
		ok, err := r.gate.ReleaseIfHeldBefore(ctx, b.ID, before)
		if err != nil {
			r.log.Warn().Err(err).Str("book_id", b.ID).Msg("failed to release stranded book")
			continue
		}
		if !ok {
			continue
		}
		released++
		metrics.BooksReconciledTotal.Inc()
		r.log.Warn().Str("book_id", b.ID).Msg("stranded book released")
	}
	return released, nil
}
