package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/librarium/circulation/internal/api/metrics"
	"github.com/librarium/circulation/internal/core/ports"
)

const defaultSweepBatch = 100

// OverdueSweeper periodically moves active borrows past their due date to
// overdue. It lives outside the borrow/return path; each transition is a
// conditional update, so a return racing the sweep simply wins.
type OverdueSweeper struct {
	borrows  ports.BorrowRepository
	interval time.Duration
	batch    int
	log      zerolog.Logger
	now      func() time.Time
}

func NewOverdueSweeper(borrows ports.BorrowRepository, interval time.Duration, batch int, log zerolog.Logger) *OverdueSweeper {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &OverdueSweeper{
		borrows:  borrows,
		interval: interval,
		batch:    batch,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the sweeper.
func (s *OverdueSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("overdue sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("overdue sweep failed")
			}
		}
	}
}

// SweepOnce processes one batch and returns how many borrows were marked.
func (s *OverdueSweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.OverdueSweepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	due, err := s.borrows.ListOverdue(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, b := range due {
		if !b.IsOverdueAt(now) {
			continue
		}
		ok, err := s.borrows.MarkOverdue(ctx, b.ID, now)
		if err != nil {
			s.log.Warn().Err(err).Str("borrow_id", b.ID).Msg("failed to mark borrow overdue")
			continue
		}
		if !ok {
			continue
		}
		marked++
		metrics.OverdueMarkedTotal.Inc()
		s.log.Info().
			Str("borrow_id", b.ID).
			Str("user_id", b.UserID).
			Str("book_id", b.BookID).
			Time("due_date", b.DueDate).
			Msg("borrow marked overdue")
	}
	return marked, nil
}
