package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/librarium/circulation/internal/api/metrics"
	"github.com/librarium/circulation/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256

	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 30 * time.Second
)

// OutstandingChecker reports whether any borrow still holds a book.
type OutstandingChecker interface {
	HasOutstanding(ctx context.Context, bookID string) (bool, error)
}

type releaseRequest struct {
	bookID string
	since  time.Time
}

// pendingRelease is one book waiting for its next attempt inside a worker.
type pendingRelease struct {
	since   time.Time
	attempt int
	delay   time.Duration
	due     time.Time
}

// ReleaseRetrier keeps retrying availability releases that failed inline.
// Book ids are sharded onto a fixed set of workers with consistent hashing,
// so releases for the same book are handled by one goroutine. Each worker
// schedules its books independently; a book in backoff never delays another.
type ReleaseRetrier struct {
	workers   []chan releaseRequest
	gate      ports.AvailabilityGate
	borrows   OutstandingChecker
	log       zerolog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
	now       func() time.Time
}

// NewReleaseRetrier creates a ReleaseRetrier with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewReleaseRetrier(numWorkers int, gate ports.AvailabilityGate, borrows OutstandingChecker, log zerolog.Logger) *ReleaseRetrier {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	r := &ReleaseRetrier{
		workers:   make([]chan releaseRequest, numWorkers),
		gate:      gate,
		borrows:   borrows,
		log:       log,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for i := range r.workers {
		r.workers[i] = make(chan releaseRequest, channelBuffer)
	}
	return r
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (r *ReleaseRetrier) Start(ctx context.Context) {
	for i, ch := range r.workers {
		go r.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a book id to the worker responsible for it. It never blocks:
// when the worker channel is full the request is dropped and the book is
// left to the availability reconciler.
func (r *ReleaseRetrier) Enqueue(bookID string) {
	idx := r.shardIndex(bookID)
	ch := r.workers[idx]
	select {
	case ch <- releaseRequest{bookID: bookID, since: r.now()}:
	default:
		metrics.ReleaseRetriesTotal.WithLabelValues("dropped").Inc()
		r.log.Warn().
			Str("book_id", bookID).
			Int("worker_id", idx).
			Msg("release queue full, book left to the reconciler")
	}
	metrics.ReleaseQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(ch)))
}

// shardIndex maps a book id deterministically to a worker index.
func (r *ReleaseRetrier) shardIndex(bookID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bookID))
	return int(h.Sum32() % uint32(len(r.workers)))
}

func (r *ReleaseRetrier) runWorker(ctx context.Context, id int, ch <-chan releaseRequest) {
	label := strconv.Itoa(id)
	pending := map[string]*pendingRelease{}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, ok := nextDue(pending)
		if ok {
			resetTimer(timer, time.Until(next))
		} else {
			resetTimer(timer, time.Hour)
		}

		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				r.log.Error().
					Int("worker_id", id).
					Int("pending", len(pending)).
					Msg("shutdown before releases succeeded, left to the reconciler")
			}
			return
		case req := <-ch:
			metrics.ReleaseQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			p, exists := pending[req.bookID]
			if !exists {
				p = &pendingRelease{delay: r.baseDelay}
				pending[req.bookID] = p
			}
			// A later failure for the same book widens the window it may release.
			if req.since.After(p.since) {
				p.since = req.since
			}
			p.due = time.Time{}
		case <-timer.C:
		}

		now := time.Now()
		for bookID, p := range pending {
			if ctx.Err() != nil {
				break
			}
			if p.due.After(now) {
				continue
			}
			if r.attempt(ctx, id, bookID, p) {
				delete(pending, bookID)
			}
		}
	}
}

// attempt makes one release try and reports whether the book is settled.
func (r *ReleaseRetrier) attempt(ctx context.Context, workerID int, bookID string, p *pendingRelease) bool {
	p.attempt++

	held, err := r.borrows.HasOutstanding(ctx, bookID)
	if err == nil && held {
		metrics.ReleaseRetriesTotal.WithLabelValues("superseded").Inc()
		r.log.Info().Str("book_id", bookID).Msg("book lent again, release skipped")
		return true
	}

	var released bool
	if err == nil {
		released, err = r.gate.ReleaseIfHeldBefore(ctx, bookID, p.since)
	}
	if err == nil {
		if released {
			metrics.ReleaseRetriesTotal.WithLabelValues("success").Inc()
			r.log.Info().Str("book_id", bookID).Int("attempt", p.attempt).Msg("book released after retry")
		} else {
			metrics.ReleaseRetriesTotal.WithLabelValues("superseded").Inc()
			r.log.Info().Str("book_id", bookID).Msg("book already released or lent again")
		}
		return true
	}

	metrics.ReleaseRetriesTotal.WithLabelValues("failed").Inc()
	r.log.Warn().Err(err).
		Str("book_id", bookID).
		Int("worker_id", workerID).
		Int("attempt", p.attempt).
		Dur("next_in", p.delay).
		Msg("release retry failed")

	p.due = time.Now().Add(p.delay)
	p.delay *= 2
	if p.delay > r.maxDelay {
		p.delay = r.maxDelay
	}
	return false
}

// nextDue returns the earliest due time among pending releases.
func nextDue(pending map[string]*pendingRelease) (time.Time, bool) {
	var next time.Time
	found := false
	for _, p := range pending {
		if !found || p.due.Before(next) {
			next = p.due
			found = true
		}
	}
	return next, found
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
