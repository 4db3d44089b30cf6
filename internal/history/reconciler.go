package history

import (
	"context"
	"log"
	"sync"
	"time"

	flowerrors "github.com/restocorp/answerflow/internal/errors"
)

// DefaultRefreshDelay is the settle delay before the authoritative re-fetch.
const DefaultRefreshDelay = 500 * time.Millisecond

// refreshTimeout bounds one deferred re-fetch.
const refreshTimeout = 10 * time.Second

// Source serves the authoritative history for a user, newest first.
type Source interface {
	History(ctx context.Context, userID string) ([]Entry, error)
	ClearHistory(ctx context.Context, userID string) error
}

// Options configures a Reconciler.
type Options struct {
	// RefreshDelay defaults to DefaultRefreshDelay.
	RefreshDelay time.Duration

	// Now defaults to time.Now. Optimistic IDs and timestamps derive from it.
	Now func() time.Time

	// OnRefresh, if set, is called after every deferred refresh with the new
	// list, or with a REFRESH_FAILED error when local state was kept.
	OnRefresh func(entries []Entry, err error)
}

// Reconciler merges optimistic local entries with the server's history.
// It is safe for concurrent use.
type Reconciler struct {
	src       Source
	userID    string
	delay     time.Duration
	now       func() time.Time
	onRefresh func([]Entry, error)

	mu      sync.Mutex
	entries []Entry
	timers  map[*time.Timer]struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewReconciler creates a Reconciler for one user.
func NewReconciler(src Source, userID string, opts Options) *Reconciler {
	r := &Reconciler{
		src:       src,
		userID:    userID,
		delay:     opts.RefreshDelay,
		now:       opts.Now,
		onRefresh: opts.OnRefresh,
		timers:    make(map[*time.Timer]struct{}),
	}
	if r.delay <= 0 {
		r.delay = DefaultRefreshDelay
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RecordAnswered prepends an optimistic entry and schedules the deferred
// refresh. The entry is visible to Entries as soon as this returns.
// ctx only carries values to the refresh; its cancellation does not stop it.
func (r *Reconciler) RecordAnswered(ctx context.Context, a Answered) Entry {
	now := r.now()
	e := Entry{
		ID:             now.UnixMilli(),
		Question:       a.Question,
		Answer:         a.Answer,
		Timestamp:      now.UTC().Format(time.RFC3339),
		Role:           a.Role,
		Specialization: a.Specialization,
		Cached:         a.Cached,
		Optimistic:     true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]Entry{e}, r.entries...)
	if r.closed {
		return e
	}

	refreshCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(r.delay, func() {
		defer r.wg.Done()

		r.mu.Lock()
		delete(r.timers, t)
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		r.refresh(refreshCtx)
	})
	r.timers[t] = struct{}{}
	return e
}

func (r *Reconciler) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	entries, err := r.Load(ctx)
	if err != nil {
		log.Printf("history: %v", err)
	}
	if r.onRefresh != nil {
		r.onRefresh(entries, err)
	}
}

// Load fetches the server's list and replaces local state with it.
// On failure local state is left untouched and a REFRESH_FAILED error is returned.
func (r *Reconciler) Load(ctx context.Context) ([]Entry, error) {
	entries, err := r.src.History(ctx, r.userID)
	if err != nil {
		return nil, flowerrors.NewRefreshFailed(r.userID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]Entry(nil), entries...)
	return r.snapshot(0, len(r.entries)), nil
}

// Clear deletes the user's history on the server, then locally.
func (r *Reconciler) Clear(ctx context.Context) error {
	if err := r.src.ClearHistory(ctx, r.userID); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
	return nil
}

// Entries returns a copy of the current list, newest first.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(0, len(r.entries))
}

// PreviousQuestions returns entries [1, 4) of the current list: up to three
// questions asked before the newest one.
func (r *Reconciler) PreviousQuestions() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(1, 4)
}

// snapshot copies entries[lo:hi], clamped. Caller holds r.mu.
func (r *Reconciler) snapshot(lo, hi int) []Entry {
	hi = min(hi, len(r.entries))
	if lo >= hi {
		return []Entry{}
	}
	out := make([]Entry, hi-lo)
	copy(out, r.entries[lo:hi])
	return out
}

// Wait blocks until every scheduled refresh has run or been cancelled.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Close cancels pending refreshes and waits for running ones.
// RecordAnswered still records after Close but schedules nothing.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	for t := range r.timers {
		if t.Stop() {
			r.wg.Done()
		}
		delete(r.timers, t)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
