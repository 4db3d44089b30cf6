package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/restocorp/answerflow/internal/errors"
)

type fakeSource struct {
	mu       sync.Mutex
	entries  []Entry
	err      error
	clearErr error
	calls    int
	cleared  int
}

func (f *fakeSource) History(ctx context.Context, userID string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]Entry(nil), f.entries...), nil
}

func (f *fakeSource) ClearHistory(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared++
	f.entries = nil
	return nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler(src Source, opts Options) *Reconciler {
	if opts.RefreshDelay == 0 {
		opts.RefreshDelay = 10 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewReconciler(src, "u1", opts)
}

func serverList() []Entry {
	return []Entry{
		{ID: 0, Question: "Q4", Answer: "A4", Timestamp: "2025-03-01T12:00:00Z"},
		{ID: 1, Question: "Q3", Answer: "A3", Timestamp: "2025-03-01T11:00:00Z"},
		{ID: 2, Question: "Q2", Answer: "A2", Timestamp: "2025-03-01T10:00:00Z"},
		{ID: 3, Question: "Q1", Answer: "A1", Timestamp: "2025-03-01T09:00:00Z"},
		{ID: 4, Question: "Q0", Answer: "A0", Timestamp: "2025-03-01T08:00:00Z"},
	}
}

func TestRecordAnswered_OptimisticThenAuthoritative(t *testing.T) {
	src := &fakeSource{entries: serverList()}
	r := newTestReconciler(src, Options{RefreshDelay: time.Hour})
	defer r.Close()

	e := r.RecordAnswered(context.Background(), Answered{
		Question: "Q4", Answer: "A4", Role: "chef", Specialization: "pastry", Cached: true,
	})
	assert.True(t, e.Optimistic)
	assert.Equal(t, fixedNow.UnixMilli(), e.ID)
	assert.Equal(t, "2025-03-01T12:00:00Z", e.Timestamp)

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, e, entries[0], "newest entry is the one just recorded")
	assert.Equal(t, 0, src.callCount(), "refresh must wait for the settle delay")

	got, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, serverList(), got)
	assert.Equal(t, serverList(), r.Entries())
}

func TestRecordAnswered_DeferredRefreshReplacesList(t *testing.T) {
	src := &fakeSource{entries: serverList()}
	var refreshed []Entry
	var refreshErr error
	r := newTestReconciler(src, Options{OnRefresh: func(entries []Entry, err error) {
		refreshed, refreshErr = entries, err
	}})
	defer r.Close()

	r.RecordAnswered(context.Background(), Answered{Question: "Q4", Answer: "A4"})
	r.Wait()

	assert.Equal(t, 1, src.callCount())
	assert.NoError(t, refreshErr)
	assert.Equal(t, serverList(), refreshed)

	entries := r.Entries()
	assert.Equal(t, serverList(), entries, "no duplicate optimistic entry may remain")
	for _, e := range entries {
		assert.False(t, e.Optimistic)
	}
}

func TestRecordAnswered_RefreshFailureKeepsOptimistic(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	var refreshErr error
	r := newTestReconciler(src, Options{OnRefresh: func(_ []Entry, err error) {
		refreshErr = err
	}})
	defer r.Close()

	e := r.RecordAnswered(context.Background(), Answered{Question: "Q", Answer: "A"})
	r.Wait()

	require.Error(t, refreshErr)
	assert.True(t, flowerrors.Is(refreshErr, flowerrors.ErrRefreshFailed))
	assert.Equal(t, []Entry{e}, r.Entries())
	assert.Equal(t, 1, src.callCount(), "no automatic retry")
}

func TestRecordAnswered_CancelledContextStillRefreshes(t *testing.T) {
	src := &fakeSource{entries: serverList()}
	r := newTestReconciler(src, Options{})
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r.RecordAnswered(ctx, Answered{Question: "Q4"})
	cancel()
	r.Wait()

	assert.Equal(t, serverList(), r.Entries())
}

func TestRecordAnswered_TwoQuestionsLastWriteWins(t *testing.T) {
	src := &fakeSource{entries: serverList()[1:]}
	r := newTestReconciler(src, Options{RefreshDelay: 50 * time.Millisecond})
	defer r.Close()

	r.RecordAnswered(context.Background(), Answered{Question: "first"})
	r.RecordAnswered(context.Background(), Answered{Question: "second"})

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Question)
	assert.Equal(t, "first", entries[1].Question)

	src.mu.Lock()
	src.entries = serverList()
	src.mu.Unlock()
	r.Wait()

	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, serverList(), r.Entries())
}

func TestPreviousQuestions(t *testing.T) {
	tests := []struct {
		name   string
		server []Entry
		want   []string
	}{
		{"empty", nil, []string{}},
		{"only newest", serverList()[:1], []string{}},
		{"two", serverList()[:2], []string{"Q3"}},
		{"skips newest and caps at three", serverList(), []string{"Q3", "Q2", "Q1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(&fakeSource{entries: tt.server}, Options{})
			defer r.Close()
			_, err := r.Load(context.Background())
			require.NoError(t, err)

			prev := r.PreviousQuestions()
			got := make([]string, len(prev))
			for i, e := range prev {
				got[i] = e.Question
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	r := newTestReconciler(&fakeSource{entries: serverList()}, Options{})
	defer r.Close()
	_, err := r.Load(context.Background())
	require.NoError(t, err)

	got := r.Entries()
	got[0].Question = "mutated"
	assert.Equal(t, "Q4", r.Entries()[0].Question)
}

func TestClear(t *testing.T) {
	src := &fakeSource{entries: serverList()}
	r := newTestReconciler(src, Options{})
	defer r.Close()
	_, err := r.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.Clear(context.Background()))
	assert.Empty(t, r.Entries())
	assert.Equal(t, 1, src.cleared)
}

func TestClear_FailureKeepsLocal(t *testing.T) {
	src := &fakeSource{entries: serverList(), clearErr: errors.New("boom")}
	r := newTestReconciler(src, Options{})
	defer r.Close()
	_, err := r.Load(context.Background())
	require.NoError(t, err)

	require.Error(t, r.Clear(context.Background()))
	assert.Len(t, r.Entries(), 5)
}

func TestClose_CancelsPendingRefresh(t *testing.T) {
	src := &fakeSource{entries: serverList()}
	r := newTestReconciler(src, Options{RefreshDelay: time.Hour})

	r.RecordAnswered(context.Background(), Answered{Question: "Q"})
	r.Close()

	assert.Equal(t, 0, src.callCount())
	assert.Len(t, r.Entries(), 1)

	// Recording after Close schedules nothing.
	r.RecordAnswered(context.Background(), Answered{Question: "Q2"})
	r.Wait()
	assert.Equal(t, 0, src.callCount())
	assert.Len(t, r.Entries(), 2)
}

func TestPreview(t *testing.T) {
	short := "How long do I rest a steak?"
	assert.Equal(t, short, Preview(short))

	exact := strings.Repeat("a", PreviewLen)
	assert.Equal(t, exact, Preview(exact))

	long := strings.Repeat("я", PreviewLen+20)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("я", PreviewLen)+"...", got)
}
