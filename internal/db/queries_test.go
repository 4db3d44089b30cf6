package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSaveExchangeAndHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, q := range []string{"Q1", "Q2", "Q3"} {
		err := SaveExchange(ctx, db, Exchange{
			UserID:         "u1",
			Question:       q,
			Answer:         "A" + q[1:],
			Role:           "cook",
			Specialization: "grill",
			Cached:         i == 1,
			At:             base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveExchange(%s) failed: %v", q, err)
		}
	}
	// Another user's history must not leak.
	if err := SaveExchange(ctx, db, Exchange{UserID: "u2", Question: "other", Answer: "x", At: base}); err != nil {
		t.Fatalf("SaveExchange(u2) failed: %v", err)
	}

	got, err := History(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	want := []history.Entry{
		{ID: 0, Question: "Q3", Answer: "A3", Timestamp: "2025-03-01 11:00:00", Role: "cook", Specialization: "grill"},
		{ID: 1, Question: "Q2", Answer: "A2", Timestamp: "2025-03-01 10:00:00", Role: "cook", Specialization: "grill", Cached: true},
		{ID: 2, Question: "Q1", Answer: "A1", Timestamp: "2025-03-01 09:00:00", Role: "cook", Specialization: "grill"},
	}
	if len(got) != len(want) {
		t.Fatalf("History len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveExchange_RequiresUser(t *testing.T) {
	db := openTestDB(t)
	err := SaveExchange(context.Background(), db, Exchange{Question: "Q"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestInsertMessageRejectsUnknownAuthor(t *testing.T) {
	db := openTestDB(t)
	err := insertMessage(context.Background(), db, &Message{UserID: "u1", Author: "system", Text: "x"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestListMessages_LimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		m := &Message{UserID: "u1", Author: AuthorUser, Text: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute).UnixMilli()}
		if err := insertMessage(ctx, db, m); err != nil {
			t.Fatalf("insertMessage failed: %v", err)
		}
		if m.ID == 0 {
			t.Fatalf("insertMessage did not set ID")
		}
	}

	msgs, err := ListMessages(ctx, db, "u1", 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	var texts string
	for _, m := range msgs {
		texts += m.Text
	}
	if texts != "cde" {
		t.Errorf("ListMessages texts = %q, want %q (newest three, oldest first)", texts, "cde")
	}
}

func TestGroupExchanges(t *testing.T) {
	at := base.UnixMilli()
	msgs := []Message{
		{ID: 1, Author: AuthorAssistant, Text: "orphan answer", CreatedAt: at},
		{ID: 2, Author: AuthorUser, Text: "unanswered", CreatedAt: at},
		{ID: 3, Author: AuthorUser, Text: "Q", Role: "r", CreatedAt: at},
		{ID: 4, Author: AuthorAssistant, Text: "A", Cached: true, CreatedAt: at},
		{ID: 5, Author: AuthorAssistant, Text: "extra", CreatedAt: at},
	}

	got := GroupExchanges(msgs)
	if len(got) != 2 {
		t.Fatalf("GroupExchanges len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Question != "Q" || got[0].Answer != "A" || !got[0].Cached || got[0].Role != "r" || got[0].ID != 3 {
		t.Errorf("newest entry = %+v", got[0])
	}
	if got[1].Question != "unanswered" || got[1].Answer != "" || got[1].ID != 2 {
		t.Errorf("older entry = %+v", got[1])
	}

	if empty := GroupExchanges(nil); len(empty) != 0 {
		t.Errorf("GroupExchanges(nil) = %+v, want empty", empty)
	}
}

func TestHistory_StableIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := SaveExchange(ctx, db, Exchange{UserID: "u1", Question: "first", Answer: "A1", At: base}); err != nil {
		t.Fatalf("SaveExchange failed: %v", err)
	}
	before, err := History(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("History len = %d, want 1", len(before))
	}
	firstID := before[0].ID

	if err := SaveExchange(ctx, db, Exchange{UserID: "u1", Question: "second", Answer: "A2", At: base.Add(time.Second)}); err != nil {
		t.Fatalf("SaveExchange failed: %v", err)
	}
	after, err := History(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("History len = %d, want 2", len(after))
	}
	if after[1].Question != "first" || after[1].ID != firstID {
		t.Errorf("first exchange = %+v, want ID %d", after[1], firstID)
	}
	if after[0].Question != "second" || after[0].ID == firstID {
		t.Errorf("second exchange = %+v, want an ID other than %d", after[0], firstID)
	}
}

func TestDeleteHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, u := range []string{"u1", "u1", "u2"} {
		if err := SaveExchange(ctx, db, Exchange{UserID: u, Question: "Q", Answer: "A"}); err != nil {
			t.Fatalf("SaveExchange failed: %v", err)
		}
	}

	n, err := DeleteHistory(ctx, db, "u1")
	if err != nil {
		t.Fatalf("DeleteHistory failed: %v", err)
	}
	if n != 4 {
		t.Errorf("DeleteHistory removed %d rows, want 4", n)
	}

	left, err := History(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("u1 history after delete = %+v", left)
	}
	other, err := History(ctx, db, "u2", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("u2 history len = %d, want 1", len(other))
	}
}
