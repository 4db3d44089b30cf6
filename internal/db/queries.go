package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
)

// Message authors.
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

// DefaultHistoryLimit is the number of most recent messages grouped into history.
const DefaultHistoryLimit = 100

// TimestampLayout formats history timestamps (UTC).
const TimestampLayout = "2006-01-02 15:04:05"

// Message is one row of message_history. CreatedAt is unix milliseconds.
type Message struct {
	ID             int64
	UserID         string
	Author         string
	Text           string
	Role           string
	Specialization string
	Cached         bool
	CreatedAt      int64
}

// Exchange is a question and its answer, stored as two messages.
type Exchange struct {
	UserID         string
	Question       string
	Answer         string
	Role           string
	Specialization string
	Cached         bool
	At             time.Time
}

// SaveExchange stores the question and the answer atomically.
func SaveExchange(ctx context.Context, db *sql.DB, ex Exchange) error {
	if ex.UserID == "" {
		return errors.NewInvalidRequest("user_id is required")
	}
	if ex.At.IsZero() {
		ex.At = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	at := ex.At.UnixMilli()
	rows := []Message{
		{UserID: ex.UserID, Author: AuthorUser, Text: ex.Question, Role: ex.Role, Specialization: ex.Specialization, CreatedAt: at},
		{UserID: ex.UserID, Author: AuthorAssistant, Text: ex.Answer, Role: ex.Role, Specialization: ex.Specialization, Cached: ex.Cached, CreatedAt: at},
	}
	for i := range rows {
		if err := insertMessage(ctx, tx, &rows[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, m *Message) error {
	if m.Author != AuthorUser && m.Author != AuthorAssistant {
		return errors.NewInvalidRequest("author must be user or assistant")
	}
	query := `
		INSERT INTO message_history (
			user_id, author, message, role, specialization, cached, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := ex.ExecContext(ctx, query,
		m.UserID, m.Author, m.Text, m.Role, m.Specialization, boolToInt(m.Cached), m.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}
	m.ID = id
	return nil
}

// ListMessages returns the user's most recent limit messages, oldest first.
// A limit <= 0 uses DefaultHistoryLimit.
func ListMessages(ctx context.Context, db *sql.DB, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `
		SELECT id, user_id, author, message, role, specialization, cached, created_at
		FROM (
			SELECT * FROM message_history
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var cached int
		if err := rows.Scan(&m.ID, &m.UserID, &m.Author, &m.Text, &m.Role, &m.Specialization, &cached, &m.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		m.Cached = cached != 0
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return msgs, nil
}

// History returns the user's question/answer pairs, newest first.
func History(ctx context.Context, db *sql.DB, userID string, limit int) ([]history.Entry, error) {
	msgs, err := ListMessages(ctx, db, userID, limit)
	if err != nil {
		return nil, err
	}
	return GroupExchanges(msgs), nil
}

// GroupExchanges pairs every user message with the assistant message directly
// after it. An unanswered question gets an empty answer; assistant messages
// without a question are skipped.
// msgs must be oldest first. The result is newest first; an entry's ID is the
// row ID of its question, so it stays the same as more exchanges are saved.
func GroupExchanges(msgs []Message) []history.Entry {
	var pairs []history.Entry
	for i, m := range msgs {
		if m.Author != AuthorUser {
			continue
		}
		e := history.Entry{
			ID:             m.ID,
			Question:       m.Text,
			Timestamp:      time.UnixMilli(m.CreatedAt).UTC().Format(TimestampLayout),
			Role:           m.Role,
			Specialization: m.Specialization,
		}
		if i+1 < len(msgs) && msgs[i+1].Author == AuthorAssistant {
			e.Answer = msgs[i+1].Text
			e.Cached = msgs[i+1].Cached
		}
		pairs = append(pairs, e)
	}

	out := make([]history.Entry, len(pairs))
	for i := range pairs {
		out[i] = pairs[len(pairs)-1-i]
	}
	return out
}

// DeleteHistory removes every message of the user and returns the number removed.
func DeleteHistory(ctx context.Context, db *sql.DB, userID string) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM message_history WHERE user_id = ?", userID)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
