// Package suggest fetches follow-up questions for an answered question. It
// tries the low-latency websocket stream first and falls back to one HTTP
// request when the stream does not answer within the timeout. Exactly one
// outcome is delivered per request.
package suggest

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/restocorp/answerflow/internal/backend"
)

// DefaultMaxAnswerChars is how much of the bot answer is sent along.
const DefaultMaxAnswerChars = 2000

// Source reports which transport produced a Result.
type Source string

const (
	SourceNone   Source = "none"
	SourceStream Source = "stream"
	SourceHTTP   Source = "http"
)

// Request is one suggestion request, built once per displayed answer.
// ID identifies the request so a caller can drop results of superseded ones.
type Request struct {
	ID             string
	UserQuestion   string
	BotAnswer      string
	Role           string
	Specialization string
}

// NewRequest mints a request ID and truncates answer to maxAnswerChars runes
// (DefaultMaxAnswerChars when <= 0).
func NewRequest(question, answer, role, specialization string, maxAnswerChars int) Request {
	if maxAnswerChars <= 0 {
		maxAnswerChars = DefaultMaxAnswerChars
	}
	return Request{
		ID:             newRequestID(),
		UserQuestion:   question,
		BotAnswer:      truncateRunes(answer, maxAnswerChars),
		Role:           role,
		Specialization: specialization,
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (r Request) payload() backend.SuggestRequest {
	return backend.SuggestRequest{
		UserQuestion:   r.UserQuestion,
		BotAnswer:      r.BotAnswer,
		Role:           r.Role,
		Specialization: r.Specialization,
	}
}

// Result is the single outcome of a Fetch.
//
// A successful fetch that produced nothing has Source set and no Questions
// ("no suggestions"). A failed fetch has Source == SourceNone and Err set;
// Err is informational and callers treat it the same as no suggestions.
type Result struct {
	RequestID string
	Questions []string
	Source    Source
	Err       error
}

// Empty reports whether there is nothing to display.
func (r Result) Empty() bool {
	return len(r.Questions) == 0
}

// capQuestions drops blank entries and keeps at most limit.
func capQuestions(questions []string, limit int) []string {
	out := make([]string, 0, min(len(questions), limit))
	for _, q := range questions {
		if len(out) == limit {
			break
		}
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
