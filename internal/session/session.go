// Package session holds the per-user state of the client: who is asking,
// with which profile, and the pipeline that turns a backend answer into
// what the user sees.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/restocorp/answerflow/internal/backend"
	flowerrors "github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
	"github.com/restocorp/answerflow/internal/markdown"
	"github.com/restocorp/answerflow/internal/suggest"
)

// Profile is the user's role and specialization, sent with every question.
type Profile struct {
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
}

// Backend is everything a Session needs from the answer service.
// *backend.Client implements it.
type Backend interface {
	Ask(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error)
	AskLibrary(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error)
	history.Source
	suggest.Fallback
}

// Display receives what should be shown. Calls are serialized and made with
// the session lock held, so implementations must not call back into the Session.
type Display interface {
	ShowAnswer(requestID, html string)
	ShowSuggestions(requestID string, questions []string)
	ShowPrevious(entries []history.Entry)
}

// Options configures a Session.
type Options struct {
	UserID         string
	Profile        Profile
	Markdown       markdown.Options
	MaxAnswerChars int
	RefreshDelay   time.Duration
	Suggest        suggest.Options
}

// Session is created once per user session and discarded at its end.
type Session struct {
	UserID string

	backend  Backend
	display  Display
	enricher *markdown.Enricher
	history  *history.Reconciler
	suggest  *suggest.Channel
	maxChars int

	mu      sync.Mutex
	profile Profile
	latest  string // request ID of the answer on screen

	wg sync.WaitGroup
}

// New creates a Session. A nil display discards everything.
func New(be Backend, display Display, opts Options) *Session {
	if display == nil {
		display = discard{}
	}
	s := &Session{
		UserID:   opts.UserID,
		backend:  be,
		display:  display,
		enricher: markdown.NewEnricher(opts.Markdown),
		suggest:  suggest.NewChannel(be, opts.Suggest),
		maxChars: opts.MaxAnswerChars,
		profile:  opts.Profile,
	}
	s.history = history.NewReconciler(be, opts.UserID, history.Options{
		RefreshDelay: opts.RefreshDelay,
		OnRefresh:    s.onHistoryRefresh,
	})
	return s
}

// Profile returns the current profile.
func (s *Session) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile replaces the profile used for subsequent questions.
func (s *Session) SetProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// History exposes the session's history view.
func (s *Session) History() *history.Reconciler {
	return s.history
}

// AskOptions selects the endpoint of a question.
type AskOptions struct {
	// QuestionID picks a question from the library (POST /ask_library).
	// Nil asks free text (POST /ask).
	QuestionID *int64
}

// Answer is a displayed answer.
type Answer struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
	Raw       string `json:"raw"`
	HTML      string `json:"html"`
	Cached    bool   `json:"cached"`
}

// Ask sends question, displays the rendered answer, records it in history and
// starts fetching suggestions in the background. Suggestions are shown only
// if no newer answer has been displayed by the time they arrive.
func (s *Session) Ask(ctx context.Context, question string, opts AskOptions) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, flowerrors.NewInvalidRequest("question is required")
	}
	profile := s.Profile()

	req := backend.AskRequest{
		Question:       question,
		UserID:         s.UserID,
		Role:           profile.Role,
		Specialization: profile.Specialization,
		QuestionID:     opts.QuestionID,
	}
	var (
		resp *backend.AskResponse
		err  error
	)
	if opts.QuestionID != nil {
		resp, err = s.backend.AskLibrary(ctx, req)
	} else {
		resp, err = s.backend.Ask(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	sreq := suggest.NewRequest(question, resp.Answer, profile.Role, profile.Specialization, s.maxChars)
	ans := &Answer{
		RequestID: sreq.ID,
		Question:  question,
		Raw:       resp.Answer,
		HTML:      s.enricher.HTML(resp.Answer),
		Cached:    resp.Cached,
	}

	s.mu.Lock()
	s.latest = sreq.ID
	s.display.ShowAnswer(sreq.ID, ans.HTML)
	s.mu.Unlock()

	s.history.RecordAnswered(ctx, history.Answered{
		Question:       question,
		Answer:         resp.Answer,
		Role:           profile.Role,
		Specialization: profile.Specialization,
		Cached:         resp.Cached,
	})
	s.showPrevious()

	fetchCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(s.suggest.Fetch(fetchCtx, sreq))
	}()

	return ans, nil
}

func (s *Session) deliver(res suggest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.RequestID != s.latest {
		log.Printf("session %s: dropping suggestions for superseded request %s", s.UserID, res.RequestID)
		return
	}
	s.display.ShowSuggestions(res.RequestID, res.Questions)
}

func (s *Session) onHistoryRefresh(_ []history.Entry, err error) {
	if err != nil {
		return
	}
	s.showPrevious()
}

func (s *Session) showPrevious() {
	prev := s.history.PreviousQuestions()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display.ShowPrevious(prev)
}

// LoadHistory fetches the full history, as on screen load.
func (s *Session) LoadHistory(ctx context.Context) ([]history.Entry, error) {
	entries, err := s.history.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.showPrevious()
	return entries, nil
}

// ClearHistory deletes the user's history on the server and locally.
func (s *Session) ClearHistory(ctx context.Context) error {
	if err := s.history.Clear(ctx); err != nil {
		return err
	}
	s.showPrevious()
	return nil
}

// Wait blocks until background suggestion fetches and history refreshes finish.
func (s *Session) Wait() {
	s.wg.Wait()
	s.history.Wait()
}

// Close waits for suggestion fetches and cancels pending history refreshes.
func (s *Session) Close() {
	s.wg.Wait()
	s.history.Close()
}

type discard struct{}

func (discard) ShowAnswer(string, string)        {}
func (discard) ShowSuggestions(string, []string) {}
func (discard) ShowPrevious([]history.Entry)     {}
