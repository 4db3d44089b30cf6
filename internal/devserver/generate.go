package devserver

import (
	"context"
	"fmt"

	"github.com/restocorp/answerflow/internal/backend"
)

// AnswerRequest is what an Answerer gets to work with.
type AnswerRequest struct {
	Question       string
	Role           string
	Specialization string
}

// Answerer produces raw model output for a question.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

// Suggester produces follow-up questions for an answered question.
type Suggester interface {
	Suggest(ctx context.Context, req backend.SuggestRequest) ([]string, error)
}

// SampleAnswerer answers every question with the kind of loosely formatted
// markdown a model produces, so the client's normalizer has work to do.
type SampleAnswerer struct{}

func (SampleAnswerer) Answer(_ context.Context, req AnswerRequest) (string, error) {
	return fmt.Sprintf("**Question:** %s\n###Short answer\nIt depends on the %s and the %s.\n\n"+
		"##Steps\n1.Check the basics\n2.Try the simplest option first\n-- \n"+
		"*Answered by the development backend.*",
		req.Question, req.Role, req.Specialization), nil
}

// CannedQuestions are the follow-ups offered by CannedSuggester.
var CannedQuestions = []string{
	"Can you tell me more about this?",
	"What alternative approaches are there?",
	"What difficulties might come up?",
}

// CannedSuggester always offers CannedQuestions.
type CannedSuggester struct{}

func (CannedSuggester) Suggest(context.Context, backend.SuggestRequest) ([]string, error) {
	out := make([]string, len(CannedQuestions))
	copy(out, CannedQuestions)
	return out, nil
}
