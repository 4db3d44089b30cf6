// Package history keeps the client-side view of a user's question history:
// an optimistic entry shown immediately after an answer, replaced wholesale by
// the server's list once it settles.
package history

// Entry is one answered question.
type Entry struct {
	ID             int64  `json:"id"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	Timestamp      string `json:"timestamp"`
	Role           string `json:"role,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Cached         bool   `json:"cached,omitempty"`

	// Optimistic marks an entry minted locally that the server has not confirmed.
	Optimistic bool `json:"-"`
}

// Answered is the input of RecordAnswered.
type Answered struct {
	Question       string
	Answer         string
	Role           string
	Specialization string
	Cached         bool // answer came from the library cache
}

// PreviewLen is the number of runes of a question shown in the previous-questions list.
const PreviewLen = 100

// Preview shortens a question for display, appending "..." when it was cut.
func Preview(question string) string {
	runes := []rune(question)
	if len(runes) <= PreviewLen {
		return question
	}
	return string(runes[:PreviewLen]) + "..."
}
