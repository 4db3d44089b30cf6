package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/restocorp/answerflow/internal/answer"
	"github.com/restocorp/answerflow/internal/backend"
	"github.com/restocorp/answerflow/internal/config"
	"github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
	"github.com/restocorp/answerflow/internal/markdown"
	"github.com/restocorp/answerflow/internal/session"
	"github.com/restocorp/answerflow/internal/suggest"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	backend  session.Backend
	cfg      *config.Config
	enricher *markdown.Enricher
	suggest  *suggest.Channel
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(be session.Backend, cfg *config.Config) *Handlers {
	return &Handlers{
		backend: be,
		cfg:     cfg,
		enricher: markdown.NewEnricher(markdown.Options{
			ExtraBullets: cfg.ExtraBullets,
			AllowRawHTML: cfg.AllowRawHTML,
		}),
		suggest: suggest.NewChannel(be, suggest.Options{
			StreamURL:     cfg.StreamURL,
			StreamTimeout: cfg.StreamTimeout(),
			MaxQuestions:  cfg.MaxSuggestions,
		}),
	}
}

// Request types for each tool

// NormalizeRequest represents the arguments for answer_normalize.
type NormalizeRequest struct {
	Text string `json:"text"`
}

// RenderRequest represents the arguments for answer_render.
type RenderRequest struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

// AskRequest represents the arguments for answer_ask.
type AskRequest struct {
	Question       string `json:"question"`
	UserID         string `json:"user_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	QuestionID     *int64 `json:"question_id,omitempty"`
}

// SuggestRequest represents the arguments for suggest_questions.
type SuggestRequest struct {
	UserQuestion   string `json:"user_question"`
	BotAnswer      string `json:"bot_answer"`
	Role           string `json:"role,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// HistoryListRequest represents the arguments for history_list.
type HistoryListRequest struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// HistoryClearRequest represents the arguments for history_clear.
type HistoryClearRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Confirm bool   `json:"confirm"`
}

// Output types

// AskOutput is the result of answer_ask.
type AskOutput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	HTML     string `json:"html"`
	Cached   bool   `json:"cached"`
}

// SuggestOutput is the result of suggest_questions.
type SuggestOutput struct {
	RequestID string   `json:"request_id"`
	Questions []string `json:"questions"`
	Source    string   `json:"source"`
	Error     string   `json:"error,omitempty"`
}

// HistoryItem is one history_list entry.
type HistoryItem struct {
	ID             int64  `json:"id"`
	Preview        string `json:"preview"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	Timestamp      string `json:"timestamp"`
	Role           string `json:"role"`
	Specialization string `json:"specialization,omitempty"`
	Cached         bool   `json:"cached,omitempty"`
}

// HistoryListOutput is the result of history_list.
type HistoryListOutput struct {
	UserID string        `json:"user_id"`
	Items  []HistoryItem `json:"items"`
	Total  int           `json:"total"`
}

// Handler implementations

// HandleNormalize handles the answer_normalize tool call.
func (h *Handlers) HandleNormalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NormalizeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(map[string]any{
		"normalized": answer.Normalize(input.Text),
	})
}

// HandleRender handles the answer_render tool call.
func (h *Handlers) HandleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	format := markdown.Format(input.Format)
	switch format {
	case "":
		format = markdown.FormatHTML
	case markdown.FormatHTML, markdown.FormatText, markdown.FormatCommonMark:
	default:
		return errorResult(errors.NewInvalidRequest("format must be html, text or commonmark")), nil
	}

	return successResult(map[string]any{
		"format": string(format),
		"output": h.enricher.Render(input.Text, format),
	})
}

// HandleAsk handles the answer_ask tool call.
func (h *Handlers) HandleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return errorResult(errors.NewInvalidRequest("question is required")), nil
	}
	userID := pick(input.UserID, h.cfg.UserID)
	if userID == "" {
		return errorResult(errors.NewInvalidRequest("user_id is required (argument or config)")), nil
	}

	breq := backend.AskRequest{
		Question:       question,
		UserID:         userID,
		Role:           pick(input.Role, h.cfg.Role),
		Specialization: pick(input.Specialization, h.cfg.Specialization),
		QuestionID:     input.QuestionID,
	}
	var resp *backend.AskResponse
	if input.QuestionID != nil {
		resp, err = h.backend.AskLibrary(ctx, breq)
	} else {
		resp, err = h.backend.Ask(ctx, breq)
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(AskOutput{
		Question: question,
		Answer:   resp.Answer,
		HTML:     h.enricher.HTML(resp.Answer),
		Cached:   resp.Cached,
	})
}

// HandleSuggest handles the suggest_questions tool call.
func (h *Handlers) HandleSuggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SuggestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.UserQuestion) == "" {
		return errorResult(errors.NewInvalidRequest("user_question is required")), nil
	}

	sreq := suggest.NewRequest(input.UserQuestion, input.BotAnswer, input.Role, input.Specialization, h.cfg.MaxAnswerChars)
	res := h.suggest.Fetch(ctx, sreq)

	out := SuggestOutput{
		RequestID: res.RequestID,
		Questions: res.Questions,
		Source:    string(res.Source),
	}
	if res.Empty() {
		out.Questions = []string{}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return successResult(out)
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must not be negative")), nil
	}
	userID := pick(input.UserID, h.cfg.UserID)
	if userID == "" {
		return errorResult(errors.NewInvalidRequest("user_id is required (argument or config)")), nil
	}

	entries, err := h.backend.History(ctx, userID)
	if err != nil {
		return errorResult(err), nil
	}

	total := len(entries)
	if input.Limit > 0 && len(entries) > input.Limit {
		entries = entries[:input.Limit]
	}
	return successResult(HistoryListOutput{
		UserID: userID,
		Items:  historyItems(entries),
		Total:  total,
	})
}

// HandleHistoryClear handles the history_clear tool call.
func (h *Handlers) HandleHistoryClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if !input.Confirm {
		return errorResult(errors.NewInvalidRequest("confirm must be true")), nil
	}
	userID := pick(input.UserID, h.cfg.UserID)
	if userID == "" {
		return errorResult(errors.NewInvalidRequest("user_id is required (argument or config)")), nil
	}

	if err := h.backend.ClearHistory(ctx, userID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"user_id": userID,
		"cleared": true,
	})
}

func historyItems(entries []history.Entry) []HistoryItem {
	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{
			ID:             e.ID,
			Preview:        history.Preview(e.Question),
			Question:       e.Question,
			Answer:         e.Answer,
			Timestamp:      e.Timestamp,
			Role:           e.Role,
			Specialization: e.Specialization,
			Cached:         e.Cached,
		}
	}
	return items
}

func pick(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var fErr *errors.FlowError
	if stderrors.As(err, &fErr) {
		message := fErr.Message
		// Keep the context added by wrappers, e.g. "items[2]: ...".
		if full := err.Error(); full != fErr.Error() {
			message = strings.TrimSuffix(full, fErr.Error()) + fErr.Message
		}
		errorObj := map[string]any{
			"code":    fErr.Code,
			"message": message,
			"status":  fErr.Status,
		}
		if fErr.Code != errors.ErrInternal && fErr.Details != nil {
			errorObj["details"] = fErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
