// Package backend is the REST client for the answer service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	flowerrors "github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// AskRequest is the body of POST /ask and POST /ask_library.
// QuestionID is null for free-text questions.
type AskRequest struct {
	Question       string `json:"question"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
	QuestionID     *int64 `json:"question_id"`
}

// AskResponse is the answer payload. Cached is only set by /ask_library.
type AskResponse struct {
	Answer string `json:"answer"`
	Cached bool   `json:"cached"`
}

// SuggestRequest is the body of POST /suggest_questions; the stream channel
// sends the same fields.
type SuggestRequest struct {
	UserQuestion   string `json:"user_question"`
	BotAnswer      string `json:"bot_answer"`
	Role           string `json:"role"`
	Specialization string `json:"specialization"`
}

// Client talks to {base}/ask, /ask_library, /suggest_questions and /history.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a Client for baseURL, e.g. "https://example.org/api".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: normalizeBaseURL(baseURL),
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed != "" && !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask posts a free-text question.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, flowerrors.NewInvalidRequest("question is required")
	}
	var resp AskResponse
	if err := c.do(ctx, http.MethodPost, "/ask", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AskLibrary posts a question picked from the question library.
// The answer may come from the server's cache, reported in Cached.
func (c *Client) AskLibrary(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if req.QuestionID == nil {
		return nil, flowerrors.NewInvalidRequest("question_id is required for library questions")
	}
	var resp AskResponse
	if err := c.do(ctx, http.MethodPost, "/ask_library", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SuggestQuestions posts to the fallback suggestion endpoint. The body may be
// a bare JSON array of strings or an object with a "questions" array.
func (c *Client) SuggestQuestions(ctx context.Context, req SuggestRequest) ([]string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/suggest_questions", req, &raw); err != nil {
		return nil, err
	}
	questions, err := DecodeQuestions(raw)
	if err != nil {
		return nil, flowerrors.NewMalformedPayload("/suggest_questions", err)
	}
	return questions, nil
}

// DecodeQuestions accepts `["q1", ...]` or `{"questions": ["q1", ...]}`.
func DecodeQuestions(raw []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	switch trimmed[0] {
	case '[':
		var questions []string
		if err := json.Unmarshal(trimmed, &questions); err != nil {
			return nil, err
		}
		return questions, nil
	case '{':
		var wrapped struct {
			Questions *[]string `json:"questions"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Questions == nil {
			return nil, fmt.Errorf("object has no questions array")
		}
		return *wrapped.Questions, nil
	}
	return nil, fmt.Errorf("unexpected JSON value starting with %q", trimmed[0])
}

// History returns the user's answered questions, newest first.
func (c *Client) History(ctx context.Context, userID string) ([]history.Entry, error) {
	if userID == "" {
		return nil, flowerrors.NewInvalidRequest("user_id is required")
	}
	var entries []history.Entry
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(userID), nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// ClearHistory deletes the user's history.
func (c *Client) ClearHistory(ctx context.Context, userID string) error {
	if userID == "" {
		return flowerrors.NewInvalidRequest("user_id is required")
	}
	return c.do(ctx, http.MethodDelete, "/history/"+url.PathEscape(userID), nil, nil)
}

// do sends one JSON request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return flowerrors.NewInternal(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return flowerrors.NewInvalidRequest(fmt.Sprintf("create request: %v", err))
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return flowerrors.NewTransport(path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return flowerrors.NewTransport(path, resp.StatusCode, nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return flowerrors.NewMalformedPayload(path, err)
	}
	return nil
}
