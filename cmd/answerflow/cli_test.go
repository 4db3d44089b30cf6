package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/restocorp/answerflow/internal/config"
	"github.com/restocorp/answerflow/internal/db"
	"github.com/restocorp/answerflow/internal/devserver"
	"github.com/restocorp/answerflow/internal/errors"
)

// setupBackend starts a development backend and returns a config pointing at it.
func setupBackend(t *testing.T) *config.Config {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv := httptest.NewServer(devserver.NewHandler(database, devserver.Options{Version: "test"}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL + "/api"
	cfg.StreamURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.RefreshDelayMS = 10
	cfg.UserID = "cli-user"
	cfg.Role = "cook"
	cfg.Specialization = "pastry"
	return cfg
}

// runApp runs the CLI with args and returns what it wrote to stdout and stderr.
func runApp(t *testing.T, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	app := newCLIApp(cfg, t.TempDir())
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"answerflow"}, args...))
	return stdout.String(), stderr.String(), err
}

// withStdin replaces os.Stdin with a pipe carrying input for the duration of the test.
func withStdin(t *testing.T, input string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = oldStdin
		r.Close()
	})
	go func() {
		w.WriteString(input)
		w.Close()
	}()
}

// withArgs replaces os.Args for the duration of the test.
func withArgs(t *testing.T, args ...string) {
	t.Helper()
	oldArgs := os.Args
	os.Args = args
	t.Cleanup(func() { os.Args = oldArgs })
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"answerflow"}, false},
		{[]string{"answerflow", "ask"}, true},
		{[]string{"answerflow", "serve"}, true},
		{[]string{"answerflow", "normalize"}, true},
		{[]string{"answerflow", "--help"}, true},
		{[]string{"answerflow", "-v"}, true},
		{[]string{"answerflow", "unknown"}, false},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			withArgs(t, tt.args...)
			if got := isCLIMode(); got != tt.want {
				t.Errorf("isCLIMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"answerflow"}, false},
		{[]string{"answerflow", "help"}, true},
		{[]string{"answerflow", "-h"}, true},
		{[]string{"answerflow", "--version"}, true},
		{[]string{"answerflow", "ask"}, false},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			withArgs(t, tt.args...)
			if got := isHelpOrVersion(); got != tt.want {
				t.Errorf("isHelpOrVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCLIAppDescription(t *testing.T) {
	app := newCLIApp(config.DefaultConfig(), "")
	if app.Name != "answerflow" {
		t.Errorf("Name = %q", app.Name)
	}
	if app.Usage != "Answer enrichment for the role-aware Q&A assistant" {
		t.Errorf("Usage = %q", app.Usage)
	}
}

func TestReadStdinWithLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		withStdin(t, "  hello world \n")
		got, err := readStdin(1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "hello world" {
			t.Errorf("got %q, want %q", got, "hello world")
		}
	})

	t.Run("exactly at limit", func(t *testing.T) {
		withStdin(t, strings.Repeat("a", 50))
		got, err := readStdin(50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 50 {
			t.Errorf("len = %d, want 50", len(got))
		}
	})

	t.Run("over limit", func(t *testing.T) {
		withStdin(t, strings.Repeat("a", 51))
		if _, err := readStdin(50); err == nil {
			t.Fatal("expected error for oversized stdin")
		}
	})
}

func TestOutputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"flow error", errors.NewInvalidRequest("question is required"), "[INVALID_REQUEST] question is required"},
		{"wrapped flow error", fmt.Errorf("ask: %w", errors.NewRateLimited("u1")), "[RATE_LIMITED] "},
		{"plain error", stderrors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outputError(tt.err)
			var exitErr cli.ExitCoder
			if !stderrors.As(err, &exitErr) {
				t.Fatalf("expected cli.ExitCoder, got %T", err)
			}
			if exitErr.ExitCode() != 1 {
				t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
			}
			if !strings.HasPrefix(err.Error(), tt.want) {
				t.Errorf("message = %q, want prefix %q", err.Error(), tt.want)
			}
		})
	}
}

func TestCLINormalize(t *testing.T) {
	withStdin(t, "###Title\nbody")
	out, _, err := runApp(t, config.DefaultConfig(), "normalize")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if out != "### Title\n\nbody\n" {
		t.Errorf("output = %q", out)
	}
}

func TestCLIRender(t *testing.T) {
	t.Run("html", func(t *testing.T) {
		withStdin(t, "###Title\nbody")
		out, _, err := runApp(t, config.DefaultConfig(), "render")
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		if strings.TrimSpace(out) != "<h3>Title</h3><p>body</p>" {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("commonmark", func(t *testing.T) {
		withStdin(t, "###Title\nbody")
		out, _, err := runApp(t, config.DefaultConfig(), "render", "--format=commonmark")
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		if !strings.Contains(out, "<h3>Title</h3>") || !strings.Contains(out, "<p>body</p>") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("extra bullet", func(t *testing.T) {
		withStdin(t, "• one\n• two")
		out, _, err := runApp(t, config.DefaultConfig(), "render", "--extra-bullet=•")
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		if !strings.Contains(out, "<ul><li>one</li><li>two</li></ul>") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := runApp(t, config.DefaultConfig(), "render", "--format=pdf")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Fatalf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

func TestCLIAsk(t *testing.T) {
	cfg := setupBackend(t)

	out, _, err := runApp(t, cfg, "ask", "first question")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	var first struct {
		RequestID   string   `json:"request_id"`
		Question    string   `json:"question"`
		HTML        string   `json:"html"`
		Cached      bool     `json:"cached"`
		Suggestions []string `json:"suggestions"`
		Previous    []struct {
			Preview string `json:"preview"`
		} `json:"previous"`
	}
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("failed to parse output: %v\n%s", err, out)
	}
	if first.RequestID == "" {
		t.Error("expected request_id")
	}
	if first.Question != "first question" {
		t.Errorf("question = %q", first.Question)
	}
	if !strings.Contains(first.HTML, "<h3>Short answer</h3>") {
		t.Errorf("html = %q", first.HTML)
	}
	if !strings.Contains(first.HTML, "It depends on the cook and the pastry.") {
		t.Errorf("profile not sent: %q", first.HTML)
	}
	if len(first.Suggestions) != len(devserver.CannedQuestions) {
		t.Errorf("suggestions = %v", first.Suggestions)
	}
	if len(first.Previous) != 0 {
		t.Errorf("previous = %v, want none", first.Previous)
	}

	out, _, err = runApp(t, cfg, "ask", "--role=waiter", "second", "question")
	if err != nil {
		t.Fatalf("second ask failed: %v", err)
	}
	var second struct {
		Question string `json:"question"`
		HTML     string `json:"html"`
		Previous []struct {
			Preview string `json:"preview"`
		} `json:"previous"`
	}
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if second.Question != "second question" {
		t.Errorf("question = %q", second.Question)
	}
	if !strings.Contains(second.HTML, "the waiter and the pastry") {
		t.Errorf("role flag ignored: %q", second.HTML)
	}
	if len(second.Previous) != 1 || second.Previous[0].Preview != "first question" {
		t.Errorf("previous = %+v, want [first question]", second.Previous)
	}
}

func TestCLIAskLibrary(t *testing.T) {
	cfg := setupBackend(t)

	var cached []bool
	for i := 0; i < 2; i++ {
		out, _, err := runApp(t, cfg, "ask", "--question-id=7", "library question")
		if err != nil {
			t.Fatalf("ask %d failed: %v", i, err)
		}
		var resp struct {
			Cached bool `json:"cached"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		cached = append(cached, resp.Cached)
	}
	if cached[0] || !cached[1] {
		t.Errorf("cached = %v, want [false true]", cached)
	}
}

func TestCLIAskMetrics(t *testing.T) {
	cfg := setupBackend(t)

	_, stderr, err := runApp(t, cfg, "ask", "--metrics", "with metrics")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(stderr, `answerflow_suggestions_total{source="stream"} 1`) {
		t.Errorf("metrics output missing stream count:\n%s", stderr)
	}
}

func TestCLIAskValidation(t *testing.T) {
	cfg := setupBackend(t)

	if _, _, err := runApp(t, cfg, "ask"); err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("missing question: got %v", err)
	}

	cfg.UserID = ""
	if _, _, err := runApp(t, cfg, "ask", "hello"); err == nil || !strings.Contains(err.Error(), "user ID is required") {
		t.Errorf("missing user: got %v", err)
	}
}

func TestCLIAskBackendDown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1/api"
	cfg.UserID = "cli-user"

	_, _, err := runApp(t, cfg, "ask", "hello")
	if err == nil || !strings.Contains(err.Error(), "[TRANSPORT]") {
		t.Fatalf("expected TRANSPORT error, got %v", err)
	}
}

func TestCLISuggest(t *testing.T) {
	cfg := setupBackend(t)

	t.Run("stream", func(t *testing.T) {
		out, _, err := runApp(t, cfg, "suggest", "--question=How?", "--answer=Like this.")
		if err != nil {
			t.Fatalf("suggest failed: %v", err)
		}
		var resp suggestOutput
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if resp.Source != "stream" {
			t.Errorf("source = %q, want stream", resp.Source)
		}
		if len(resp.Questions) != 3 {
			t.Errorf("questions = %v", resp.Questions)
		}
		if resp.Error != "" {
			t.Errorf("unexpected error: %s", resp.Error)
		}
	})

	t.Run("http fallback with answer from stdin", func(t *testing.T) {
		httpOnly := *cfg
		httpOnly.StreamURL = ""
		withStdin(t, "Like this.")
		out, _, err := runApp(t, &httpOnly, "suggest", "--question=How?")
		if err != nil {
			t.Fatalf("suggest failed: %v", err)
		}
		var resp suggestOutput
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if resp.Source != "http" {
			t.Errorf("source = %q, want http", resp.Source)
		}
		if len(resp.Questions) != 3 {
			t.Errorf("questions = %v", resp.Questions)
		}
	})
}

func TestCLIHistory(t *testing.T) {
	cfg := setupBackend(t)

	for _, q := range []string{"one", "two"} {
		if _, _, err := runApp(t, cfg, "ask", q); err != nil {
			t.Fatalf("ask %q failed: %v", q, err)
		}
	}

	out, _, err := runApp(t, cfg, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var list historyOutput
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 {
		t.Fatalf("total = %d, items = %d, want 2", list.Total, len(list.Items))
	}
	if list.Items[0].Question != "two" {
		t.Errorf("newest first: items[0] = %q", list.Items[0].Question)
	}

	if _, _, err := runApp(t, cfg, "history", "--clear"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	out, _, err = runApp(t, cfg, "history", "--user=cli-user")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	list = historyOutput{}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if list.Total != 0 {
		t.Errorf("total after clear = %d, want 0", list.Total)
	}
}

func TestWarnUnknownDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"history_clear", "no_such_tool"}
	cfg.DisabledTypes = []string{"bogus"}
	// Only logs; must not panic on unknown names.
	warnUnknownDisabled(cfg)
}
