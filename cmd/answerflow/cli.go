package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"

	"github.com/restocorp/answerflow/internal/answer"
	"github.com/restocorp/answerflow/internal/backend"
	"github.com/restocorp/answerflow/internal/cache"
	"github.com/restocorp/answerflow/internal/config"
	"github.com/restocorp/answerflow/internal/db"
	"github.com/restocorp/answerflow/internal/devserver"
	"github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/history"
	"github.com/restocorp/answerflow/internal/markdown"
	"github.com/restocorp/answerflow/internal/session"
	"github.com/restocorp/answerflow/internal/suggest"
)

// maxStdinBytes bounds what normalize, render and suggest read from stdin.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "answerflow",
		Usage:   "Answer enrichment for the role-aware Q&A assistant",
		Version: Version,
		Commands: []*cli.Command{
			normalizeCmd(),
			renderCmd(cfg),
			askCmd(cfg),
			suggestCmd(cfg),
			historyCmd(cfg),
			serveCmd(cfg, baseDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// normalizeCmd creates the normalize command.
func normalizeCmd() *cli.Command {
	return &cli.Command{
		Name:  "normalize",
		Usage: "Normalize raw model output (reads text from stdin)",
		Action: func(c *cli.Context) error {
			text, err := requireStdin("text")
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintln(c.App.Writer, answer.Normalize(text))
			return nil
		},
	}
}

// renderCmd creates the render command.
func renderCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Normalize and render raw model output (reads text from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "html", Usage: "Output format: html|text|commonmark"},
			&cli.StringSliceFlag{Name: "extra-bullet", Usage: "Additional unordered list marker (repeatable)"},
			&cli.BoolFlag{Name: "allow-raw-html", Usage: "Pass single-element HTML chunks through unescaped"},
		},
		Action: func(c *cli.Context) error {
			format := markdown.Format(c.String("format"))
			switch format {
			case markdown.FormatHTML, markdown.FormatText, markdown.FormatCommonMark:
			default:
				return outputError(errors.NewInvalidRequest("format must be html, text or commonmark"))
			}

			text, err := requireStdin("text")
			if err != nil {
				return outputError(err)
			}

			opts := markdownOptions(cfg)
			opts.ExtraBullets = append(opts.ExtraBullets, c.StringSlice("extra-bullet")...)
			if c.Bool("allow-raw-html") {
				opts.AllowRawHTML = true
			}

			fmt.Fprintln(c.App.Writer, markdown.NewEnricher(opts).Render(text, format))
			return nil
		},
	}
}

// collector is the Display of a one-shot CLI session.
type collector struct {
	suggestions []string
	previous    []history.Entry
}

func (d *collector) ShowAnswer(string, string) {}

func (d *collector) ShowSuggestions(_ string, questions []string) {
	d.suggestions = questions
}

func (d *collector) ShowPrevious(entries []history.Entry) {
	d.previous = entries
}

// previousItem is one entry of the previous-questions list.
type previousItem struct {
	ID        int64  `json:"id"`
	Preview   string `json:"preview"`
	Timestamp string `json:"timestamp"`
}

// askOutput is what ask prints.
type askOutput struct {
	*session.Answer
	Suggestions []string       `json:"suggestions"`
	Previous    []previousItem `json:"previous"`
}

// askCmd creates the ask command.
func askCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question and print the enriched answer with suggestions",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID (defaults to config user_id)"},
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Role (defaults to config role)"},
			&cli.StringFlag{Name: "specialization", Aliases: []string{"s"}, Usage: "Specialization (defaults to config specialization)"},
			&cli.Int64Flag{Name: "question-id", Usage: "Ask a library question by ID"},
			&cli.BoolFlag{Name: "metrics", Usage: "Print suggestion metrics to stderr"},
		},
		Action: func(c *cli.Context) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return outputError(errors.NewInvalidRequest("question is required"))
			}
			userID := pick(c.String("user"), cfg.UserID)
			if userID == "" {
				return outputError(errors.NewInvalidRequest("user ID is required (--user or config user_id)"))
			}

			reg := prometheus.NewRegistry()
			display := &collector{}
			sess := session.New(backend.NewClient(cfg.BaseURL), display, session.Options{
				UserID: userID,
				Profile: session.Profile{
					Role:           pick(c.String("role"), cfg.Role),
					Specialization: pick(c.String("specialization"), cfg.Specialization),
				},
				Markdown:       markdownOptions(cfg),
				MaxAnswerChars: cfg.MaxAnswerChars,
				RefreshDelay:   cfg.RefreshDelay(),
				Suggest:        suggestOptions(cfg, reg),
			})
			defer sess.Close()

			var opts session.AskOptions
			if c.IsSet("question-id") {
				id := c.Int64("question-id")
				opts.QuestionID = &id
			}

			ans, err := sess.Ask(c.Context, question, opts)
			if err != nil {
				return outputError(err)
			}
			sess.Wait()

			if c.Bool("metrics") {
				if err := writeMetrics(c.App.ErrWriter, reg); err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			out := askOutput{
				Answer:      ans,
				Suggestions: display.suggestions,
				Previous:    make([]previousItem, 0, len(display.previous)),
			}
			if out.Suggestions == nil {
				out.Suggestions = []string{}
			}
			for _, e := range display.previous {
				out.Previous = append(out.Previous, previousItem{
					ID:        e.ID,
					Preview:   history.Preview(e.Question),
					Timestamp: e.Timestamp,
				})
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// suggestOutput is what suggest prints.
type suggestOutput struct {
	RequestID string   `json:"request_id"`
	Questions []string `json:"questions"`
	Source    string   `json:"source"`
	Error     string   `json:"error,omitempty"`
}

// suggestCmd creates the suggest command.
func suggestCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Fetch follow-up questions for an answer (answer via --answer or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "The user's question", Required: true},
			&cli.StringFlag{Name: "answer", Aliases: []string{"a"}, Usage: "The bot answer (reads stdin when omitted)"},
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Role (defaults to config role)"},
			&cli.StringFlag{Name: "specialization", Aliases: []string{"s"}, Usage: "Specialization (defaults to config specialization)"},
			&cli.BoolFlag{Name: "metrics", Usage: "Print suggestion metrics to stderr"},
		},
		Action: func(c *cli.Context) error {
			botAnswer := c.String("answer")
			if botAnswer == "" {
				text, err := requireStdin("answer")
				if err != nil {
					return outputError(err)
				}
				botAnswer = text
			}

			reg := prometheus.NewRegistry()
			channel := suggest.NewChannel(backend.NewClient(cfg.BaseURL), suggestOptions(cfg, reg))
			req := suggest.NewRequest(
				c.String("question"),
				botAnswer,
				pick(c.String("role"), cfg.Role),
				pick(c.String("specialization"), cfg.Specialization),
				cfg.MaxAnswerChars,
			)
			res := channel.Fetch(c.Context, req)

			if c.Bool("metrics") {
				if err := writeMetrics(c.App.ErrWriter, reg); err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			out := suggestOutput{
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
			return outputJSON(c.App.Writer, out)
		},
	}
}

// historyOutput is what history prints.
type historyOutput struct {
	UserID  string          `json:"user_id"`
	Items   []history.Entry `json:"items"`
	Total   int             `json:"total"`
	Cleared bool            `json:"cleared,omitempty"`
}

// historyCmd creates the history command.
func historyCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List or clear a user's answered questions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User ID (defaults to config user_id)"},
			&cli.BoolFlag{Name: "clear", Usage: "Delete the user's history"},
		},
		Action: func(c *cli.Context) error {
			userID := pick(c.String("user"), cfg.UserID)
			if userID == "" {
				return outputError(errors.NewInvalidRequest("user ID is required (--user or config user_id)"))
			}
			client := backend.NewClient(cfg.BaseURL)

			if c.Bool("clear") {
				if err := client.ClearHistory(c.Context, userID); err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, historyOutput{UserID: userID, Items: []history.Entry{}, Cleared: true})
			}

			entries, err := client.History(c.Context, userID)
			if err != nil {
				return outputError(err)
			}
			if entries == nil {
				entries = []history.Entry{}
			}
			return outputJSON(c.App.Writer, historyOutput{UserID: userID, Items: entries, Total: len(entries)})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
			&cli.BoolFlag{Name: "clear-cache", Usage: "Drop cached library answers before starting"},
		},
		Action: func(c *cli.Context) error {
			database, err := db.Init(baseDir)
			if err != nil {
				return outputError(err)
			}
			defer database.Close()
			db.ConfigurePool(database, cfg)

			answers, err := cache.New(cfg.RedisURL, cache.DefaultTTL)
			if err != nil {
				return outputError(err)
			}
			defer answers.Close()

			if c.Bool("clear-cache") {
				if err := answers.Clear(c.Context); err != nil {
					return outputError(err)
				}
			}

			srv := devserver.NewServer(database, answers, cfg, Version, c.String("bind"), c.Int("port"))
			if err := devserver.Run(srv); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// markdownOptions reads the renderer options from config.
func markdownOptions(cfg *config.Config) markdown.Options {
	return markdown.Options{
		ExtraBullets: append([]string(nil), cfg.ExtraBullets...),
		AllowRawHTML: cfg.AllowRawHTML,
	}
}

// suggestOptions reads the channel options from config and registers metrics on reg.
func suggestOptions(cfg *config.Config, reg prometheus.Registerer) suggest.Options {
	return suggest.Options{
		StreamURL:     cfg.StreamURL,
		StreamTimeout: cfg.StreamTimeout(),
		MaxQuestions:  cfg.MaxSuggestions,
		Metrics:       suggest.NewMetrics(reg),
	}
}

// writeMetrics prints every family gathered from reg in the text exposition format.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// pick returns value if non-empty, otherwise fallback.
func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// outputJSON outputs value as formatted JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var flowErr *errors.FlowError
	if stderrors.As(err, &flowErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", flowErr.Code, flowErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// requireStdin reads piped stdin and fails when it is absent or blank.
func requireStdin(what string) (string, error) {
	if !stdinHasData() {
		return "", errors.NewInvalidRequest(what + " must be piped via stdin")
	}
	text, err := readStdin(maxStdinBytes)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	if text == "" {
		return "", errors.NewInvalidRequest(what + " is required")
	}
	return text, nil
}
