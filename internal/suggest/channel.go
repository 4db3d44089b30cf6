package suggest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/restocorp/answerflow/internal/backend"
)

const (
	DefaultStreamTimeout = 5 * time.Second
	DefaultMaxQuestions  = 3
)

// Message types of the stream protocol.
const (
	TypeGenerateQuestions  = "generate_questions"
	TypeSuggestedQuestions = "suggested_questions"
)

// StreamRequest is the client message on the stream.
type StreamRequest struct {
	Type string `json:"type"`
	backend.SuggestRequest
}

// StreamResponse is the server message carrying suggestions.
type StreamResponse struct {
	Type      string   `json:"type"`
	Questions []string `json:"questions"`
}

// Fallback is the HTTP suggestion endpoint. *backend.Client implements it.
type Fallback interface {
	SuggestQuestions(ctx context.Context, req backend.SuggestRequest) ([]string, error)
}

// Options configures a Channel.
type Options struct {
	// StreamURL is the websocket endpoint. Empty skips the stream and goes
	// straight to the fallback.
	StreamURL string

	// StreamTimeout covers dial, send and the wait for a response.
	// Defaults to DefaultStreamTimeout.
	StreamTimeout time.Duration

	// MaxQuestions defaults to DefaultMaxQuestions.
	MaxQuestions int

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Observer Observer
	Metrics  *Metrics
}

// Channel runs suggestion fetches. It holds no per-request state, so one
// Channel serves any number of concurrent fetches.
type Channel struct {
	fallback Fallback
	opts     Options
}

// NewChannel creates a Channel.
func NewChannel(fallback Fallback, opts Options) *Channel {
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	if opts.MaxQuestions <= 0 {
		opts.MaxQuestions = DefaultMaxQuestions
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Channel{fallback: fallback, opts: opts}
}

// Fetch returns the suggestions for req. It blocks until the stream answers,
// or the stream is abandoned and the HTTP fallback completes. It never
// returns an error: failures yield an empty Result with Err set.
//
// Once Fetch decides, nothing that arrives later on the abandoned stream can
// change the Result.
func (c *Channel) Fetch(ctx context.Context, req Request) Result {
	start := time.Now()
	c.observe(req.ID, StateIdle)

	res := c.fetch(ctx, req)
	res.RequestID = req.ID

	c.opts.Metrics.observe(res.Source, time.Since(start))
	c.observe(req.ID, StateDone)
	return res
}

type streamOutcome struct {
	questions []string
	err       error
}

func (c *Channel) fetch(ctx context.Context, req Request) Result {
	if c.opts.StreamURL != "" {
		c.observe(req.ID, StateAwaitingStream)

		streamCtx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)
		// Buffered: a stream that finishes after the race is decided must
		// not block its goroutine.
		outcome := make(chan streamOutcome, 1)
		go func() {
			questions, err := c.stream(streamCtx, req)
			outcome <- streamOutcome{questions: questions, err: err}
		}()

		select {
		case o := <-outcome:
			cancel()
			if o.err == nil {
				c.observe(req.ID, StateStreamWon)
				return Result{Questions: capQuestions(o.questions, c.opts.MaxQuestions), Source: SourceStream}
			}
			log.Printf("suggest %s: stream failed, falling back to HTTP: %v", req.ID, o.err)
		case <-streamCtx.Done():
			cancel()
			log.Printf("suggest %s: stream gave no answer within %s, falling back to HTTP", req.ID, c.opts.StreamTimeout)
		}
		c.observe(req.ID, StateStreamTimedOut)
	}

	c.observe(req.ID, StateAwaitingHTTP)
	questions, err := c.fallback.SuggestQuestions(ctx, req.payload())
	if err != nil {
		log.Printf("suggest %s: HTTP fallback failed: %v", req.ID, err)
		c.observe(req.ID, StateHTTPFailed)
		return Result{Source: SourceNone, Err: err}
	}
	c.observe(req.ID, StateHTTPWon)
	return Result{Questions: capQuestions(questions, c.opts.MaxQuestions), Source: SourceHTTP}
}

// errMalformed marks a stream message that could not be used.
var errMalformed = errors.New("malformed stream message")

// stream dials, sends one generate_questions message and waits for the
// first suggested_questions reply. Other message types are skipped.
func (c *Channel) stream(ctx context.Context, req Request) ([]string, error) {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.StreamURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.StreamURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.StreamURL, err)
	}
	defer conn.Close()

	// Unblocks ReadJSON as soon as the race is decided.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	msg := StreamRequest{Type: TypeGenerateQuestions, SuggestRequest: req.payload()}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	for {
		var reply StreamResponse
		if err := conn.ReadJSON(&reply); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		if reply.Type != TypeSuggestedQuestions {
			continue
		}
		if reply.Questions == nil {
			return nil, fmt.Errorf("%w: %s without questions", errMalformed, reply.Type)
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return reply.Questions, nil
	}
}

func (c *Channel) observe(requestID string, s State) {
	if c.opts.Observer != nil {
		c.opts.Observer(requestID, s)
	}
}
