package devserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/restocorp/answerflow/internal/backend"
	"github.com/restocorp/answerflow/internal/suggest"
)

// Stream message types sent by the server besides suggested_questions.
const (
	TypeConnectionEstablished = "connection_established"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeError                 = "error"
)

const (
	streamWriteTimeout   = 10 * time.Second
	streamSuggestTimeout = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The client runs inside a mini-app webview served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamInbound is any client message on the stream.
type streamInbound struct {
	Type string `json:"type"`
	backend.SuggestRequest
}

// streamOutbound is any server message on the stream.
type streamOutbound struct {
	Type      string   `json:"type"`
	ID        string   `json:"id"`
	Questions []string `json:"questions"`
	Message   string   `json:"message,omitempty"`
}

// HandleStream handles GET /ws. Each generate_questions message is answered
// with one suggested_questions message on the same connection.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Printf("stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	if err := writeStream(conn, streamOutbound{Type: TypeConnectionEstablished}); err != nil {
		return
	}

	for {
		var msg streamInbound
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				log.Printf("stream read: %v", err)
			}
			return
		}

		out := h.handleStreamMessage(r.Context(), msg)
		if err := writeStream(conn, out); err != nil {
			log.Printf("stream write: %v", err)
			return
		}
	}
}

func (h *Handlers) handleStreamMessage(ctx context.Context, msg streamInbound) streamOutbound {
	switch msg.Type {
	case TypePing:
		return streamOutbound{Type: TypePong}
	case suggest.TypeGenerateQuestions:
		ctx, cancel := context.WithTimeout(ctx, streamSuggestTimeout)
		defer cancel()
		questions, err := h.suggester.Suggest(ctx, msg.SuggestRequest)
		if err != nil {
			return streamOutbound{Type: TypeError, Message: err.Error()}
		}
		if questions == nil {
			questions = []string{}
		}
		return streamOutbound{Type: suggest.TypeSuggestedQuestions, Questions: questions}
	default:
		return streamOutbound{Type: TypeError, Message: "unknown message type: " + msg.Type}
	}
}

func writeStream(conn *websocket.Conn, msg streamOutbound) error {
	msg.ID = newID()
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}
