package devserver

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restocorp/answerflow/internal/backend"
	"github.com/restocorp/answerflow/internal/suggest"
)

type failingSuggester struct{}

func (failingSuggester) Suggest(context.Context, backend.SuggestRequest) ([]string, error) {
	return nil, errors.New("generator down")
}

func dialStream(t *testing.T, opts Options) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(setupTest(t, opts))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello streamOutbound
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, TypeConnectionEstablished, hello.Type)
	require.Len(t, hello.ID, 26)
	return conn
}

func TestStream_PingPong(t *testing.T) {
	conn := dialStream(t, Options{})

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var msg streamOutbound
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypePong, msg.Type)
}

func TestStream_GenerateQuestions(t *testing.T) {
	conn := dialStream(t, Options{})

	require.NoError(t, conn.WriteJSON(suggest.StreamRequest{
		Type: suggest.TypeGenerateQuestions,
		SuggestRequest: backend.SuggestRequest{
			UserQuestion: "How do I temper chocolate?",
			BotAnswer:    "Melt, cool, rewarm.",
		},
	}))

	var msg suggest.StreamResponse
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, suggest.TypeSuggestedQuestions, msg.Type)
	assert.Equal(t, CannedQuestions, msg.Questions)

	// the connection stays usable for the next request
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong streamOutbound
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, TypePong, pong.Type)
}

func TestStream_Errors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		conn := dialStream(t, Options{})
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

		var msg streamOutbound
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeError, msg.Type)
		assert.Contains(t, msg.Message, "subscribe")
	})

	t.Run("suggester failure", func(t *testing.T) {
		conn := dialStream(t, Options{Suggester: failingSuggester{}})
		require.NoError(t, conn.WriteJSON(map[string]string{"type": suggest.TypeGenerateQuestions}))

		var msg streamOutbound
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeError, msg.Type)
		assert.Equal(t, "generator down", msg.Message)
	})
}
