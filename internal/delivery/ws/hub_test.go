package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/pkg/logger"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	cmds []entity.Command
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, cmd entity.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return s.err
}

func (s *recordingSubmitter) commands() []entity.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Command(nil), s.cmds...)
}

func startHub(t *testing.T, sub Submitter) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(context.Background(), sub, logger.Nop())
	r := mux.NewRouter()
	hub.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHub_SubmitsDecodedCommands(t *testing.T) {
	sub := &recordingSubmitter{}
	_, conn := startHub(t, sub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"getConsumers","streamName":"ORDERS"}`)))

	assert.Eventually(t, func() bool { return len(sub.commands()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, entity.GetConsumers{Stream: "ORDERS"}, sub.commands()[0])
}

func TestHub_RejectsUnknownCommand(t *testing.T) {
	sub := &recordingSubmitter{}
	_, conn := startHub(t, sub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dropStream"}`)))

	frame := readFrame(t, conn)
	assert.Equal(t, "connectivityChanged", frame["type"])
	assert.Equal(t, "error", frame["status"])
	assert.Contains(t, frame["message"], "unhandled command")
	assert.Empty(t, sub.commands())
}

func TestHub_ReportsSubmitError(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("worker stopped")}
	_, conn := startHub(t, sub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"fetchMessageTrace","messageId":"abc123"}`)))

	frame := readFrame(t, conn)
	assert.Equal(t, "worker stopped", frame["message"])
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, conn := startHub(t, &recordingSubmitter{})

	hub.Deliver(entity.StreamsEvent{Streams: []entity.StreamDescriptor{{Name: "ORDERS"}}})

	frame := readFrame(t, conn)
	assert.Equal(t, "streams", frame["type"])
	streams := frame["streams"].([]any)
	require.Len(t, streams, 1)
	assert.Equal(t, "ORDERS", streams[0].(map[string]any)["name"])
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, conn := startHub(t, &recordingSubmitter{})

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, time.Millisecond)
}
