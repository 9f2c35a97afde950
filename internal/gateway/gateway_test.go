// ABOUTME: End-to-end tests for the gateway over real WebSocket connections
// ABOUTME: Runs Serve on a loopback listener with SQLite and the echo pipeline

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/config"
	"github.com/2389/solace-gateway/internal/pipeline"
	"github.com/2389/solace-gateway/internal/protocol"
	"github.com/2389/solace-gateway/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const ioTimeout = 3 * time.Second

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testGateway struct {
	gw     *Gateway
	addr   string
	store  *store.SQLiteStore
	user   *store.User
	token  string
	stop   context.CancelFunc
	served chan error
}

func startGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
		Auth:     config.AuthConfig{JWTSecret: "gateway-test-secret"},
		Pipeline: config.PipelineConfig{Provider: config.ProviderEcho},
		Session: config.SessionConfig{
			PingInterval: 100 * time.Millisecond,
			PongWait:     5 * time.Second,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	user := &store.User{Username: "alice", PasswordHash: hash}
	require.NoError(t, s.CreateUser(context.Background(), user))

	validator := auth.NewValidator([]byte(cfg.Auth.JWTSecret), s, cfg.Auth.TokenTTL, testLogger())
	token, err := validator.SignIn(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	gw := newGateway(cfg, s, pipeline.NewEcho(0), testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tg := &testGateway{
		gw:     gw,
		addr:   ln.Addr().String(),
		store:  s,
		user:   user,
		token:  token,
		stop:   cancel,
		served: make(chan error, 1),
	}
	go func() { tg.served <- gw.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-tg.served:
		case <-time.After(2 * shutdownTimeout):
			t.Error("gateway did not stop")
		}
	})
	return tg
}

func (tg *testGateway) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s%s?token=%s", tg.addr, path, token)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (tg *testGateway) createConversation(t *testing.T, title string) int64 {
	t.Helper()
	conv, err := tg.store.CreateConversation(context.Background(), tg.user.ID, title)
	require.NoError(t, err)
	return conv.ID
}

func readMsg(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func expectMsg(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	msg := readMsg(t, ws)
	require.Equal(t, msgType, msg["type"], "unexpected message %v", msg)
	return msg
}

// expectClose reads until the server closes and returns the close frame.
func expectClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			return closeErr
		}
		t.Logf("skipping frame before close: %s", data)
	}
}

func say(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "user_message", "message": text}))
}

func getHealth(t *testing.T, addr string) healthResponse {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: ioTimeout}
	resp, err := client.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	return health
}

func TestGateway_CreateThenChat(t *testing.T) {
	tg := startGateway(t, func(cfg *config.Config) {
		cfg.Session.StreamReplies = true
		cfg.Session.RenderMarkdown = true
	})

	// Create a conversation.
	creator := tg.dial(t, "/ws/new", tg.token)
	created := expectMsg(t, creator, "chat_created")
	assert.Equal(t, "Chat 1", created["chat_name"])
	chatID := int64(created["chat_id"].(float64))
	assert.Equal(t, fmt.Sprintf("/chat/%d", chatID), created["redirect"])
	assert.Equal(t, websocket.CloseNormalClosure, expectClose(t, creator).Code)

	// Chat in it.
	ws := tg.dial(t, fmt.Sprintf("/ws/%d", chatID), tg.token)
	connected := expectMsg(t, ws, "connected")
	assert.Equal(t, "Connected to chat: Chat 1", connected["message"])
	assert.Equal(t, 1, getHealth(t, tg.addr).Connections)

	say(t, ws, "hello")
	assert.Equal(t, "hello", expectMsg(t, ws, "message_received")["message"])
	expectMsg(t, ws, "ai_thinking")

	var partials []string
	for {
		msg := readMsg(t, ws)
		if msg["type"] == "ai_response" {
			assert.Equal(t, "You said: hello (history: 0 messages)", msg["message"])
			assert.Contains(t, msg["message_html"], "<p>You said: hello")
			break
		}
		require.Equal(t, "ai_streaming", msg["type"])
		partials = append(partials, msg["partial_message"].(string))
	}
	assert.Equal(t, []string{"You said: hello", "You said: hello (history: 0 messages)"}, partials)

	say(t, ws, "again")
	expectMsg(t, ws, "message_received")
	expectMsg(t, ws, "ai_thinking")
	for {
		msg := readMsg(t, ws)
		if msg["type"] == "ai_response" {
			assert.Equal(t, "You said: again (history: 2 messages)", msg["message"])
			break
		}
	}

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	expectClose(t, ws)

	require.Eventually(t, func() bool { return getHealth(t, tg.addr).Connections == 0 }, ioTimeout, 10*time.Millisecond)

	turns, err := tg.store.ListTurns(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].UserText)

	conv, err := tg.store.GetOwnedConversation(context.Background(), chatID, tg.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", conv.Title)
}

func TestGateway_HandshakeFailures(t *testing.T) {
	tg := startGateway(t, nil)
	chatID := tg.createConversation(t, "Chat 1")

	bob := &store.User{Username: "bob", PasswordHash: "x"}
	require.NoError(t, tg.store.CreateUser(context.Background(), bob))
	bobsChat, err := tg.store.CreateConversation(context.Background(), bob.ID, "Chat 1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
	}{
		{name: "missing token", path: fmt.Sprintf("/ws/%d", chatID), token: "", wantCode: protocol.CloseAuthFailed},
		{name: "garbage token", path: fmt.Sprintf("/ws/%d", chatID), token: "garbage", wantCode: protocol.CloseAuthFailed},
		{name: "create with garbage token", path: "/ws/new", token: "garbage", wantCode: protocol.CloseAuthFailed},
		{name: "missing chat", path: "/ws/424242", token: tg.token, wantCode: protocol.CloseNotFound},
		{name: "foreign chat", path: fmt.Sprintf("/ws/%d", bobsChat.ID), token: tg.token, wantCode: protocol.CloseNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := tg.dial(t, tt.path, tt.token)
			closeErr := expectClose(t, ws)
			assert.Equal(t, tt.wantCode, closeErr.Code)
		})
	}
}

func TestGateway_NonNumericChatIDIsNotFound(t *testing.T) {
	tg := startGateway(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+tg.addr+"/ws/abc?token="+tg.token, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_SecondConnectionRejected(t *testing.T) {
	tg := startGateway(t, nil)
	chatID := tg.createConversation(t, "Chat 1")
	path := fmt.Sprintf("/ws/%d", chatID)

	first := tg.dial(t, path, tg.token)
	expectMsg(t, first, "connected")

	second := tg.dial(t, path, tg.token)
	closeErr := expectClose(t, second)
	assert.Equal(t, protocol.CloseAlreadyConnected, closeErr.Code)
	assert.Equal(t, protocol.ReasonAlreadyConnected, closeErr.Text)

	// The first connection is unaffected.
	say(t, first, "still mine")
	expectMsg(t, first, "message_received")
}

func TestGateway_MalformedFrameCloses(t *testing.T) {
	tg := startGateway(t, nil)
	chatID := tg.createConversation(t, "Chat 1")

	ws := tg.dial(t, fmt.Sprintf("/ws/%d", chatID), tg.token)
	expectMsg(t, ws, "connected")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, protocol.CloseInvalidPayload, expectClose(t, ws).Code)
}

func TestGateway_OversizedFrameDropsConnection(t *testing.T) {
	tg := startGateway(t, func(cfg *config.Config) {
		cfg.Session.MaxMessageBytes = 128
	})
	chatID := tg.createConversation(t, "Chat 1")

	ws := tg.dial(t, fmt.Sprintf("/ws/%d", chatID), tg.token)
	expectMsg(t, ws, "connected")

	say(t, ws, strings.Repeat("x", 1024))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool { return tg.gw.registry.Len() == 0 }, ioTimeout, 10*time.Millisecond)
	turns, err := tg.store.ListTurns(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGateway_ShutdownClosesLiveSessions(t *testing.T) {
	tg := startGateway(t, nil)
	chatID := tg.createConversation(t, "Chat 1")

	ws := tg.dial(t, fmt.Sprintf("/ws/%d", chatID), tg.token)
	expectMsg(t, ws, "connected")

	tg.stop()

	closeErr := expectClose(t, ws)
	assert.Equal(t, protocol.CloseGoingAway, closeErr.Code)

	select {
	case err := <-tg.served:
		assert.NoError(t, err)
		tg.served <- err
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, tg.gw.registry.Len())
}

func TestGateway_HealthOnFreshServer(t *testing.T) {
	tg := startGateway(t, nil)

	health := getHealth(t, tg.addr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 0, health.Connections)
}

type stubHandle struct{}

func (stubHandle) ConnID() string { return "conn-1" }
func (stubHandle) Cancel()        {}

func TestNewGateway_ComponentAttrAppearsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
		Auth:     config.AuthConfig{JWTSecret: "gateway-test-secret"},
		Pipeline: config.PipelineConfig{Provider: config.ProviderEcho},
	}
	require.NoError(t, cfg.Validate())

	gw := newGateway(cfg, store.NewMockStore(), pipeline.NewEcho(0), logger)
	defer gw.cancel()

	require.NoError(t, gw.registry.Register(1, 1, stubHandle{}))
	gw.registry.Shutdown()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"component"`), line)
	}
}
