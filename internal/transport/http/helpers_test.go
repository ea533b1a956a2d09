package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat-server/internal/auth"
	"github.com/vovakirdan/duochat-server/internal/config"
	"github.com/vovakirdan/duochat-server/internal/core"
	"github.com/vovakirdan/duochat-server/internal/proto"
	"github.com/vovakirdan/duochat-server/internal/store"
	"github.com/vovakirdan/duochat-server/internal/store/sqlite"
)

type testEnv struct {
	ts     *httptest.Server
	server *Server
	hub    *core.Hub
	auth   *auth.Service
	store  store.Store
	cfg    *config.Config
}

// newTestEnv starts a server backed by in-memory sqlite. mutate may adjust
// the config before the server is built.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.JWTSecret = "test-secret"
	cfg.MessagesPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.RetryPolicy{Attempts: 1}, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, server: server, hub: hub, auth: authService, store: st, cfg: &cfg}
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// signUpAndLogin registers a user and returns its id and session token.
func (e *testEnv) signUpAndLogin(t *testing.T, name, email string) (string, string) {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/api/signUp", "", SignUpRequest{Name: name, Email: email, Password: "password123"})
	if status != http.StatusCreated {
		t.Fatalf("sign up %s: status %d: %s", email, status, body)
	}

	status, body = e.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: email, Password: "password123"})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, status, body)
	}
	var resp LoginResponse
	mustDecode(t, body, &resp)
	return resp.User.ID, resp.Token
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, query string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws" + query
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func mustDecode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

// wireFrame mirrors proto.Outbound with the payload left raw.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// readEvent reads frames until one with the given event name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) wireFrame {
	t.Helper()

	for {
		var frame wireFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

func readUsers(t *testing.T, ctx context.Context, conn *websocket.Conn) []proto.OnlineUser {
	t.Helper()

	frame := readEvent(t, ctx, conn, proto.EventGetUsers)
	var users []proto.OnlineUser
	mustDecode(t, frame.Data, &users)
	return users
}

func userIDsOf(users []proto.OnlineUser) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}
