package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/duochat-server/internal/auth"
	"github.com/vovakirdan/duochat-server/internal/config"
	"github.com/vovakirdan/duochat-server/internal/core"
	"github.com/vovakirdan/duochat-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger

	// closing is cancelled by Close; every live connection watches it.
	closing context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	closing, stop := context.WithCancel(context.Background())
	return &WSHandler{
		hub:     hub,
		auth:    authService,
		cfg:     cfg,
		log:     logger,
		closing: closing,
		stop:    stop,
	}
}

// Close rejects new connections, closes live ones with StatusGoingAway and
// waits until their handlers have disconnected from the hub.
func (h *WSHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.stop()

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain websocket connections: %w", ctx.Err())
	}
}

// track registers a live connection unless the handler is closed.
func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns.Add(1)
	return true
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A token, when given, pins the identity the connection may claim.
	var tokenUser string
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.auth.ValidateToken(r.Context(), token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws invalid token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		tokenUser = claims.UserID
	} else if h.cfg.JWTRequired {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	if !h.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.conns.Done()

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString())
	h.hub.Connect(client)
	defer func() {
		// The request context is already cancelled here.
		if err := h.hub.Disconnect(context.Background(), client); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("disconnect after hub stop")
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Cancelling a read drops the socket without a close frame, so shutdown
	// closes the connection first and lets the read loop observe it.
	stopWatch := context.AfterFunc(h.closing, func() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		cancel()
	})
	defer stopWatch()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, tokenUser)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if h.closing.Err() != nil {
		status = websocket.StatusGoingAway
		reason = "server shutting down"
	} else if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	if h.cfg.FrontendURL == "" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	u, err := url.Parse(h.cfg.FrontendURL)
	if err != nil || u.Host == "" {
		h.log.Warn().Str("frontend_url", h.cfg.FrontendURL).Msg("cannot derive ws origin, accepting any")
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{u.Host}}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, tokenUser string) error {
	limiter := newRateLimiter(h.cfg.MessagesPerMinute)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.reply(client, fmt.Errorf("%w: malformed frame", core.ErrInvalidRequest))
			continue
		}

		if err := h.dispatch(ctx, client, inbound, tokenUser, limiter); err != nil {
			h.reply(client, err)
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *core.Client, inbound proto.Inbound, tokenUser string, limiter *rate.Limiter) error {
	switch inbound.Event {
	case proto.EventAddUser:
		userID, err := decodeAddUser(inbound.Data)
		if err != nil {
			return err
		}
		if tokenUser != "" && userID != tokenUser {
			return &core.CoreError{Code: core.ErrCodeUnauthorized, Message: "user id does not match token"}
		}
		return h.hub.Identify(ctx, client, userID)

	case proto.EventSendMessage:
		if !limiter.Allow() {
			return core.ErrRateLimited
		}
		req, err := decodeSendMessage(inbound.Data)
		if err != nil {
			return err
		}
		// A message read before shutdown is still routed and persisted.
		res, err := h.hub.Send(context.WithoutCancel(ctx), client, req)
		if err != nil {
			return err
		}
		// Delivery to an offline or slow peer is not reported; the message is in the store.
		return res.PersistErr

	default:
		return &core.CoreError{Code: core.ErrCodeBadRequest, Message: "unknown event " + inbound.Event}
	}
}

// reply sends an error event to this client only.
func (h *WSHandler) reply(client *core.Client, err error) {
	if notifyErr := client.Notify(core.ErrorEvent(err)); notifyErr != nil {
		h.log.Debug().Err(notifyErr).Str("client_id", client.ID).Msg("error reply dropped")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
