package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/duochat-server/internal/presence"
	"github.com/vovakirdan/duochat-server/internal/store"
)

// Hub manages the lifecycle of client connections.
// Presence mutations and the broadcasts that follow them run on the single
// goroutine started by Run, so every client sees snapshots in mutation order.
type Hub struct {
	registry *presence.Registry[*Client]
	router   *Router
	log      *zerolog.Logger

	commands chan *Command
	stopped  chan struct{}
}

// NewHub creates a hub persisting messages to st.
func NewHub(st store.ConversationStore, retry RetryPolicy, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := presence.NewRegistry[*Client]()
	return &Hub{
		registry: registry,
		router:   NewRouter(registry, st, retry, logger),
		log:      logger,
		commands: make(chan *Command, 64),
		stopped:  make(chan struct{}),
	}
}

// Run processes lifecycle commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case cmd := <-h.commands:
			cmd.done <- h.handle(cmd)
		case <-ctx.Done():
			h.log.Debug().Int("online", h.registry.Len()).Msg("hub stopped")
			return
		}
	}
}

// Connect records a newly established connection.
func (h *Hub) Connect(c *Client) {
	h.log.Debug().Str("client_id", c.ID).Msg("client connected")
}

// Identify attaches userID to c, registers its presence and broadcasts the
// new online set. Re-identifying replaces the previous identity.
func (h *Hub) Identify(ctx context.Context, c *Client, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return h.submit(ctx, &Command{Kind: CommandIdentify, Client: c, UserID: userID})
}

// Disconnect closes c, drops its presence and broadcasts the remaining set.
// It is safe to call more than once.
func (h *Hub) Disconnect(ctx context.Context, c *Client) error {
	return h.submit(ctx, &Command{Kind: CommandDisconnect, Client: c})
}

// Send routes a message on behalf of the user identified on c.
// A sender id in the request must match that identity.
func (h *Hub) Send(ctx context.Context, c *Client, req SendRequest) (*RouteResult, error) {
	userID, state := c.identity()
	switch state {
	case StateUnidentified:
		return nil, ErrUnidentified
	case StateClosed:
		return nil, ErrConnectionClosed
	}
	if req.SenderID != "" && req.SenderID != userID {
		return nil, ErrSenderMismatch
	}
	req.SenderID = userID
	return h.router.Route(ctx, req)
}

// Route routes a message whose sender was authenticated by the caller.
func (h *Hub) Route(ctx context.Context, req SendRequest) (*RouteResult, error) {
	return h.router.Route(ctx, req)
}

// Online returns the current presence snapshot.
func (h *Hub) Online() []OnlineUser {
	return onlineUsers(h.registry.Snapshot())
}

// IsOnline reports whether userID has a registered connection.
func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

func (h *Hub) submit(ctx context.Context, cmd *Command) error {
	cmd.done = make(chan error, 1)

	select {
	case h.commands <- cmd:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-h.stopped:
		select {
		case err := <-cmd.done:
			return err
		default:
			return ErrHubStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handle(cmd *Command) error {
	switch cmd.Kind {
	case CommandIdentify:
		return h.identify(cmd.Client, cmd.UserID)
	case CommandDisconnect:
		h.disconnect(cmd.Client)
		return nil
	default:
		return fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
}

func (h *Hub) identify(c *Client, userID string) error {
	previous, err := c.identify(userID)
	if err != nil {
		return err
	}
	if previous != "" && previous != userID {
		h.registry.Unregister(c)
	}

	snapshot := h.registry.Register(userID, c)
	h.log.Info().
		Str("client_id", c.ID).
		Str("user_id", userID).
		Int("online", len(snapshot)).
		Msg("user online")

	h.broadcast(snapshot)
	return nil
}

func (h *Hub) disconnect(c *Client) {
	if !c.close() {
		return
	}

	removed, snapshot := h.registry.Unregister(c)
	h.log.Debug().Str("client_id", c.ID).Bool("was_registered", removed).Msg("client disconnected")
	if !removed {
		return
	}

	h.log.Info().
		Str("client_id", c.ID).
		Str("user_id", c.UserID()).
		Int("online", len(snapshot)).
		Msg("user offline")
	h.broadcast(snapshot)
}

// broadcast sends the snapshot to every registered connection.
func (h *Hub) broadcast(snapshot []presence.Entry[*Client]) {
	event := &Event{Kind: EventPresence, Users: onlineUsers(snapshot)}
	for _, entry := range snapshot {
		if err := entry.Conn.push(event); err != nil {
			// Drop if slow consumer.
			h.log.Debug().Err(err).Str("client_id", entry.Conn.ID).Msg("presence update dropped")
		}
	}
}

func onlineUsers(snapshot []presence.Entry[*Client]) []OnlineUser {
	return lo.Map(snapshot, func(e presence.Entry[*Client], _ int) OnlineUser {
		return OnlineUser{UserID: e.UserID, ConnectionID: e.Conn.ConnectionID()}
	})
}
