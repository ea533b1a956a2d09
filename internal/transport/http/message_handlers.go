package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat-server/internal/core"
	"github.com/vovakirdan/duochat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
}

// SendMessageResponse reports where the message went.
type SendMessageResponse struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	CreatedAt      string `json:"createdAt"`
	Delivered      bool   `json:"delivered"`
}

// MessageSender is the author of a listed message.
type MessageSender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MessageListItem is one message of a conversation history.
type MessageListItem struct {
	User    MessageSender `json:"user"`
	Message string        `json:"message"`
	Seq     int64         `json:"seq"`
}

// SendMessage routes a message from the caller. It is delivered live when the
// receiver is online and always appended to the conversation.
// POST /api/message
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.SenderID != "" && req.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "senderId does not match the authenticated user"})
		return
	}

	ctx := c.Request.Context()
	if req.ConversationID != "" {
		conv, err := h.store.GetConversation(ctx, req.ConversationID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found", Code: core.ErrCodeConversationNotFound})
			return
		case err != nil:
			h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("failed to get conversation")
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "conversation store unavailable", Code: core.ErrCodeStoreUnavailable})
			return
		case !conv.HasMember(uid):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this conversation"})
			return
		}
		peer := conv.Peer(uid)
		if req.ReceiverID != "" && req.ReceiverID != peer {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "receiverId is not the other member of this conversation", Code: core.ErrCodeInvalidRequest})
			return
		}
		req.ReceiverID = peer
	}
	if req.ReceiverID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot send a message to yourself", Code: core.ErrCodeInvalidRequest})
		return
	}

	res, err := h.hub.Route(ctx, core.SendRequest{
		SenderID:       uid,
		RecipientID:    req.ReceiverID,
		Text:           req.Text,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		ce := core.ToCoreError(err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ce.Message, Code: ce.Code})
		return
	}
	if !res.Persisted {
		ce := core.ToCoreError(res.PersistErr)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ce.Message, Code: ce.Code})
		return
	}

	c.JSON(http.StatusOK, SendMessageResponse{
		ConversationID: res.ConversationID,
		ID:             res.Message.ID,
		Seq:            res.Message.Seq,
		CreatedAt:      res.Message.CreatedAt.Format(time.RFC3339),
		Delivered:      res.Delivered,
	})
}

// ListMessages returns a conversation's history in sequence order.
// GET /api/message/:conversationId
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	convID := c.Param("conversationId")
	conv, err := h.store.GetConversation(ctx, convID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found", Code: core.ErrCodeConversationNotFound})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("failed to get conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !conv.HasMember(uid) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this conversation"})
		return
	}

	messages, err := h.store.ListMessages(ctx, convID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	senders := make(map[string]MessageSender, 2)
	response := make([]MessageListItem, 0, len(messages))
	for _, m := range messages {
		sender, seen := senders[m.SenderID]
		if !seen {
			if u, err := h.store.GetUserByID(ctx, m.SenderID); err == nil {
				sender = MessageSender{Name: u.Name, Email: u.Email}
			}
			senders[m.SenderID] = sender
		}
		response = append(response, MessageListItem{User: sender, Message: m.Text, Seq: m.Seq})
	}

	c.JSON(http.StatusOK, response)
}
