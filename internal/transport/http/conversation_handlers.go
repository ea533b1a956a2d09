package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat-server/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		log:   logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
// SenderID is optional and must match the caller when present.
type CreateConversationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId" binding:"required"`
}

// ConversationResponse identifies a conversation.
type ConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

// ConversationPeer is the other participant of a listed conversation.
type ConversationPeer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ConversationListItem is one entry of the caller's conversation list.
type ConversationListItem struct {
	User           ConversationPeer `json:"user"`
	ConversationID string           `json:"conversationId"`
}

// CreateConversation returns the conversation between the caller and the
// receiver, creating it on first use.
// POST /api/conversation
func (h *ConversationHandlers) CreateConversation(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "receiverId is required"})
		return
	}
	if req.SenderID != "" && req.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "senderId does not match the authenticated user"})
		return
	}
	if req.ReceiverID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a conversation with yourself"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUserByID(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "receiver not found"})
			return
		}
		h.log.Error().Err(err).Str("receiver_id", req.ReceiverID).Msg("failed to get receiver")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conv, err := h.store.CreateConversation(ctx, uid, req.ReceiverID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Str("receiver_id", req.ReceiverID).Msg("failed to create conversation")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "conversation store unavailable"})
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Str("user_id", uid).Msg("conversation ready")
	c.JSON(http.StatusOK, ConversationResponse{ConversationID: conv.ID})
}

// ListConversations lists the caller's conversations with the peer's profile.
// GET /api/conversation/:userId
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	if c.Param("userId") != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "can only list your own conversations"})
		return
	}

	ctx := c.Request.Context()
	convs, err := h.store.ListConversationsForUser(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationListItem, 0, len(convs))
	for _, conv := range convs {
		peerID := conv.Peer(uid)
		u, err := h.store.GetUserByID(ctx, peerID)
		if errors.Is(err, store.ErrNotFound) {
			// Peers without an account have no profile to show.
			continue
		}
		if err != nil {
			h.log.Error().Err(err).Str("user_id", peerID).Msg("failed to get conversation peer")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		response = append(response, ConversationListItem{
			User:           ConversationPeer{ID: u.ID, Username: u.Name, Email: u.Email},
			ConversationID: conv.ID,
		})
	}

	h.log.Debug().Str("user_id", uid).Int("conversation_count", len(response)).Msg("conversations listed successfully")
	c.JSON(http.StatusOK, response)
}
