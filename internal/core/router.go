package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/duochat-server/internal/presence"
	"github.com/vovakirdan/duochat-server/internal/store"
)

// Router decides the delivery path of one message and requests its persistence.
// Delivery and persistence are independent: a failure of one does not stop the other.
type Router struct {
	presence *presence.Registry[*Client]
	store    store.ConversationStore
	retry    RetryPolicy
	validate *validator.Validate
	log      *zerolog.Logger
}

// NewRouter builds a router reading from reg and persisting to st.
func NewRouter(reg *presence.Registry[*Client], st store.ConversationStore, retry RetryPolicy, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		presence: reg,
		store:    st,
		retry:    retry,
		validate: validator.New(),
		log:      logger,
	}
}

// Route validates req, resolves its conversation, pushes it to the recipient
// when online and appends it to the conversation store.
//
// The returned error is non-nil only for invalid requests, which have no
// side effects. Store and delivery failures are reported in the result.
func (r *Router) Route(ctx context.Context, req SendRequest) (*RouteResult, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}

	res := &RouteResult{ConversationID: req.ConversationID}
	log := r.log.With().
		Str("sender_id", req.SenderID).
		Str("recipient_id", req.RecipientID).
		Logger()

	// An explicit conversation id is trusted as given.
	if res.ConversationID == "" {
		conv, err := r.resolveConversation(ctx, req.SenderID, req.RecipientID)
		if err != nil {
			res.PersistErr = fmt.Errorf("%w: resolve conversation: %w", ErrStoreUnavailable, err)
			log.Error().Err(err).Msg("failed to resolve conversation")
		} else {
			res.ConversationID = conv.ID
		}
	}

	res.Delivered, res.DeliverErr = r.deliver(req, res.ConversationID)
	if res.DeliverErr != nil {
		log.Warn().Err(res.DeliverErr).Msg("live delivery failed")
	}

	if res.ConversationID != "" {
		msg, err := r.appendMessage(ctx, res.ConversationID, req.SenderID, req.Text)
		switch {
		case err == nil:
			res.Message = msg
			res.Persisted = true
		case errors.Is(err, store.ErrNotFound):
			res.PersistErr = fmt.Errorf("%w: %s", ErrConversationNotFound, res.ConversationID)
			log.Warn().Str("conversation_id", res.ConversationID).Msg("message for unknown conversation not persisted")
		default:
			res.PersistErr = fmt.Errorf("%w: append message: %w", ErrStoreUnavailable, err)
			log.Error().Err(err).Str("conversation_id", res.ConversationID).Msg("failed to persist message")
		}
	}

	log.Debug().
		Str("conversation_id", res.ConversationID).
		Bool("persisted", res.Persisted).
		Bool("delivered", res.Delivered).
		Msg("message routed")

	return res, nil
}

func (r *Router) resolveConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	var conv *store.Conversation
	err := r.retry.Do(ctx, func() error {
		c, err := r.store.CreateConversation(ctx, a, b)
		if err != nil {
			return err
		}
		conv = c
		return nil
	})
	return conv, err
}

func (r *Router) appendMessage(ctx context.Context, conversationID, senderID, text string) (*store.Message, error) {
	var msg *store.Message
	err := r.retry.Do(ctx, func() error {
		m, err := r.store.AppendMessage(ctx, conversationID, senderID, text)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

// deliver pushes the message to the recipient's live connection. An offline
// recipient is not an error; the message stays available from the store.
func (r *Router) deliver(req SendRequest, conversationID string) (bool, error) {
	if req.RecipientID == "" {
		return false, nil
	}
	conn, ok := r.presence.Lookup(req.RecipientID)
	if !ok {
		return false, nil
	}

	err := conn.push(&Event{
		Kind: EventReceiveMessage,
		Message: Delivery{
			SenderID:       req.SenderID,
			RecipientID:    req.RecipientID,
			ConversationID: conversationID,
			Text:           req.Text,
		},
	})
	if err != nil {
		return false, fmt.Errorf("deliver to %s: %w", conn.ID, err)
	}
	return true, nil
}

func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	fields := lo.Map([]validator.FieldError(verrs), func(fe validator.FieldError, _ int) string {
		return fe.Field() + " is " + fe.Tag()
	})
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}
