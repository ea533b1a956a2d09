package core

import "github.com/vovakirdan/duochat-server/internal/store"

// SendRequest is one outgoing chat message. It is consumed once by the router.
type SendRequest struct {
	SenderID       string `validate:"required"`
	RecipientID    string `validate:"required_without=ConversationID"`
	Text           string `validate:"required"`
	ConversationID string
}

// RouteResult reports the independent outcomes of routing one message.
type RouteResult struct {
	ConversationID string
	Message        *store.Message // set when Persisted

	Persisted bool
	Delivered bool

	PersistErr error
	DeliverErr error
}
