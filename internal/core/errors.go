package core

import (
	"errors"

	"github.com/vovakirdan/duochat-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeUnidentified         = "unidentified"
	ErrCodeSenderMismatch       = "sender_mismatch"
	ErrCodeStoreUnavailable     = "store_unavailable"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeConnectionClosed     = "connection_closed"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeInternal             = "internal"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnidentified         = errors.New("connection has not identified")
	ErrSenderMismatch       = errors.New("sender does not match identified user")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrSlowConsumer         = errors.New("event queue full")
	ErrHubStopped           = errors.New("hub stopped")
	ErrRateLimited          = errors.New("rate limit exceeded")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError maps err to its wire error code.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrInvalidRequest):
		return coreError(ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, ErrUnidentified):
		return coreError(ErrCodeUnidentified, err.Error())
	case errors.Is(err, ErrSenderMismatch):
		return coreError(ErrCodeSenderMismatch, err.Error())
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeConversationNotFound, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return coreError(ErrCodeStoreUnavailable, err.Error())
	case errors.Is(err, ErrConnectionClosed):
		return coreError(ErrCodeConnectionClosed, err.Error())
	case errors.Is(err, ErrRateLimited):
		return coreError(ErrCodeRateLimited, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
