package store

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = errors.New("user already exists")
)

// User represents an account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Token        string // last issued session token, empty after logout
	CreatedAt    time.Time
}

// Conversation groups all messages between exactly two participants.
type Conversation struct {
	ID        string
	Members   [2]string // sorted
	CreatedAt time.Time
}

// Peer returns the member that is not userID.
func (c *Conversation) Peer(userID string) string {
	if c.Members[0] == userID {
		return c.Members[1]
	}
	return c.Members[0]
}

// HasMember reports whether userID participates in the conversation.
func (c *Conversation) HasMember(userID string) bool {
	return c.Members[0] == userID || c.Members[1] == userID
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Seq            int64 // per-conversation, starts at 1
	CreatedAt      time.Time
}

// SortedPair orders two member ids.
func SortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// PairKey is the unique key of the conversation between a and b.
// The first id is length-prefixed, so ids containing ':' cannot collide.
func PairKey(a, b string) string {
	p := SortedPair(a, b)
	return strconv.Itoa(len(p[0])) + ":" + p[0] + ":" + p[1]
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrUserExists on duplicate email.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers returns every user ordered by creation.
	ListUsers(ctx context.Context) ([]*User, error)

	// SetUserToken stores the current session token; empty clears it.
	SetUserToken(ctx context.Context, id, token string) error
}

// ConversationStore handles conversation and message persistence.
type ConversationStore interface {
	// FindConversation returns the conversation between a and b, or ErrNotFound.
	FindConversation(ctx context.Context, a, b string) (*Conversation, error)

	// CreateConversation returns the conversation between a and b, creating it
	// if needed. Concurrent calls for the same pair yield the same record.
	CreateConversation(ctx context.Context, a, b string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversationsForUser lists conversations the user is a member of.
	ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error)

	// AppendMessage persists a message with the next sequence number.
	// Returns ErrNotFound if the conversation does not exist.
	AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, error)

	// ListMessages returns the conversation's messages in sequence order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore

	// Close closes the underlying database.
	Close() error
}
