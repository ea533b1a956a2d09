package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/duochat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	token         TEXT,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	member_a   TEXT NOT NULL,
	member_b   TEXT NOT NULL,
	pair_key   TEXT NOT NULL UNIQUE,
	last_seq   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_member_a ON conversations(member_a);
CREATE INDEX IF NOT EXISTS idx_conversations_member_b ON conversations(member_b);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	text            TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	created_at      DATETIME NOT NULL,
	UNIQUE (conversation_id, seq),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps an
	// in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, store.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, COALESCE(token, ''), created_at
		FROM users
		WHERE id = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, COALESCE(token, ''), created_at
		FROM users
		WHERE email = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// ListUsers returns every user ordered by creation.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, COALESCE(token, ''), created_at
		FROM users
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// SetUserToken stores the current session token; empty clears it.
func (s *SQLiteStore) SetUserToken(ctx context.Context, id, token string) error {
	var value any
	if token != "" {
		value = token
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET token = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("update user token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Token,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// ==== ConversationStore implementation ====

// FindConversation returns the conversation between a and b.
func (s *SQLiteStore) FindConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	query := `
		SELECT id, member_a, member_b, created_at
		FROM conversations
		WHERE pair_key = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, store.PairKey(a, b)))
}

// CreateConversation returns the conversation between a and b, creating it
// if needed. The unique pair key makes this a single atomic upsert.
func (s *SQLiteStore) CreateConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	members := store.SortedPair(a, b)
	query := `
		INSERT INTO conversations (id, member_a, member_b, pair_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		members[0],
		members[1],
		store.PairKey(a, b),
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}

	return s.FindConversation(ctx, a, b)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `
		SELECT id, member_a, member_b, created_at
		FROM conversations
		WHERE id = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversationsForUser lists conversations the user is a member of.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT id, member_a, member_b, created_at
		FROM conversations
		WHERE member_a = ? OR member_b = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

func scanConversation(row scanner) (*store.Conversation, error) {
	var conv store.Conversation
	err := row.Scan(&conv.ID, &conv.Members[0], &conv.Members[1], &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

// ==== Messages ====

// AppendMessage persists a message with the next sequence number.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE conversations SET last_seq = last_seq + 1 WHERE id = ? RETURNING last_seq`,
		conversationID,
	).Scan(&msg.Seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("advance sequence: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Seq, msg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return msg, nil
}

// ListMessages returns the conversation's messages in sequence order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, text, seq, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
