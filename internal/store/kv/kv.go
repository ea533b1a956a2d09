// Package kv implements store.Store on top of BadgerDB.
//
// Key layout:
//
//	user:{id}                     -> userRecord
//	email:{email}                 -> user id
//	conv:{id}                     -> conversationRecord
//	pair:{len(min)}:{min}:{max}   -> conversation id
//	member:{len(uid)}:{uid}:{cid} -> empty
//	msg:{convID}:{seq, 19 digits} -> messageRecord
//
// Values are CBOR encoded. Badger transactions are serializable, so the
// read-then-write upserts below are retried on badger.ErrConflict.
package kv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/vovakirdan/duochat-server/internal/store"
)

const maxConflictRetries = 16

type userRecord struct {
	ID           string `cbor:"id"`
	Name         string `cbor:"name"`
	Email        string `cbor:"email"`
	PasswordHash string `cbor:"password_hash"`
	Token        string `cbor:"token,omitempty"`
	CreatedAt    int64  `cbor:"created_at"`
}

type conversationRecord struct {
	ID        string    `cbor:"id"`
	Members   [2]string `cbor:"members"`
	LastSeq   int64     `cbor:"last_seq"`
	CreatedAt int64     `cbor:"created_at"`
}

type messageRecord struct {
	ID             string `cbor:"id"`
	ConversationID string `cbor:"conversation_id"`
	SenderID       string `cbor:"sender_id"`
	Text           string `cbor:"text"`
	Seq            int64  `cbor:"seq"`
	CreatedAt      int64  `cbor:"created_at"`
}

// KVStore implements store.Store for BadgerDB.
type KVStore struct {
	db *badger.DB
}

// New opens a Badger database in dir. An empty dir opens an in-memory database.
func New(dir string) (*KVStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Close closes the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

func userKey(id string) []byte     { return []byte("user:" + id) }
func emailKey(email string) []byte { return []byte("email:" + email) }
func convKey(id string) []byte     { return []byte("conv:" + id) }
func pairKey(a, b string) []byte   { return []byte("pair:" + store.PairKey(a, b)) }

// memberPrefix is length-prefixed so one user's prefix never matches
// another user's keys.
func memberPrefix(userID string) []byte {
	return []byte("member:" + strconv.Itoa(len(userID)) + ":" + userID + ":")
}

func memberKey(userID, convID string) []byte {
	return append(memberPrefix(userID), convID...)
}

func msgPrefix(convID string) []byte { return []byte("msg:" + convID + ":") }

func msgKey(convID string, seq int64) []byte {
	return fmt.Appendf(msgPrefix(convID), "%019d", seq)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *KVStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, out)
	})
}

func setValue(txn *badger.Txn, key []byte, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// ==== UserStore implementation ====

// CreateUser creates a new user.
func (s *KVStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	rec := userRecord{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().UnixNano(),
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getString(txn, emailKey(email)); err == nil {
			return store.ErrUserExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := setValue(txn, userKey(rec.ID), rec); err != nil {
			return err
		}
		return txn.Set(emailKey(email), []byte(rec.ID))
	})
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return rec.toUser(), nil
}

// GetUserByID retrieves a user by ID.
func (s *KVStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getValue(txn, userKey(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return rec.toUser(), nil
}

// GetUserByEmail retrieves a user by email.
func (s *KVStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, emailKey(email))
		if err != nil {
			return err
		}
		return getValue(txn, userKey(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return rec.toUser(), nil
}

// ListUsers returns every user ordered by creation.
func (s *KVStore) ListUsers(_ context.Context) ([]*store.User, error) {
	var users []*store.User
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			users = append(users, rec.toUser())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	slices.SortStableFunc(users, func(a, b *store.User) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return users, nil
}

// SetUserToken stores the current session token; empty clears it.
func (s *KVStore) SetUserToken(ctx context.Context, id, token string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var rec userRecord
		if err := getValue(txn, userKey(id), &rec); err != nil {
			return err
		}
		rec.Token = token
		return setValue(txn, userKey(id), rec)
	})
	if err != nil {
		return fmt.Errorf("user %s: %w", id, err)
	}
	return nil
}

func (r userRecord) toUser() *store.User {
	return &store.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Token:        r.Token,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
}

// ==== ConversationStore implementation ====

// FindConversation returns the conversation between a and b.
func (s *KVStore) FindConversation(_ context.Context, a, b string) (*store.Conversation, error) {
	var rec conversationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, pairKey(a, b))
		if err != nil {
			return err
		}
		return getValue(txn, convKey(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	return rec.toConversation(), nil
}

// CreateConversation returns the conversation between a and b, creating it
// if needed.
func (s *KVStore) CreateConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	var rec conversationRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		id, err := getString(txn, pairKey(a, b))
		if err == nil {
			return getValue(txn, convKey(id), &rec)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		rec = conversationRecord{
			ID:        uuid.NewString(),
			Members:   store.SortedPair(a, b),
			CreatedAt: time.Now().UTC().UnixNano(),
		}
		if err := setValue(txn, convKey(rec.ID), rec); err != nil {
			return err
		}
		if err := txn.Set(pairKey(a, b), []byte(rec.ID)); err != nil {
			return err
		}
		if err := txn.Set(memberKey(rec.Members[0], rec.ID), nil); err != nil {
			return err
		}
		return txn.Set(memberKey(rec.Members[1], rec.ID), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	return rec.toConversation(), nil
}

// GetConversation retrieves a conversation by ID.
func (s *KVStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	var rec conversationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getValue(txn, convKey(id), &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	return rec.toConversation(), nil
}

// ListConversationsForUser lists conversations the user is a member of.
func (s *KVStore) ListConversationsForUser(_ context.Context, userID string) ([]*store.Conversation, error) {
	var conversations []*store.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			convID := string(it.Item().Key()[len(prefix):])
			var rec conversationRecord
			if err := getValue(txn, convKey(convID), &rec); err != nil {
				return err
			}
			conversations = append(conversations, rec.toConversation())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

func (r conversationRecord) toConversation() *store.Conversation {
	return &store.Conversation{
		ID:        r.ID,
		Members:   r.Members,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// ==== Messages ====

// AppendMessage persists a message with the next sequence number.
func (s *KVStore) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*store.Message, error) {
	var msg messageRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		var conv conversationRecord
		if err := getValue(txn, convKey(conversationID), &conv); err != nil {
			return err
		}
		conv.LastSeq++
		msg = messageRecord{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Text:           text,
			Seq:            conv.LastSeq,
			CreatedAt:      time.Now().UTC().UnixNano(),
		}
		if err := setValue(txn, convKey(conversationID), conv); err != nil {
			return err
		}
		return setValue(txn, msgKey(conversationID, msg.Seq), msg)
	})
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	return msg.toMessage(), nil
}

// ListMessages returns the conversation's messages in sequence order.
func (s *KVStore) ListMessages(_ context.Context, conversationID string) ([]*store.Message, error) {
	var messages []*store.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := msgPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		// Zero padded sequence keys iterate in sequence order.
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec messageRecord
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			messages = append(messages, rec.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (r messageRecord) toMessage() *store.Message {
	return &store.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Text:           r.Text,
		Seq:            r.Seq,
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
}
