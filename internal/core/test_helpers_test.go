package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/duochat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			return
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func userIDs(users []OnlineUser) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}

func startHub(t *testing.T, st store.ConversationStore) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(st, RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, nil)
	go hub.Run(ctx)
	return hub
}

var errStoreDown = errors.New("disk on fire")

type appendCall struct {
	ConversationID string
	SenderID       string
	Text           string
}

// fakeStore is an in-memory ConversationStore with failure injection.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message
	creates       int
	appends       []appendCall

	failCreate int // number of CreateConversation calls to fail
	failAppend int // number of AppendMessage calls to fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]*store.Message),
	}
}

func (f *fakeStore) FindConversation(_ context.Context, a, b string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.Members == store.SortedPair(a, b) {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	f.mu.Lock()
	if f.failCreate > 0 {
		f.failCreate--
		f.mu.Unlock()
		return nil, errStoreDown
	}
	f.mu.Unlock()

	if c, err := f.FindConversation(ctx, a, b); err == nil {
		return c, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	c := &store.Conversation{
		ID:        "conv-" + store.PairKey(a, b),
		Members:   store.SortedPair(a, b),
		CreatedAt: time.Now(),
	}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conversations[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListConversationsForUser(_ context.Context, userID string) ([]*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Conversation
	for _, c := range f.conversations {
		if c.HasMember(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, conversationID, senderID, text string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appends = append(f.appends, appendCall{conversationID, senderID, text})
	if f.failAppend > 0 {
		f.failAppend--
		return nil, errStoreDown
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	msg := &store.Message{
		ID:             "m",
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Seq:            int64(len(f.messages[conversationID]) + 1),
		CreatedAt:      time.Now(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return msg, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[conversationID], nil
}

func (f *fakeStore) appendCalls() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendCall(nil), f.appends...)
}

func (f *fakeStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// seed adds a conversation with a fixed id.
func (f *fakeStore) seed(id, a, b string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id] = &store.Conversation{ID: id, Members: store.SortedPair(a, b)}
}
