package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vovakirdan/duochat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserAndDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "Alice", "alice@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" || user.Name != "Alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := s.CreateUser(ctx, "Other", "alice@example.com", "hash"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, byEmail.ID)
	}

	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetUserToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "Bob", "bob@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := s.SetUserToken(ctx, user.ID, "tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	got, _ := s.GetUserByID(ctx, user.ID)
	if got.Token != "tok" {
		t.Fatalf("expected token to be stored, got %q", got.Token)
	}

	if err := s.SetUserToken(ctx, user.ID, ""); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	got, _ = s.GetUserByID(ctx, user.ID)
	if got.Token != "" {
		t.Fatalf("expected token to be cleared, got %q", got.Token)
	}

	if err := s.SetUserToken(ctx, "missing", "tok"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		if _, err := s.CreateUser(ctx, email, email, "hash"); err != nil {
			t.Fatalf("create user %s: %v", email, err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	if users[0].Email != "a@x.io" || users[2].Email != "c@x.io" {
		t.Fatalf("unexpected order: %s, %s", users[0].Email, users[2].Email)
	}
}

func TestCreateConversationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindConversation(ctx, "u1", "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}

	first, err := s.CreateConversation(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if first.Members != [2]string{"u1", "u2"} {
		t.Fatalf("expected sorted members, got %v", first.Members)
	}

	second, err := s.CreateConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("create conversation again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID, second.ID)
	}

	found, err := s.FindConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("find returned %s, want %s", found.ID, first.ID)
	}
}

func TestCreateConversationConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if n%2 == 1 {
				a, b = b, a
			}
			conv, err := s.CreateConversation(ctx, a, b)
			if err != nil {
				t.Errorf("create conversation: %v", err)
				return
			}
			ids[n] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single conversation, got %v", ids)
		}
	}

	convs, err := s.ListConversationsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
}

func TestAppendMessageAssignsSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	other, err := s.CreateConversation(ctx, "u1", "u3")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	texts := []string{"hello", "hi", "how are you"}
	for i, text := range texts {
		msg, err := s.AppendMessage(ctx, conv.ID, "u1", text)
		if err != nil {
			t.Fatalf("append message: %v", err)
		}
		if msg.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, msg.Seq)
		}
	}

	// Sequences are per conversation.
	msg, err := s.AppendMessage(ctx, other.ID, "u3", "yo")
	if err != nil {
		t.Fatalf("append to other: %v", err)
	}
	if msg.Seq != 1 {
		t.Fatalf("expected seq 1 in other conversation, got %d", msg.Seq)
	}

	messages, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != len(texts) {
		t.Fatalf("expected %d messages, got %d", len(texts), len(messages))
	}
	for i, m := range messages {
		if m.Text != texts[i] || m.Seq != int64(i+1) || m.SenderID != "u1" {
			t.Fatalf("unexpected message %d: %+v", i, m)
		}
	}
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendMessage(context.Background(), "missing", "u1", "hello")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, peer := range []string{"b", "c"} {
		if _, err := s.CreateConversation(ctx, "a", peer); err != nil {
			t.Fatalf("create conversation: %v", err)
		}
	}
	if _, err := s.CreateConversation(ctx, "b", "c"); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	convs, err := s.ListConversationsForUser(ctx, "a")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	for _, c := range convs {
		if !c.HasMember("a") {
			t.Fatalf("conversation %s does not include a: %v", c.ID, c.Members)
		}
	}
}

func TestCreateConversationIDsWithSeparator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, "a:b", "c")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	second, err := s.CreateConversation(ctx, "a", "b:c")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("distinct pairs share conversation %s", first.ID)
	}
	if second.Members != [2]string{"a", "b:c"} {
		t.Fatalf("unexpected members: %v", second.Members)
	}

	found, err := s.FindConversation(ctx, "b:c", "a")
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if found.ID != second.ID {
		t.Fatalf("find returned %s, want %s", found.ID, second.ID)
	}
}
