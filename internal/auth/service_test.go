package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/duochat-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsMissingFields(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	cases := [][3]string{
		{"", "a@x.io", "password123"},
		{"Alice", "  ", "password123"},
		{"Alice", "a@x.io", ""},
	}
	for _, c := range cases {
		if _, err := svc.Register(ctx, c[0], c[1], c[2]); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("%v: expected ErrMissingFields, got %v", c, err)
		}
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)

	if _, err := svc.Register(context.Background(), "Alice", "a@x.io", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Alice ", " Alice@Example.com ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if user.Name != "Alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "password123" {
		t.Fatalf("password must be hashed")
	}

	if _, err := svc.Register(ctx, "Other", "alice@example.com", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Bob", "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "bob@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	user, token, err := svc.Login(ctx, "BOB@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != registered.ID || token == "" {
		t.Fatalf("unexpected login result: %+v %q", user, token)
	}

	claims, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != registered.ID || claims.Email != "bob@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Carol", "carol@example.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, token, err := svc.Login(ctx, "carol@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestValidateToken_RejectsForeignSecret(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Dave", "dave@example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	forged, err := GenerateToken(&JWTConfig{
		Secret:   []byte("another-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, user.ID, user.Email)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), TTL: -time.Minute}

	token, err := GenerateToken(cfg, "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
