package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/recapio/recapio/internal/model"
)

// --- モック定義 ---

type mockIdentityProvider struct {
	loginURLFn     func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (string, error)
}

func (m *mockIdentityProvider) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://idp.example.com/authorize?state=" + state
}

func (m *mockIdentityProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return "", errors.New("not configured")
}

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) { return 0, nil }

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error { return nil }

type mockIdentityRepo struct {
	findFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findFn != nil {
		return m.findFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
	deleted      []string
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error { return nil }

type mockSessionMetrics struct {
	resolveFailures int
}

func (m *mockSessionMetrics) RecordSessionResolveFailure() {
	m.resolveFailures++
}

func newTestService(provider IdentityProvider, userRepo *mockUserRepo, identityRepo *mockIdentityRepo, sessionRepo *mockSessionRepo, metrics SessionMetrics) *authService {
	return NewAuthService(
		provider,
		NewTokenVerifier(testSecret),
		userRepo,
		identityRepo,
		sessionRepo,
		metrics,
		24*time.Hour,
	)
}

// --- HandleCallbackのテスト ---

func TestHandleCallback_NewUser_CreatesUserAndSession(t *testing.T) {
	raw := signTestToken(t, jwt.SigningMethodHS256, testSecret, validClaims())
	provider := &mockIdentityProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) {
			if code != "auth-code-1" {
				t.Errorf("unexpected code: %s", code)
			}
			return raw, nil
		},
	}

	var createdUser *model.User
	var createdIdentity *model.Identity
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}

	var createdSession *model.Session
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := newTestService(provider, userRepo, &mockIdentityRepo{}, sessionRepo, nil)

	session, err := svc.HandleCallback(context.Background(), "auth-code-1")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "taro@example.com" {
		t.Errorf("unexpected email: %s", createdUser.Email)
	}
	if createdUser.AppMetadata["role"] != "admin" {
		t.Error("app_metadata from token must be stored on user")
	}
	if createdIdentity == nil || createdIdentity.ProviderUserID != "idp-user-1" {
		t.Errorf("unexpected identity: %v", createdIdentity)
	}
	if createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if session.UserID != createdUser.ID {
		t.Errorf("session user mismatch: %s != %s", session.UserID, createdUser.ID)
	}
	if len(session.ID) != 64 {
		t.Errorf("expected 64-char hex session ID, got %d chars", len(session.ID))
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("session must expire in the future")
	}
}

func TestHandleCallback_ExistingIdentity_ReusesUser(t *testing.T) {
	raw := signTestToken(t, jwt.SigningMethodHS256, testSecret, validClaims())
	provider := &mockIdentityProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) { return raw, nil },
	}

	identityRepo := &mockIdentityRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "user-1", Provider: provider, ProviderUserID: providerUserID}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com"}, nil
		},
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			t.Error("user must not be created for existing identity")
			return nil
		},
	}

	svc := newTestService(provider, userRepo, identityRepo, &mockSessionRepo{}, nil)

	session, err := svc.HandleCallback(context.Background(), "auth-code-2")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if session.UserID != "user-1" {
		t.Errorf("expected session for user-1, got %s", session.UserID)
	}
}

func TestHandleCallback_InvalidToken_ReturnsError(t *testing.T) {
	raw := signTestToken(t, jwt.SigningMethodHS256, "wrong-secret", validClaims())
	provider := &mockIdentityProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) { return raw, nil },
	}

	svc := newTestService(provider, &mockUserRepo{}, &mockIdentityRepo{}, &mockSessionRepo{}, nil)

	if _, err := svc.HandleCallback(context.Background(), "auth-code-3"); err == nil {
		t.Fatal("expected error for token with invalid signature")
	}
}

func TestHandleCallback_ExchangeError_ReturnsError(t *testing.T) {
	provider := &mockIdentityProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (string, error) {
			return "", errors.New("idp unavailable")
		},
	}

	svc := newTestService(provider, &mockUserRepo{}, &mockIdentityRepo{}, &mockSessionRepo{}, nil)

	if _, err := svc.HandleCallback(context.Background(), "auth-code-4"); err == nil {
		t.Fatal("expected error when code exchange fails")
	}
}

// --- ResolveSessionのテスト ---

func TestResolveSession_EmptyID_ReturnsAnonymous(t *testing.T) {
	svc := newTestService(&mockIdentityProvider{}, &mockUserRepo{}, &mockIdentityRepo{}, &mockSessionRepo{}, nil)

	session, user, err := svc.ResolveSession(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil || user != nil {
		t.Error("empty session ID must resolve to anonymous")
	}
}

func TestResolveSession_ValidSession_ReturnsUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(1 * time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com"}, nil
		},
	}

	svc := newTestService(&mockIdentityProvider{}, userRepo, &mockIdentityRepo{}, sessionRepo, nil)

	session, user, err := svc.ResolveSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil || session.UserID != "user-1" {
		t.Errorf("unexpected session: %v", session)
	}
	if user == nil || user.ID != "user-1" {
		t.Errorf("unexpected user: %v", user)
	}
}

func TestResolveSession_StoreError_FailsClosedAndRecords(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	metrics := &mockSessionMetrics{}

	svc := newTestService(&mockIdentityProvider{}, &mockUserRepo{}, &mockIdentityRepo{}, sessionRepo, metrics)

	session, user, err := svc.ResolveSession(context.Background(), "session-2")
	if err != nil {
		t.Fatalf("store error must not surface, got %v", err)
	}
	if session != nil || user != nil {
		t.Error("store error must resolve to anonymous (fail closed)")
	}
	if metrics.resolveFailures != 1 {
		t.Errorf("expected 1 recorded resolve failure, got %d", metrics.resolveFailures)
	}
}

func TestResolveSession_OrphanedSession_DeletesAndReturnsAnonymous(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "ghost-user", ExpiresAt: time.Now().Add(1 * time.Hour)}, nil
		},
	}

	svc := newTestService(&mockIdentityProvider{}, &mockUserRepo{}, &mockIdentityRepo{}, sessionRepo, nil)

	session, user, err := svc.ResolveSession(context.Background(), "session-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil || user != nil {
		t.Error("session for deleted user must resolve to anonymous")
	}
	if len(sessionRepo.deleted) != 1 || sessionRepo.deleted[0] != "session-3" {
		t.Errorf("orphaned session should be deleted, got %v", sessionRepo.deleted)
	}
}

// --- Logoutのテスト ---

func TestLogout_DeletesSession(t *testing.T) {
	sessionRepo := &mockSessionRepo{}
	svc := newTestService(&mockIdentityProvider{}, &mockUserRepo{}, &mockIdentityRepo{}, sessionRepo, nil)

	if err := svc.Logout(context.Background(), "session-4"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if len(sessionRepo.deleted) != 1 || sessionRepo.deleted[0] != "session-4" {
		t.Errorf("expected session-4 to be deleted, got %v", sessionRepo.deleted)
	}
}

func TestLogout_EmptyID_NoOp(t *testing.T) {
	sessionRepo := &mockSessionRepo{}
	svc := newTestService(&mockIdentityProvider{}, &mockUserRepo{}, &mockIdentityRepo{}, sessionRepo, nil)

	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("Logout with empty ID must be a no-op, got %v", err)
	}
	if len(sessionRepo.deleted) != 0 {
		t.Errorf("no deletion expected, got %v", sessionRepo.deleted)
	}
}
