package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/recapio/recapio/internal/model"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (*model.Session, *model.User, error)
	gotID     string
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
	m.gotID = sessionID
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	return nil, nil, nil
}

func authenticatedResolver(userID string) *mockSessionResolver {
	return &mockSessionResolver{
		resolveFn: func(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
			return &model.Session{ID: sessionID, UserID: userID, ExpiresAt: time.Now().Add(1 * time.Hour)},
				&model.User{ID: userID, Email: "taro@example.com"},
				nil
		},
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidCookie_InjectsSessionAndUser(t *testing.T) {
	resolver := authenticatedResolver("user-1")
	mw := NewSessionMiddleware(resolver)

	var gotSession *model.Session
	var gotUser *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = SessionFromContext(r.Context())
		gotUser = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-1"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if resolver.gotID != "session-1" {
		t.Errorf("resolver received %q, want session-1", resolver.gotID)
	}
	if gotSession == nil || gotSession.ID != "session-1" {
		t.Errorf("session not injected: %v", gotSession)
	}
	if gotUser == nil || gotUser.ID != "user-1" {
		t.Errorf("user not injected: %v", gotUser)
	}
}

func TestSessionMiddleware_NoCookie_PassesThroughAnonymous(t *testing.T) {
	mw := NewSessionMiddleware(&mockSessionResolver{})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if SessionFromContext(r.Context()) != nil {
			t.Error("anonymous request must have no session in context")
		}
		if UserFromContext(r.Context()) != nil {
			t.Error("anonymous request must have no user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("anonymous request must pass through to the handler")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSessionMiddleware_UnknownSession_PassesThroughAnonymous(t *testing.T) {
	// リゾルバーが (nil, nil, nil) を返す場合も素通しする
	mw := NewSessionMiddleware(&mockSessionResolver{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.Background()

	if _, err := UserIDFromContext(ctx); err == nil {
		t.Error("expected error for context without user")
	}

	ctx = ContextWithSessionUser(ctx,
		&model.Session{ID: "session-1", UserID: "user-1"},
		&model.User{ID: "user-1"},
	)
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}
}
