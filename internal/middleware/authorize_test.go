package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/model"
)

// --- モック定義 ---

type fixedRoleResolver struct {
	role authz.Role
}

func (f *fixedRoleResolver) ResolveRole(ctx context.Context, user *model.User) authz.Role {
	return f.role
}

type mockDecisionRecorder struct {
	decisions []string
}

func (m *mockDecisionRecorder) RecordAuthzDecision(decision string) {
	m.decisions = append(m.decisions, decision)
}

func testTable(t *testing.T) *authz.Table {
	t.Helper()
	table, err := authz.ParseTable([]byte(`
[[route]]
path = "/"

[[route]]
path = "/signin"
auth_page = true

[[route]]
path = "/dashboard"
requires_auth = true

[[route]]
path = "/admin"
requires_admin = true
`))
	if err != nil {
		t.Fatalf("ParseTable failed: %v", err)
	}
	return table
}

func authedRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := ContextWithSessionUser(req.Context(),
		&model.Session{ID: "session-1", UserID: "user-1", ExpiresAt: time.Now().Add(1 * time.Hour)},
		&model.User{ID: "user-1"},
	)
	return req.WithContext(ctx)
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

// --- ページ認可のテスト ---

func TestPageAuthorize_Anonymous_ProtectedRoute_RedirectsToSignIn(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	rec := &mockDecisionRecorder{}
	mw := NewPageAuthorizeMiddleware(gate, testTable(t), rec)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if *called {
		t.Error("handler must not be called")
	}
	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/signin" {
		t.Errorf("Location = %q, want /signin", loc)
	}
	if len(rec.decisions) != 1 || rec.decisions[0] != "redirect_to_sign_in" {
		t.Errorf("unexpected recorded decisions: %v", rec.decisions)
	}
}

func TestPageAuthorize_Authenticated_AuthPage_RedirectsToDashboard(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	mw := NewPageAuthorizeMiddleware(gate, testTable(t), nil)

	handler, _ := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/signin"))

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestPageAuthorize_NonAdmin_AdminRoute_RedirectsToDashboard(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	mw := NewPageAuthorizeMiddleware(gate, testTable(t), nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/admin"))

	if *called {
		t.Error("handler must not be called")
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestPageAuthorize_Admin_AdminRoute_Allows(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleAdmin})
	mw := NewPageAuthorizeMiddleware(gate, testTable(t), nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/admin"))

	if !*called {
		t.Error("handler must be called for admin")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestPageAuthorize_UndeclaredRoute_FailsClosed(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	mw := NewPageAuthorizeMiddleware(gate, testTable(t), nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/brand-new-page", nil))

	if *called {
		t.Error("undeclared route must not be served to anonymous users")
	}
	if loc := w.Header().Get("Location"); loc != "/signin" {
		t.Errorf("Location = %q, want /signin", loc)
	}
}

// --- API認可のテスト ---

func TestRequireAuth_Anonymous_Returns401(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	mw := NewRequireAuthMiddleware(gate, nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	if *called {
		t.Error("handler must not be called")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireAuth_Authenticated_Allows(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	mw := NewRequireAuthMiddleware(gate, nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/api/recordings"))

	if !*called {
		t.Error("handler must be called")
	}
}

func TestRequireAdmin_Anonymous_Returns401(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleAdmin})
	mw := NewRequireAdminMiddleware(gate, nil)

	handler, _ := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireAdmin_UserRole_Returns403(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleUser})
	rec := &mockDecisionRecorder{}
	mw := NewRequireAdminMiddleware(gate, rec)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/api/admin/users"))

	if *called {
		t.Error("handler must not be called")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if len(rec.decisions) != 1 || rec.decisions[0] != "redirect_to_dashboard" {
		t.Errorf("unexpected recorded decisions: %v", rec.decisions)
	}
}

func TestRequireAdmin_AdminRole_Allows(t *testing.T) {
	gate := authz.NewGate(&fixedRoleResolver{role: authz.RoleAdmin})
	mw := NewRequireAdminMiddleware(gate, nil)

	handler, called := okHandler()
	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, authedRequest("/api/admin/users"))

	if !*called {
		t.Error("handler must be called for admin")
	}
}
