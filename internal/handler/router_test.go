package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/middleware"
	"github.com/recapio/recapio/internal/model"
)

const routerTestTOML = `
[[route]]
path = "/"
requires_auth = false

[[route]]
path = "/signin"
requires_auth = false
auth_page = true

[[route]]
path = "/dashboard"
requires_auth = true

[[route]]
path = "/admin"
requires_admin = true
`

// mockSessionResolver はセッションIDからユーザーを解決するテスト用リゾルバー。
type mockSessionResolver struct {
	users map[string]*model.User
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
	user, ok := m.users[sessionID]
	if !ok {
		return nil, nil, nil
	}
	session := &model.Session{ID: sessionID, UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}
	return session, user, nil
}

// userIDRoleResolver はユーザーIDで管理者を判定するテスト用リゾルバー。
type userIDRoleResolver struct {
	adminIDs map[string]bool
}

func (r *userIDRoleResolver) ResolveRole(ctx context.Context, user *model.User) authz.Role {
	if user != nil && r.adminIDs[user.ID] {
		return authz.RoleAdmin
	}
	return authz.RoleUser
}

func newTestRouter(t *testing.T) (http.Handler, func()) {
	t.Helper()

	table, err := authz.ParseTable([]byte(routerTestTOML))
	if err != nil {
		t.Fatalf("failed to parse routes: %v", err)
	}

	resolver := &userIDRoleResolver{adminIDs: map[string]bool{"admin-1": true}}
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 10))

	deps := &RouterDeps{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		SessionResolver: &mockSessionResolver{
			users: map[string]*model.User{
				"user-session":  {ID: "user-1", Email: "taro@example.com"},
				"admin-session": {ID: "admin-1", Email: "admin@example.com"},
			},
		},
		Gate:              authz.NewGate(resolver),
		Table:             table,
		RoleResolver:      resolver,
		CORSAllowedOrigin: "http://localhost:3000",
		CSRFConfig:        middleware.CSRFConfig{},
		RateLimiter:       limiter,
		AuthService:       &mockAuthService{},
		AuthConfig:        testAuthConfig(),
		RecordingService:  &mockRecordingService{},
		FeedImporter:      &mockImporter{},
		UserService:       &mockUserService{},
		AdminService:      &mockAdminService{},
		ModelCatalog:      &mockModelLister{},
		PageHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("page"))
		}),
	}

	return NewRouter(deps), limiter.Stop
}

func sessionRequest(method, target, sessionID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
	}
	return req
}

func TestRouter_Health_Public(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_Recordings_Anonymous_Returns401(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/recordings", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_Recordings_Authenticated_Returns200(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/recordings", "user-session"))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_AdminStats_NonAdmin_Returns403(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/admin/stats", "user-session"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_AdminStats_Anonymous_Returns401(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/admin/stats", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_AdminStats_Admin_Returns200(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/admin/stats", "admin-session"))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_Post_WithoutCSRFToken_Returns403(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	req := sessionRequest(http.MethodPost, "/api/recordings", "user-session")
	req.Body = io.NopCloser(strings.NewReader(`{"source_url":"https://media.example.com/a.mp3"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_Post_WithCSRFToken_Succeeds(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	req := sessionRequest(http.MethodPost, "/api/recordings", "user-session")
	req.Body = io.NopCloser(strings.NewReader(`{"title":"会議","source_url":"https://media.example.com/a.mp3"}`))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-1"})
	req.Header.Set("X-CSRF-Token", "token-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_Nav_Anonymous_Returns200(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/api/nav", ""))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_ProtectedPage_Anonymous_RedirectsToSignIn(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/dashboard", ""))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/signin" {
		t.Errorf("Location = %q, want /signin", loc)
	}
}

func TestRouter_AuthPage_Authenticated_RedirectsToDashboard(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/signin", "user-session"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestRouter_UndeclaredPage_Anonymous_FailsClosed(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/totally-unknown", ""))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (fail-closed redirect)", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/signin" {
		t.Errorf("Location = %q, want /signin", loc)
	}
}

func TestRouter_ProtectedPage_Authenticated_ServesPage(t *testing.T) {
	router, stop := newTestRouter(t)
	defer stop()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, sessionRequest(http.MethodGet, "/dashboard", "user-session"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "page" {
		t.Errorf("body = %q, want page content", rec.Body.String())
	}
}
