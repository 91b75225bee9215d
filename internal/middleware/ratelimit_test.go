package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/recapio/recapio/internal/model"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(2.0),
		GeneralBurst:    2,
		ImportRate:      rate.Limit(1.0),
		ImportBurst:     1,
		CleanupInterval: 1 * time.Hour,
	}
}

func rateLimitedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
	ctx := ContextWithSessionUser(req.Context(),
		&model.Session{ID: "session-1", UserID: userID},
		&model.User{ID: userID},
	)
	return req.WithContext(ctx)
}

func TestGeneralMiddleware_WithinLimit_Allows(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, rateLimitedRequest("user-1"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バーストサイズ2を超える3回目で429
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, rateLimitedRequest("user-1"))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestGeneralMiddleware_LimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// user-1のバーストを使い切る
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), rateLimitedRequest("user-1"))
	}

	// user-2は影響を受けない
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, rateLimitedRequest("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("user-2 status = %d, want 200", w.Code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("expected 2 limiter entries, got %d", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_NoUser_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestImportMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	importMw := rl.ImportMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// インポートのバースト1を使い切る
	importMw.ServeHTTP(httptest.NewRecorder(), rateLimitedRequest("user-1"))

	w := httptest.NewRecorder()
	importMw.ServeHTTP(w, rateLimitedRequest("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("import status = %d, want 429", w.Code)
	}

	// API全般は独立して許可される
	w = httptest.NewRecorder()
	general.ServeHTTP(w, rateLimitedRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
}

func TestNewRateLimiterConfig_FromPerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)

	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.ImportBurst != 10 {
		t.Errorf("ImportBurst = %d, want 10", cfg.ImportBurst)
	}
}
