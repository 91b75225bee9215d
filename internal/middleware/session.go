// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/recapio/recapio/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey = contextKey("session")
	userContextKey    = contextKey("user")
)

// SessionResolver はセッションCookieの解決に必要なインターフェース。
// auth.AuthServiceの部分集合として定義する。
type SessionResolver interface {
	// ResolveSession は未認証・ストア障害時に (nil, nil, nil) を返す。
	ResolveSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを解決し、
// セッションとユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストも素通しする。認可の判定はこの層では行わず、
// 後段のauthorizeミドルウェアに委ねる。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			session, user, _ := resolver.ResolveSession(r.Context(), sessionID)
			if session != nil && user != nil {
				ctx := ContextWithSessionUser(r.Context(), session, user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithSessionUser はコンテキストにセッションとユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSessionUser(ctx context.Context, session *model.Session, user *model.User) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, userContextKey, user)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 未認証の場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// UserFromContext はリクエストコンテキストからユーザーを取得する。
// 未認証の場合はnilを返す。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
// 認可ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	user := UserFromContext(ctx)
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("user not found in context")
	}
	return user.ID, nil
}
