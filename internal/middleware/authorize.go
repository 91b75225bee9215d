package middleware

import (
	"net/http"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/model"
)

// リダイレクト先パス。経路テーブルの宣言と一致させる。
const (
	signInPath    = "/signin"
	dashboardPath = "/dashboard"
)

// DecisionRecorder は認可判定結果の記録インターフェース。
type DecisionRecorder interface {
	RecordAuthzDecision(decision string)
}

// recordDecision はレコーダーがnilでない場合のみ判定を記録する。
func recordDecision(rec DecisionRecorder, d authz.Decision) {
	if rec != nil {
		rec.RecordAuthzDecision(d.String())
	}
}

// NewPageAuthorizeMiddleware はページ経路の認可ミドルウェアを返す。
// 経路テーブルでリクエストパスをマッチし、ゲートの判定に従って
// リダイレクトまたは素通しを行う。SessionMiddlewareの後に配置する。
func NewPageAuthorizeMiddleware(gate *authz.Gate, table *authz.Table, rec DecisionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := table.Match(r.URL.Path)
			session := SessionFromContext(r.Context())
			user := UserFromContext(r.Context())

			decision := gate.Authorize(r.Context(), session, user, req)
			recordDecision(rec, decision)

			switch decision {
			case authz.DecisionRedirectToSignIn:
				http.Redirect(w, r, signInPath, http.StatusFound)
			case authz.DecisionRedirectToDashboard:
				http.Redirect(w, r, dashboardPath, http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// NewRequireAuthMiddleware はAPI経路の認証必須ミドルウェアを返す。
// 未認証リクエストには401のJSONエラーを返す。
func NewRequireAuthMiddleware(gate *authz.Gate, rec DecisionRecorder) func(next http.Handler) http.Handler {
	req := authz.Requirement{RequiresAuth: true}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			user := UserFromContext(r.Context())

			decision := gate.Authorize(r.Context(), session, user, req)
			recordDecision(rec, decision)

			if decision != authz.DecisionAllow {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireAdminMiddleware はAPI経路の管理者必須ミドルウェアを返す。
// 未認証には401、管理者以外には403のJSONエラーを返す。
func NewRequireAdminMiddleware(gate *authz.Gate, rec DecisionRecorder) func(next http.Handler) http.Handler {
	req := authz.Requirement{RequiresAuth: true, RequiresAdmin: true}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			user := UserFromContext(r.Context())

			decision := gate.Authorize(r.Context(), session, user, req)
			recordDecision(rec, decision)

			switch decision {
			case authz.DecisionAllow:
				next.ServeHTTP(w, r)
			case authz.DecisionRedirectToSignIn:
				writeUnauthorized(w)
			default:
				writeForbidden(w)
			}
		})
	}
}

// writeUnauthorized は401の統一エラーレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     model.ErrCodeSessionUnavailable,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	})
}

// writeForbidden は403の統一エラーレスポンスを書き込む。
func writeForbidden(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "FORBIDDEN",
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者権限が必要です。",
	})
}
