package handler

import (
	"net/http"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/middleware"
)

// NavHandler はナビゲーション表示項目のHTTPハンドラー。
// 認可ゲートと同じ述語で項目をフィルタし、表示とアクセス制御の矛盾を防ぐ。
type NavHandler struct {
	table    *authz.Table
	resolver authz.RoleResolver
}

// NewNavHandler はNavHandlerを生成する。
func NewNavHandler(table *authz.Table, resolver authz.RoleResolver) *NavHandler {
	return &NavHandler{
		table:    table,
		resolver: resolver,
	}
}

// navResponse はナビゲーションのAPIレスポンス。
type navResponse struct {
	Groups []authz.NavGroup `json:"groups"`
}

// Nav は現在のロール・認証状態で表示可能なナビゲーション項目を返す。
// 未認証でも公開項目のみの結果を返す。
// GET /api/nav
func (h *NavHandler) Nav(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	user := middleware.UserFromContext(r.Context())
	authenticated := session != nil

	role := authz.RoleUser
	if authenticated {
		role = h.resolver.ResolveRole(r.Context(), user)
	}

	groups := authz.VisibleItems(h.table.Nav(), role, authenticated)
	if groups == nil {
		groups = []authz.NavGroup{}
	}

	writeJSON(w, http.StatusOK, navResponse{Groups: groups})
}
