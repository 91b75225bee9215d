package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recapio/recapio/internal/admin"
	"github.com/recapio/recapio/internal/middleware"
	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
	"github.com/recapio/recapio/internal/transcribe"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]repository.UserWithRole, error)
	AssignRole(ctx context.Context, assignedBy, userID, role string) (*model.RoleAssignment, error)
	GetStats(ctx context.Context) (*admin.Stats, error)
}

// ModelListerInterface は利用可能な文字起こしモデル一覧のインターフェース。
type ModelListerInterface interface {
	List(ctx context.Context) []transcribe.Model
}

// AdminHandler は管理者向けAPIのHTTPハンドラー。
// 管理者権限の確認はミドルウェア層で完了している前提で動作する。
type AdminHandler struct {
	service AdminServiceInterface
	models  ModelListerInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, models ModelListerInterface) *AdminHandler {
	return &AdminHandler{
		service: service,
		models:  models,
	}
}

// assignRoleRequest はロール割り当てリクエストのボディ。
type assignRoleRequest struct {
	Role string `json:"role"`
}

// adminUserResponse は管理画面のユーザー一覧1件分のレスポンス。
type adminUserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// assignRoleResponse はロール割り当て結果のレスポンス。
type assignRoleResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// modelListResponse は文字起こしモデル一覧のレスポンス。
type modelListResponse struct {
	Models []transcribe.Model `json:"models"`
}

// ListUsers は全ユーザーをロール付きで返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]adminUserResponse, len(users))
	for i, u := range users {
		role := u.Role
		if role == "" {
			role = "user" // 割り当てなしは一般ユーザー扱い
		}
		resp[i] = adminUserResponse{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      role,
			CreatedAt: u.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": resp})
}

// AssignRole は指定ユーザーへのロール割り当てを処理する。
// PUT /api/admin/users/{id}/role
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	adminID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	assignment, err := h.service.AssignRole(r.Context(), adminID, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assignRoleResponse{
		UserID:    assignment.UserID,
		Role:      assignment.Role,
		UpdatedAt: assignment.UpdatedAt,
	})
}

// ListModels は利用可能な文字起こしモデル一覧を返す。
// GET /api/admin/models
func (h *AdminHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelListResponse{
		Models: h.models.List(r.Context()),
	})
}

// Stats はサービス全体の利用統計を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
