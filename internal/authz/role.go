// Package authz はロール解決と経路認可の判定ロジックを提供する。
// エッジミドルウェア、APIハンドラーのガード、ナビゲーションフィルタの
// 3つの適用箇所すべてがこのパッケージの単一実装を共有する。
package authz

import (
	"context"
	"log/slog"
	"strings"

	"github.com/recapio/recapio/internal/model"
)

// Role はユーザーのロールを表す。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// metadataRoleKey はIdentityメタデータ内のロールを保持するキー。
const metadataRoleKey = "role"

// RoleStore はロール割り当ての検索インターフェース。
// repository.RoleRepositoryの部分集合として定義する。
type RoleStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error)
}

// RoleMetrics はロール解決の観測インターフェース。
// ストア検索の失敗を監査用に記録する。
type RoleMetrics interface {
	RecordRoleLookupFailure()
}

// Resolver はユーザーのロールを2つの独立した情報源から解決する。
//
// 優先順位（変更禁止）:
//  1. AppMetadata（サーバーサイドの特権呼び出しのみが設定できる名前空間）
//  2. UserMetadata（ユーザーが変更できる名前空間）
//  3. user_rolesテーブル（RoleStore）
//
// メタデータのいずれかが"admin"の場合はストアを検索せずに即座にAdminを返す。
// ストア検索に失敗した場合はログと監査メトリクスに記録し、Userにフォールバック
// する（フェイルクローズ: エラーで権限を付与することはない）。
// この関数がエラーを返すことはない。
type Resolver struct {
	store   RoleStore
	metrics RoleMetrics
}

// NewResolver はResolverを生成する。metricsはnilでもよい。
func NewResolver(store RoleStore, metrics RoleMetrics) *Resolver {
	return &Resolver{store: store, metrics: metrics}
}

// ResolveRole はユーザーのロールを解決する。
// userがnilの場合はRoleUserを返す（上流で拒否済みであることを前提とした
// 安全なデフォルトであり、このデフォルトが権限付与に使われることはない）。
func (r *Resolver) ResolveRole(ctx context.Context, user *model.User) Role {
	if user == nil {
		return RoleUser
	}

	// 1. メタデータ名前空間を確認。AppMetadataが先、UserMetadataが後。
	// いずれかがadminであればストアを検索せずに確定する。
	// ストア検索をスキップするのは性能のためだけでなく、DB障害時に
	// 正当なメタデータadminユーザーの権限が失われるのを防ぐため。
	if metadataRole(user.AppMetadata) == RoleAdmin || metadataRole(user.UserMetadata) == RoleAdmin {
		return RoleAdmin
	}

	// 2. user_rolesテーブルへフォールバック（単一行検索、最大1回）
	assignment, err := r.store.FindByUserID(ctx, user.ID)
	if err != nil {
		// フェイルクローズ: エラーはUserロールに縮退し、監査用に記録する。
		// 呼び出し側は「非管理者確定」と「検索失敗」を区別できない。
		slog.Error("role lookup failed, falling back to user role",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		if r.metrics != nil {
			r.metrics.RecordRoleLookupFailure()
		}
		return RoleUser
	}

	if assignment != nil && strings.EqualFold(assignment.Role, string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// metadataRole はメタデータ名前空間からロールを読み取る。
// 大文字小文字は区別しない。
func metadataRole(meta model.Metadata) Role {
	if meta == nil {
		return ""
	}
	if strings.EqualFold(meta[metadataRoleKey], string(RoleAdmin)) {
		return RoleAdmin
	}
	return ""
}
