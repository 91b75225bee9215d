// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/recapio/recapio/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// List は全ユーザーをcreated_at昇順で返す。管理画面用。
	List(ctx context.Context, limit, offset int) ([]*model.User, error)

	// Count は総ユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、user_roles、recordingsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// RoleRepository はロール割り当て（user_rolesテーブル）の永続化インターフェース。
// Identityメタデータとは独立したロール情報源であり、authz.Resolverの
// フォールバック先となる。
type RoleRepository interface {
	// FindByUserID は指定ユーザーのロール割り当てを取得する。
	// 見つからない場合はnilを返す（単一行・単一ステートメントの検索）。
	FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error)

	// Upsert はロール割り当てを冪等に作成・更新する。
	Upsert(ctx context.Context, assignment *model.RoleAssignment) error

	// DeleteByUserID は指定ユーザーのロール割り当てを削除する。
	// 割り当てが存在しない場合もエラーにならない。
	DeleteByUserID(ctx context.Context, userID string) error

	// ListWithUsers は全ロール割り当てをユーザー情報付きで返す。管理画面用。
	ListWithUsers(ctx context.Context) ([]UserWithRole, error)
}

// RecordingRepository は録音データの永続化インターフェース。
type RecordingRepository interface {
	// FindByID は指定IDの録音データを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Recording, error)

	// FindByUserAndSourceURL はユーザーIDとsource_urlで録音データを検索する。
	// インポート時の重複判定に使用する。見つからない場合はnilを返す。
	FindByUserAndSourceURL(ctx context.Context, userID, sourceURL string) (*model.Recording, error)

	// Create は録音データを作成する。
	Create(ctx context.Context, recording *model.Recording) error

	// ListByUserID はユーザーの録音データ一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*model.Recording, error)

	// CountByUserID はユーザーの録音データ数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Count は全録音データ数を返す。管理画面の利用統計用。
	Count(ctx context.Context) (int, error)

	// ListDueForTranscription は文字起こし対象の録音データを取得する。
	// status = 'pending' かつ next_attempt_at <= now() の録音データを
	// FOR UPDATE SKIP LOCKEDで排他的に取得し、statusをprocessingに更新する。
	ListDueForTranscription(ctx context.Context, limit int) ([]*model.Recording, error)

	// UpdateTranscriptionState は録音データの処理状態を更新する。
	// status、consecutive_errors、error_message、next_attempt_atを更新する。
	UpdateTranscriptionState(ctx context.Context, recording *model.Recording) error

	// Delete は指定IDの録音データを削除する。transcriptsはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// TranscriptRepository は文字起こし結果の永続化インターフェース。
type TranscriptRepository interface {
	// FindByRecordingID は指定録音データの文字起こし結果を取得する。
	// 見つからない場合はnilを返す。
	FindByRecordingID(ctx context.Context, recordingID string) (*model.Transcript, error)

	// Create は文字起こし結果を作成する。録音データ1件につき1件のみ。
	Create(ctx context.Context, transcript *model.Transcript) error

	// Count は全文字起こし数を返す。管理画面の利用統計用。
	Count(ctx context.Context) (int, error)
}

// UserWithRole はユーザーとロール割り当てを結合した構造体。
// ロール割り当てが存在しないユーザーはRoleが空文字列になる。
type UserWithRole struct {
	model.User
	Role          string
	RoleUpdatedAt time.Time
}
