// Package model はドメインモデルを定義する。
package model

import "time"

// Metadata はIDプロバイダーが管理するメタデータ名前空間を表す。
// JSONBカラムとして永続化される。
type Metadata map[string]string

// User はサービス利用ユーザーを表す。
// AppMetadataはサーバーサイドの特権呼び出しのみが設定できる名前空間、
// UserMetadataはユーザー自身が変更できる名前空間。
// 2つの名前空間はロール解決の第1情報源となる（authzパッケージ参照）。
type User struct {
	ID           string
	Email        string
	Name         string
	AppMetadata  Metadata
	UserMetadata Metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdPに対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションリゾルバーが唯一の所有者であり、認可ゲートは読み取りのみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RoleAssignment はuser_rolesテーブルに永続化されたロール割り当てを表す。
// Identityのメタデータとは独立したライフサイクルを持ち、両者は矛盾しうる。
// 矛盾時の優先順位はauthz.Resolverが定義する（メタデータ優先）。
type RoleAssignment struct {
	UserID     string
	Role       string
	AssignedBy string
	UpdatedAt  time.Time
}
