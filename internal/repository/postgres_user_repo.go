package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/recapio/recapio/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var appMeta, userMeta []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, app_metadata, user_metadata, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &appMeta, &userMeta, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	if err := unmarshalMetadata(appMeta, &user.AppMetadata); err != nil {
		return nil, fmt.Errorf("failed to decode app_metadata: %w", err)
	}
	if err := unmarshalMetadata(userMeta, &user.UserMetadata); err != nil {
		return nil, fmt.Errorf("failed to decode user_metadata: %w", err)
	}

	return user, nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	appMeta, err := marshalMetadata(user.AppMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode app_metadata: %w", err)
	}
	userMeta, err := marshalMetadata(user.UserMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode user_metadata: %w", err)
	}

	// ユーザーを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, app_metadata, user_metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.Name, appMeta, userMeta, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// identityを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// List は全ユーザーをcreated_at昇順で返す。管理画面用。
func (r *PostgresUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, name, app_metadata, user_metadata, created_at, updated_at
		 FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var appMeta, userMeta []byte
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &appMeta, &userMeta, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if err := unmarshalMetadata(appMeta, &user.AppMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode app_metadata: %w", err)
		}
		if err := unmarshalMetadata(userMeta, &user.UserMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode user_metadata: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// Count は総ユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、sessions、user_roles、recordingsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// marshalMetadata はメタデータをJSONBカラム用にエンコードする。
// nilは空オブジェクトとして保存する。
func marshalMetadata(m model.Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// unmarshalMetadata はJSONBカラムの値をメタデータにデコードする。
func unmarshalMetadata(b []byte, dst *model.Metadata) error {
	if len(b) == 0 {
		*dst = model.Metadata{}
		return nil
	}
	return json.Unmarshal(b, dst)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
