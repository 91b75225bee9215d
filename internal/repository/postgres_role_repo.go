package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recapio/recapio/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用したロール割り当てリポジトリ。
// user_rolesテーブルはuser_idを主キーとし、1ユーザーにつき最大1行となる。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// FindByUserID は指定ユーザーのロール割り当てを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	assignment := &model.RoleAssignment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, assigned_by, updated_at
		 FROM user_roles WHERE user_id = $1`,
		userID,
	).Scan(&assignment.UserID, &assignment.Role, &assignment.AssignedBy, &assignment.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role assignment: %w", err)
	}

	return assignment, nil
}

// Upsert はロール割り当てを冪等に作成・更新する。
func (r *PostgresRoleRepo) Upsert(ctx context.Context, assignment *model.RoleAssignment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role, assigned_by, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id)
		 DO UPDATE SET role = EXCLUDED.role, assigned_by = EXCLUDED.assigned_by, updated_at = EXCLUDED.updated_at`,
		assignment.UserID, assignment.Role, assignment.AssignedBy, assignment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert role assignment: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーのロール割り当てを削除する。
// 割り当てが存在しない場合もエラーにならない。
func (r *PostgresRoleRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete role assignment: %w", err)
	}
	return nil
}

// ListWithUsers は全ロール割り当てをユーザー情報付きで返す。管理画面用。
// ロール割り当てが存在しないユーザーも含まれ、その場合Roleは空文字列になる。
func (r *PostgresRoleRepo) ListWithUsers(ctx context.Context) ([]UserWithRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.created_at, u.updated_at,
		        COALESCE(ur.role, ''), COALESCE(ur.updated_at, u.created_at)
		 FROM users u
		 LEFT JOIN user_roles ur ON ur.user_id = u.id
		 ORDER BY u.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with roles: %w", err)
	}
	defer rows.Close()

	var results []UserWithRole
	for rows.Next() {
		var uwr UserWithRole
		if err := rows.Scan(&uwr.ID, &uwr.Email, &uwr.Name, &uwr.CreatedAt, &uwr.UpdatedAt,
			&uwr.Role, &uwr.RoleUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user with role: %w", err)
		}
		results = append(results, uwr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users with roles: %w", err)
	}

	return results, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
