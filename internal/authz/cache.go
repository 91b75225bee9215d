package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recapio/recapio/internal/model"
)

// roleCacheKeyPrefix はRedisキーのプレフィックス。
const roleCacheKeyPrefix = "recapio:role:"

// noAssignmentMarker はロール割り当てが存在しないことを表すキャッシュ値。
const noAssignmentMarker = "-"

// CachedRoleStore はRoleStoreの前段に置くRedisリードスルーキャッシュ。
//
// フェイルクローズ特性の保存（変更禁止）:
//   - キャッシュの読み書き失敗は内側のストアへの素通しになるだけで、
//     ロール解決の結果には影響しない。
//   - 内側のストアのエラーはキャッシュされず、そのまま伝播する
//     （Resolverがエラー時にUserへ縮退する挙動を損なわない）。
type CachedRoleStore struct {
	inner RoleStore
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedRoleStore はCachedRoleStoreを生成する。
// ttlが0以下の場合はデフォルト60秒を使用する。
func NewCachedRoleStore(inner RoleStore, rdb *redis.Client, ttl time.Duration) *CachedRoleStore {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedRoleStore{inner: inner, rdb: rdb, ttl: ttl}
}

// FindByUserID はキャッシュ経由でロール割り当てを検索する。
// キャッシュヒット時はストアに問い合わせない。ミス・エラー時は
// 内側のストアに委譲し、成功した結果のみをキャッシュする。
func (c *CachedRoleStore) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	key := roleCacheKeyPrefix + userID

	val, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		if val == noAssignmentMarker {
			return nil, nil
		}
		return &model.RoleAssignment{UserID: userID, Role: val}, nil
	}
	if !errors.Is(err, redis.Nil) {
		// キャッシュ障害はストアへの素通しに縮退する
		slog.Warn("role cache read failed, falling through to store",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	assignment, err := c.inner.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	cacheVal := noAssignmentMarker
	if assignment != nil {
		cacheVal = assignment.Role
	}
	if err := c.rdb.Set(ctx, key, cacheVal, c.ttl).Err(); err != nil {
		slog.Warn("role cache write failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return assignment, nil
}

// Invalidate は指定ユーザーのキャッシュエントリを削除する。
// ロール割り当ての変更直後に呼び出す。削除失敗はTTL切れで回復するため
// ログのみ記録する。
func (c *CachedRoleStore) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, roleCacheKeyPrefix+userID).Err(); err != nil {
		slog.Warn("role cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ RoleStore = (*CachedRoleStore)(nil)
