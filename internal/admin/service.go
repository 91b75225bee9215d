// Package admin は管理者向け操作のドメインロジックを提供する。
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recapio/recapio/internal/authz"
	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
)

// RoleCacheInvalidator はロール変更時にキャッシュを無効化するインターフェース。
// authz.CachedRoleStoreが実装する。キャッシュ未使用の構成ではnilを渡す。
type RoleCacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Stats は管理画面に表示する利用統計。
type Stats struct {
	UserCount       int `json:"user_count"`
	RecordingCount  int `json:"recording_count"`
	TranscriptCount int `json:"transcript_count"`
}

// Service は管理者向け操作のサービス層。
// 呼び出し元が管理者であることの確認はミドルウェア層の責務であり、
// ここでは行わない。
type Service struct {
	userRepo       repository.UserRepository
	roleRepo       repository.RoleRepository
	recordingRepo  repository.RecordingRepository
	transcriptRepo repository.TranscriptRepository
	cache          RoleCacheInvalidator
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheはnilを許容する。
func NewService(
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	recordingRepo repository.RecordingRepository,
	transcriptRepo repository.TranscriptRepository,
	cache RoleCacheInvalidator,
) *Service {
	return &Service{
		userRepo:       userRepo,
		roleRepo:       roleRepo,
		recordingRepo:  recordingRepo,
		transcriptRepo: transcriptRepo,
		cache:          cache,
	}
}

// ListUsers は全ユーザーをロール割り当て付きで返す。
func (s *Service) ListUsers(ctx context.Context) ([]repository.UserWithRole, error) {
	users, err := s.roleRepo.ListWithUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// AssignRole は指定ユーザーにロールを割り当てる。
// roleは"admin"または"user"のみ受け付ける。割り当て後はロールキャッシュを
// 無効化し、次のリクエストから新しいロールが反映されるようにする。
func (s *Service) AssignRole(ctx context.Context, assignedBy, userID, role string) (*model.RoleAssignment, error) {
	if role != string(authz.RoleAdmin) && role != string(authz.RoleUser) {
		return nil, model.NewInvalidRoleError(role)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	assignment := &model.RoleAssignment{
		UserID:     userID,
		Role:       role,
		AssignedBy: assignedBy,
		UpdatedAt:  time.Now(),
	}
	if err := s.roleRepo.Upsert(ctx, assignment); err != nil {
		return nil, fmt.Errorf("ロール割り当ての保存に失敗しました: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}

	slog.Info("ロールを割り当てました",
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("assigned_by", assignedBy),
	)

	return assignment, nil
}

// GetStats はサービス全体の利用統計を返す。
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	userCount, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	recordingCount, err := s.recordingRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("録音データ数の取得に失敗しました: %w", err)
	}
	transcriptCount, err := s.transcriptRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("文字起こし数の取得に失敗しました: %w", err)
	}

	return &Stats{
		UserCount:       userCount,
		RecordingCount:  recordingCount,
		TranscriptCount: transcriptCount,
	}, nil
}
