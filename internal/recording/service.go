// Package recording は録音データ管理のドメインロジックを提供する。
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
	"github.com/recapio/recapio/internal/security"
)

// maxRecordingsPerUser はユーザー1人あたりの録音データ登録上限。
const maxRecordingsPerUser = 100

// RegisterInput は録音データ登録の入力。
type RegisterInput struct {
	Title       string
	Description string // 生HTML。保存前にサニタイズされる
	SourceURL   string
	MediaType   string
	Model       string // 空の場合はワーカーのデフォルトモデルを使用
}

// Service は録音データ管理のサービス層。
// 登録時のURL検証・サニタイズ・上限チェックと、所有権に基づく取得・削除を提供する。
type Service struct {
	recordingRepo  repository.RecordingRepository
	transcriptRepo repository.TranscriptRepository
	ssrfGuard      security.SSRFGuardService
	sanitizer      security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	recordingRepo repository.RecordingRepository,
	transcriptRepo repository.TranscriptRepository,
	ssrfGuard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		recordingRepo:  recordingRepo,
		transcriptRepo: transcriptRepo,
		ssrfGuard:      ssrfGuard,
		sanitizer:      sanitizer,
	}
}

// Register は録音データを登録し、文字起こし待ちキューに入れる。
// 同一ユーザー・同一source_urlの録音データが既に存在する場合は
// 既存のデータを返す（冪等）。
func (s *Service) Register(ctx context.Context, userID string, input RegisterInput) (*model.Recording, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewInvalidURLError("タイトルが指定されていません")
	}

	if err := s.ssrfGuard.ValidateURL(input.SourceURL); err != nil {
		if strings.Contains(err.Error(), "blocked") {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	existing, err := s.recordingRepo.FindByUserAndSourceURL(ctx, userID, input.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("録音データの重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	count, err := s.recordingRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("録音データ数の取得に失敗しました: %w", err)
	}
	if count >= maxRecordingsPerUser {
		return nil, model.NewRecordingLimitError(maxRecordingsPerUser)
	}

	now := time.Now()
	recording := &model.Recording{
		ID:              uuid.New().String(),
		UserID:          userID,
		Title:           title,
		DescriptionHTML: s.sanitizer.Sanitize(input.Description),
		SourceURL:       input.SourceURL,
		MediaType:       input.MediaType,
		Status:          model.RecordingStatusPending,
		NextAttemptAt:   now,
		Model:           input.Model,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.recordingRepo.Create(ctx, recording); err != nil {
		return nil, fmt.Errorf("録音データの作成に失敗しました: %w", err)
	}

	slog.Info("録音データを登録しました",
		slog.String("recording_id", recording.ID),
		slog.String("user_id", userID),
	)

	return recording, nil
}

// List はユーザーの録音データ一覧と総件数を返す。
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*model.Recording, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	recordings, err := s.recordingRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("録音データ一覧の取得に失敗しました: %w", err)
	}
	total, err := s.recordingRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("録音データ数の取得に失敗しました: %w", err)
	}

	return recordings, total, nil
}

// Get は所有権を確認した上で録音データを取得する。
// 他ユーザーのデータは存在自体を秘匿するため未検出として扱う。
func (s *Service) Get(ctx context.Context, userID, recordingID string) (*model.Recording, error) {
	recording, err := s.recordingRepo.FindByID(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("録音データの取得に失敗しました: %w", err)
	}
	if recording == nil || recording.UserID != userID {
		return nil, model.NewRecordingNotFoundError(recordingID)
	}
	return recording, nil
}

// GetTranscript は所有権を確認した上で文字起こし結果を取得する。
func (s *Service) GetTranscript(ctx context.Context, userID, recordingID string) (*model.Transcript, error) {
	if _, err := s.Get(ctx, userID, recordingID); err != nil {
		return nil, err
	}

	transcript, err := s.transcriptRepo.FindByRecordingID(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("文字起こし結果の取得に失敗しました: %w", err)
	}
	if transcript == nil {
		return nil, model.NewTranscriptNotReadyError(recordingID)
	}
	return transcript, nil
}

// Delete は所有権を確認した上で録音データを削除する。
// 文字起こし結果はCASCADE削除される。
func (s *Service) Delete(ctx context.Context, userID, recordingID string) error {
	if _, err := s.Get(ctx, userID, recordingID); err != nil {
		return err
	}

	if err := s.recordingRepo.Delete(ctx, recordingID); err != nil {
		return fmt.Errorf("録音データの削除に失敗しました: %w", err)
	}

	slog.Info("録音データを削除しました",
		slog.String("recording_id", recordingID),
		slog.String("user_id", userID),
	)
	return nil
}
