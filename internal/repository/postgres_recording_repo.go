package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recapio/recapio/internal/model"
)

// PostgresRecordingRepo はPostgreSQLを使用した録音データリポジトリ。
type PostgresRecordingRepo struct {
	db *sql.DB
}

// NewPostgresRecordingRepo はPostgresRecordingRepoを生成する。
func NewPostgresRecordingRepo(db *sql.DB) *PostgresRecordingRepo {
	return &PostgresRecordingRepo{db: db}
}

const recordingColumns = `id, user_id, title, description_html, source_url, media_type,
	status, consecutive_errors, error_message, next_attempt_at, model, created_at, updated_at`

// scanRecording は1行分の録音データをスキャンする。
func scanRecording(s interface {
	Scan(dest ...interface{}) error
}) (*model.Recording, error) {
	rec := &model.Recording{}
	err := s.Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.DescriptionHTML, &rec.SourceURL, &rec.MediaType,
		&rec.Status, &rec.ConsecutiveErrors, &rec.ErrorMessage, &rec.NextAttemptAt, &rec.Model,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByID は指定IDの録音データを取得する。見つからない場合はnilを返す。
func (r *PostgresRecordingRepo) FindByID(ctx context.Context, id string) (*model.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`,
		id,
	)
	rec, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recording by ID: %w", err)
	}
	return rec, nil
}

// FindByUserAndSourceURL はユーザーIDとsource_urlで録音データを検索する。
// インポート時の重複判定に使用する。見つからない場合はnilを返す。
func (r *PostgresRecordingRepo) FindByUserAndSourceURL(ctx context.Context, userID, sourceURL string) (*model.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE user_id = $1 AND source_url = $2`,
		userID, sourceURL,
	)
	rec, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recording by source URL: %w", err)
	}
	return rec, nil
}

// Create は録音データを作成する。
func (r *PostgresRecordingRepo) Create(ctx context.Context, recording *model.Recording) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (id, user_id, title, description_html, source_url, media_type,
		  status, consecutive_errors, error_message, next_attempt_at, model, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		recording.ID, recording.UserID, recording.Title, recording.DescriptionHTML,
		recording.SourceURL, recording.MediaType, recording.Status, recording.ConsecutiveErrors,
		recording.ErrorMessage, recording.NextAttemptAt, recording.Model,
		recording.CreatedAt, recording.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの録音データ一覧をcreated_at降順で返す。
func (r *PostgresRecordingRepo) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*model.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*model.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recordings: %w", err)
	}

	return recordings, nil
}

// CountByUserID はユーザーの録音データ数を返す。
func (r *PostgresRecordingRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recordings: %w", err)
	}
	return count, nil
}

// Count は全録音データ数を返す。管理画面の利用統計用。
func (r *PostgresRecordingRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count all recordings: %w", err)
	}
	return count, nil
}

// ListDueForTranscription は文字起こし対象の録音データを取得する。
// status = 'pending' かつ next_attempt_at <= now() の録音データを
// FOR UPDATE SKIP LOCKEDで排他的に取得し、同一トランザクション内で
// statusをprocessingに更新する。複数ワーカーが同じ録音データを
// 取得することはない。
func (r *PostgresRecordingRepo) ListDueForTranscription(ctx context.Context, limit int) ([]*model.Recording, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE status = 'pending' AND next_attempt_at <= now()
		 ORDER BY next_attempt_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due recordings: %w", err)
	}

	var recordings []*model.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate due recordings: %w", err)
	}
	rows.Close()

	for _, rec := range recordings {
		if _, err := tx.ExecContext(ctx,
			`UPDATE recordings SET status = 'processing', updated_at = now() WHERE id = $1`,
			rec.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to mark recording as processing: %w", err)
		}
		rec.Status = model.RecordingStatusProcessing
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return recordings, nil
}

// UpdateTranscriptionState は録音データの処理状態を更新する。
func (r *PostgresRecordingRepo) UpdateTranscriptionState(ctx context.Context, recording *model.Recording) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings
		 SET status = $2, consecutive_errors = $3, error_message = $4, next_attempt_at = $5, updated_at = $6
		 WHERE id = $1`,
		recording.ID, recording.Status, recording.ConsecutiveErrors,
		recording.ErrorMessage, recording.NextAttemptAt, recording.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transcription state: %w", err)
	}
	return nil
}

// Delete は指定IDの録音データを削除する。transcriptsはCASCADE削除される。
func (r *PostgresRecordingRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM recordings WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("recording not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ RecordingRepository = (*PostgresRecordingRepo)(nil)
