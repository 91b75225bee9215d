package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recapio/recapio/internal/model"
)

// PostgresTranscriptRepo はPostgreSQLを使用した文字起こし結果リポジトリ。
type PostgresTranscriptRepo struct {
	db *sql.DB
}

// NewPostgresTranscriptRepo はPostgresTranscriptRepoを生成する。
func NewPostgresTranscriptRepo(db *sql.DB) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{db: db}
}

// FindByRecordingID は指定録音データの文字起こし結果を取得する。
// 見つからない場合はnilを返す。
func (r *PostgresTranscriptRepo) FindByRecordingID(ctx context.Context, recordingID string) (*model.Transcript, error) {
	transcript := &model.Transcript{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, recording_id, language, content_html, raw_text, provider_model, created_at
		 FROM transcripts WHERE recording_id = $1`,
		recordingID,
	).Scan(&transcript.ID, &transcript.RecordingID, &transcript.Language,
		&transcript.ContentHTML, &transcript.RawText, &transcript.ProviderModel, &transcript.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transcript: %w", err)
	}

	return transcript, nil
}

// Create は文字起こし結果を作成する。録音データ1件につき1件のみ。
func (r *PostgresTranscriptRepo) Create(ctx context.Context, transcript *model.Transcript) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, recording_id, language, content_html, raw_text, provider_model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transcript.ID, transcript.RecordingID, transcript.Language,
		transcript.ContentHTML, transcript.RawText, transcript.ProviderModel, transcript.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	return nil
}

// Count は全文字起こし数を返す。管理画面の利用統計用。
func (r *PostgresTranscriptRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ TranscriptRepository = (*PostgresTranscriptRepo)(nil)
