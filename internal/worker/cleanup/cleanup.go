// Package cleanup はセッションと録音データの自動整理ジョブを提供する。
// 期限切れセッションの削除（毎時）と、processingのまま放置された
// 録音データのpendingへの戻し（日次）を冪等なバッチとして実行する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションの削除とスタックした録音データの復旧を行う。
// 冪等に設計されており、対象がない場合でもエラーにならない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger

	// StuckThreshold はprocessingのままこの時間を超過した録音データを
	// スタックとみなしてpendingに戻す閾値（デフォルト: 2時間）。
	StuckThreshold time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:             db,
		logger:         logger,
		StuckThreshold: 2 * time.Hour,
	}
}

// PurgeExpiredSessions は期限切れセッションを削除する。
func (j *CleanupJob) PurgeExpiredSessions(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("期限切れセッションを削除しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// ResetStuckRecordings はprocessingのまま閾値を超過した録音データを
// pendingに戻し、即時再試行の対象にする。ワーカーの異常終了などで
// 取り残されたデータの復旧手段となる。
func (j *CleanupJob) ResetStuckRecordings(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d minutes", int(j.StuckThreshold.Minutes()))

	result, err := j.db.ExecContext(ctx,
		`UPDATE recordings
		 SET status = 'pending', next_attempt_at = now(), updated_at = now()
		 WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		j.logger.Error("スタックした録音データの復旧に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("スタックした録音データの復旧に失敗: %w", err)
	}

	resetCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	j.logger.Info("スタックした録音データを復旧しました",
		slog.Int64("reset_count", resetCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
