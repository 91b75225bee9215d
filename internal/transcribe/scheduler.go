package transcribe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
)

// batchLimit は1サイクルで取得する録音データの最大件数。
const batchLimit = 50

// Scheduler は文字起こしのスケジューリングと並列制御を行う。
// ティッカーで処理対象の録音データを取得し、semaphoreパターンで
// 最大並列数を制御しながら文字起こしを実行する。
type Scheduler struct {
	recordingRepo  repository.RecordingRepository
	transcriber    TranscriberService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	recordingRepo repository.RecordingRepository,
	transcriber TranscriberService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		recordingRepo:  recordingRepo,
		transcriber:    transcriber,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("文字起こしスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("文字起こしサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("文字起こしスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("文字起こしサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は処理対象の録音データを1回取得し、並列で文字起こしを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 処理対象を取得（FOR UPDATE SKIP LOCKEDでprocessingに遷移済み）
	recordings, err := s.recordingRepo.ListDueForTranscription(ctx, batchLimit)
	if err != nil {
		return err
	}

	if len(recordings) == 0 {
		s.logger.Info("文字起こし対象の録音データはありません")
		return nil
	}

	s.logger.Info("文字起こしサイクルを開始します",
		slog.Int("recording_count", len(recordings)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, recording := range recordings {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(rec *model.Recording) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.transcriber.Process(ctx, rec); err != nil {
				s.logger.Error("録音データの処理に失敗しました",
					slog.String("recording_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}(recording)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("文字起こしサイクルが完了しました",
		slog.Int("recording_count", len(recordings)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
