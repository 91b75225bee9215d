package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/repository"
	"github.com/recapio/recapio/internal/security"
)

// TranscriberMetrics は文字起こし結果の記録インターフェース。
type TranscriberMetrics interface {
	RecordTranscribeSuccess()
	RecordTranscribeFailure(reason string)
	RecordTranscribeLatency(duration time.Duration)
}

// TranscriberService は録音データ1件の文字起こし実行インターフェース。
type TranscriberService interface {
	// Process は指定録音データを文字起こしし、結果に応じて状態を更新する。
	Process(ctx context.Context, recording *model.Recording) error
}

// Transcriber はTranscriberServiceの実装。
// プロバイダー呼び出し、結果のサニタイズ、状態遷移を担う。
type Transcriber struct {
	provider       Provider
	recordingRepo  repository.RecordingRepository
	transcriptRepo repository.TranscriptRepository
	sanitizer      security.ContentSanitizerService
	metrics        TranscriberMetrics
	logger         *slog.Logger
	defaultModel   string
}

// NewTranscriber はTranscriberの新しいインスタンスを生成する。
// metricsはnilを許容する。
func NewTranscriber(
	provider Provider,
	recordingRepo repository.RecordingRepository,
	transcriptRepo repository.TranscriptRepository,
	sanitizer security.ContentSanitizerService,
	metrics TranscriberMetrics,
	logger *slog.Logger,
	defaultModel string,
) *Transcriber {
	return &Transcriber{
		provider:       provider,
		recordingRepo:  recordingRepo,
		transcriptRepo: transcriptRepo,
		sanitizer:      sanitizer,
		metrics:        metrics,
		logger:         logger,
		defaultModel:   defaultModel,
	}
}

// Process は指定録音データを文字起こしし、結果に応じて状態を更新する。
// プロバイダーエラーはここで状態遷移に吸収し、リポジトリ更新の失敗のみ
// エラーとして返す。
func (t *Transcriber) Process(ctx context.Context, recording *model.Recording) error {
	providerModel := recording.Model
	if providerModel == "" {
		providerModel = t.defaultModel
	}

	start := time.Now()
	result, err := t.provider.Transcribe(ctx, TranscriptionRequest{
		SourceURL: recording.SourceURL,
		Model:     providerModel,
	})
	latency := time.Since(start)
	if t.metrics != nil {
		t.metrics.RecordTranscribeLatency(latency)
	}

	if err != nil {
		t.applyError(recording, err)
		if t.metrics != nil {
			t.metrics.RecordTranscribeFailure(failureReason(err))
		}
		t.logger.Warn("文字起こしに失敗しました",
			slog.String("recording_id", recording.ID),
			slog.String("status", string(recording.Status)),
			slog.String("error", err.Error()),
		)
		return t.recordingRepo.UpdateTranscriptionState(ctx, recording)
	}

	transcript := &model.Transcript{
		ID:            uuid.New().String(),
		RecordingID:   recording.ID,
		Language:      result.Language,
		ContentHTML:   t.sanitizer.Sanitize(textToHTML(result.Text)),
		RawText:       result.Text,
		ProviderModel: providerModel,
		CreatedAt:     time.Now(),
	}
	if err := t.transcriptRepo.Create(ctx, transcript); err != nil {
		// 保存失敗は再試行可能として扱う
		ApplyBackoff(recording, fmt.Sprintf("文字起こし結果の保存に失敗しました: %v", err))
		if updateErr := t.recordingRepo.UpdateTranscriptionState(ctx, recording); updateErr != nil {
			return updateErr
		}
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	ApplySuccess(recording)
	if t.metrics != nil {
		t.metrics.RecordTranscribeSuccess()
	}
	t.logger.Info("文字起こしが完了しました",
		slog.String("recording_id", recording.ID),
		slog.String("model", providerModel),
		slog.Float64("latency_ms", float64(latency.Milliseconds())),
	)

	return t.recordingRepo.UpdateTranscriptionState(ctx, recording)
}

// applyError はプロバイダーエラーを状態遷移に変換する。
func (t *Transcriber) applyError(recording *model.Recording, err error) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch ClassifyHTTPStatus(statusErr.StatusCode) {
		case OutcomeStop:
			ApplyFailure(recording, fmt.Sprintf("プロバイダーがステータス%dを返しました", statusErr.StatusCode))
			return
		default:
			ApplyBackoff(recording, fmt.Sprintf("プロバイダーがステータス%dを返しました", statusErr.StatusCode))
			return
		}
	}

	// ネットワークエラー・タイムアウトは再試行可能
	ApplyBackoff(recording, err.Error())
}

// failureReason はメトリクスラベル用の失敗理由を返す。
func failureReason(err error) string {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch ClassifyHTTPStatus(statusErr.StatusCode) {
		case OutcomeStop:
			return "permanent"
		case OutcomeBackoff:
			return "retryable"
		default:
			return "unknown_status"
		}
	}
	return "network"
}

// textToHTML はプレーンテキストの文字起こし結果を段落単位のHTMLに変換する。
// サニタイズ前の中間表現であり、入力中のタグはこの後のサニタイズで除去される。
func textToHTML(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// compile-time interface check
var _ TranscriberService = (*Transcriber)(nil)
