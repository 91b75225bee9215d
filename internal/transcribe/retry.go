package transcribe

import (
	"fmt"
	"time"

	"github.com/recapio/recapio/internal/model"
)

// TranscribeOutcome はHTTPステータスコードに基づく文字起こし結果の分類。
type TranscribeOutcome int

const (
	// OutcomeOK は文字起こし成功（200）。
	OutcomeOK TranscribeOutcome = iota
	// OutcomeStop は再試行しても回復しないステータス（400/404/415/422/401/403）。
	OutcomeStop
	// OutcomeBackoff はバックオフが必要なステータス（429/5xx）。
	OutcomeBackoff
	// OutcomeUnknown は未知のステータスコード。
	OutcomeUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// failureThreshold は連続エラーによる処理停止の閾値。
	failureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードを文字起こし結果に分類する。
func ClassifyHTTPStatus(statusCode int) TranscribeOutcome {
	switch {
	case statusCode == 200:
		return OutcomeOK
	case statusCode == 400 || statusCode == 404 || statusCode == 415 || statusCode == 422:
		return OutcomeStop
	case statusCode == 401 || statusCode == 403:
		return OutcomeStop
	case statusCode == 429:
		return OutcomeBackoff
	case statusCode >= 500:
		return OutcomeBackoff
	default:
		return OutcomeUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyFailure は録音データの文字起こしを停止する。
// statusをfailedに設定し、エラーメッセージを記録する。
func ApplyFailure(recording *model.Recording, reason string) {
	recording.Status = model.RecordingStatusFailed
	recording.ErrorMessage = reason
	recording.UpdatedAt = time.Now()
}

// ApplyBackoff は録音データにバックオフ戦略を適用する。
// 連続エラー回数をインクリメントし、指数バックオフでnext_attempt_atを設定して
// statusをpendingに戻す。閾値に達した場合はfailedに遷移させる。
func ApplyBackoff(recording *model.Recording, reason string) {
	recording.ConsecutiveErrors++
	recording.ErrorMessage = reason
	recording.UpdatedAt = time.Now()

	if recording.ConsecutiveErrors >= failureThreshold {
		recording.Status = model.RecordingStatusFailed
		recording.ErrorMessage = fmt.Sprintf("文字起こしが%d回連続で失敗したため停止しました: %s", recording.ConsecutiveErrors, reason)
		return
	}

	delay := CalculateBackoff(recording.ConsecutiveErrors - 1)
	recording.Status = model.RecordingStatusPending
	recording.NextAttemptAt = time.Now().Add(delay)
}

// ApplySuccess は文字起こし成功時に録音データの状態を完了に遷移させる。
// 連続エラー回数を0にリセットし、エラーメッセージをクリアする。
func ApplySuccess(recording *model.Recording) {
	recording.Status = model.RecordingStatusCompleted
	recording.ConsecutiveErrors = 0
	recording.ErrorMessage = ""
	recording.UpdatedAt = time.Now()
}
