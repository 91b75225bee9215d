// Package model はドメインモデルを定義する。
package model

import "time"

// RecordingStatus は録音データの文字起こし処理状態を表す。
type RecordingStatus string

const (
	// RecordingStatusPending は文字起こし待ちの状態。
	RecordingStatusPending RecordingStatus = "pending"
	// RecordingStatusProcessing はワーカーが処理中の状態。
	RecordingStatusProcessing RecordingStatus = "processing"
	// RecordingStatusCompleted は文字起こしが完了した状態。
	RecordingStatusCompleted RecordingStatus = "completed"
	// RecordingStatusFailed は復旧不能なエラーで停止した状態。
	RecordingStatusFailed RecordingStatus = "failed"
)

// Recording はアップロードまたはURLインポートされた音声・動画を表す。
type Recording struct {
	ID                string
	UserID            string
	Title             string
	DescriptionHTML   string // サニタイズ済みHTML
	SourceURL         string
	MediaType         string
	Status            RecordingStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextAttemptAt     time.Time
	Model             string // 文字起こしに使用するプロバイダーモデルID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Transcript は録音データ1件に対する文字起こし結果を表す。
// ContentHTMLは保存前にサニタイズされる。
type Transcript struct {
	ID            string
	RecordingID   string
	Language      string
	ContentHTML   string
	RawText       string
	ProviderModel string
	CreatedAt     time.Time
}
