// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, recording, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionUnavailable = "SESSION_UNAVAILABLE"
	ErrCodeRoleLookupFailed   = "ROLE_LOOKUP_FAILED"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeRecordingNotFound  = "RECORDING_NOT_FOUND"
	ErrCodeTranscriptNotReady = "TRANSCRIPT_NOT_READY"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeImportFailed       = "IMPORT_FAILED"
	ErrCodeRecordingLimit     = "RECORDING_LIMIT"
)

// NewRecordingNotFoundError は録音データ未検出エラーを生成する。
func NewRecordingNotFoundError(recordingID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordingNotFound,
		Message:  fmt.Sprintf("指定された録音データが見つかりません: %s", recordingID),
		Category: "recording",
		Action:   "録音データのIDを確認してください。",
	}
}

// NewTranscriptNotReadyError は文字起こし未完了エラーを生成する。
func NewTranscriptNotReadyError(recordingID string) *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptNotReady,
		Message:  fmt.Sprintf("文字起こしがまだ完了していません: %s", recordingID),
		Category: "recording",
		Action:   "処理が完了するまでしばらくお待ちください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているメディアURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewImportFailedError はポッドキャストインポート失敗エラーを生成する。
func NewImportFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImportFailed,
		Message:  fmt.Sprintf("フィードのインポートに失敗しました: %s", reason),
		Category: "recording",
		Action:   "URLが有効なポッドキャストフィードか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewRecordingLimitError は録音データ登録上限エラーを生成する。
func NewRecordingLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeRecordingLimit,
		Message:  fmt.Sprintf("録音データの登録数が上限（%d件）に達しています。", limit),
		Category: "recording",
		Action:   "不要な録音データを削除してから、新しいデータを登録してください。",
	}
}

// NewInvalidRoleError は無効なロール指定エラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには admin または user のいずれかを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
