// Package transcribe は録音データのバックグラウンド文字起こし処理を提供する。
// スケジューラ、トランスクライバー、リトライ/バックオフ戦略を含む。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TranscriptionRequest は文字起こしプロバイダーへのリクエスト。
type TranscriptionRequest struct {
	SourceURL string `json:"url"`
	Model     string `json:"model"`
}

// TranscriptionResult は文字起こしプロバイダーの応答。
type TranscriptionResult struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Model は文字起こしプロバイダーが提供するモデル情報。
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Provider は文字起こしプロバイダーとの通信インターフェース。
type Provider interface {
	// Transcribe は音声URLを文字起こしする。
	// プロバイダーが非200を返した場合は*HTTPStatusErrorを返す。
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)

	// ListModels は利用可能なモデル一覧を返す。
	ListModels(ctx context.Context) ([]Model, error)
}

// HTTPStatusError はプロバイダーの非200応答を表す。
// リトライ戦略のステータス分類に使用する。
type HTTPStatusError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("transcription provider returned status %d", e.StatusCode)
}

// httpProvider はProviderのHTTP実装。
type httpProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider はProviderの新しいインスタンスを生成する。
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *httpProvider {
	return &httpProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe は音声URLを文字起こしする。
func (p *httpProvider) Transcribe(ctx context.Context, tr TranscriptionRequest) (*TranscriptionResult, error) {
	body, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	if result.Text == "" {
		return nil, fmt.Errorf("transcription response has no text")
	}

	return &result, nil
}

// modelsResponse はモデル一覧エンドポイントの応答。
type modelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels は利用可能なモデル一覧を返す。
func (p *httpProvider) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	var mr modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	return mr.Data, nil
}

// compile-time interface check
var _ Provider = (*httpProvider)(nil)
