package transcribe

import (
	"context"
	"log/slog"
)

// fallbackModels はプロバイダー障害時に返す静的なモデル一覧。
// 管理画面のモデル選択UIが空にならないようにするための縮退値。
var fallbackModels = []Model{
	{ID: "whisper-1"},
	{ID: "gpt-4o-transcribe"},
	{ID: "gpt-4o-mini-transcribe"},
}

// ModelCatalog はプロバイダーのモデル一覧を静的フォールバック付きで提供する。
type ModelCatalog struct {
	provider Provider
}

// NewModelCatalog はModelCatalogを生成する。
func NewModelCatalog(provider Provider) *ModelCatalog {
	return &ModelCatalog{provider: provider}
}

// List はプロバイダーのモデル一覧を返す。
// プロバイダーが利用できない場合は静的フォールバックを返し、エラーにしない。
func (c *ModelCatalog) List(ctx context.Context) []Model {
	models, err := c.provider.ListModels(ctx)
	if err != nil {
		slog.Warn("failed to list provider models, using static fallback",
			slog.String("error", err.Error()),
		)
		return fallbackModels
	}
	if len(models) == 0 {
		return fallbackModels
	}
	return models
}
