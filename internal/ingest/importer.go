// Package ingest はポッドキャストフィードからの録音データ一括取り込みを提供する。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/recording"
	"github.com/recapio/recapio/internal/security"
)

// RecordingRegistrar は取り込んだエピソードを録音データとして登録する。
type RecordingRegistrar interface {
	Register(ctx context.Context, userID string, input recording.RegisterInput) (*model.Recording, error)
}

// ImportResult はフィード取り込みの結果サマリ。
type ImportResult struct {
	FeedTitle string `json:"feed_title"`
	FeedURL   string `json:"feed_url"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
}

// Importer はポッドキャストフィードを取得し、音声・動画エピソードを
// 録音データとして登録する。HTMLページが指定された場合はheadタグから
// フィードリンクを自動検出する。
type Importer struct {
	ssrfGuard security.SSRFGuardService
	registrar RecordingRegistrar
	timeout   time.Duration
	maxSize   int64
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(ssrfGuard security.SSRFGuardService, registrar RecordingRegistrar, timeout time.Duration, maxSize int64) *Importer {
	return &Importer{
		ssrfGuard: ssrfGuard,
		registrar: registrar,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// ImportFeed は指定URLのフィードを取得し、エンクロージャを持つエピソードを
// 録音データとして登録する。登録上限に達した場合はそこまでの結果を返す。
func (i *Importer) ImportFeed(ctx context.Context, userID, feedURL string) (*ImportResult, error) {
	if err := i.ssrfGuard.ValidateURL(feedURL); err != nil {
		if strings.Contains(err.Error(), "blocked") {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	client := i.ssrfGuard.NewSafeClient(i.timeout, i.maxSize)

	contentType, body, err := i.fetch(ctx, client, feedURL)
	if err != nil {
		return nil, model.NewImportFailedError(err.Error())
	}

	resolvedURL := feedURL
	if looksLikeHTML(contentType, body) {
		discovered := discoverFeedURL(body, feedURL)
		if discovered == "" {
			return nil, model.NewImportFailedError("HTMLページからフィードリンクを検出できませんでした")
		}
		if err := i.ssrfGuard.ValidateURL(discovered); err != nil {
			return nil, model.NewImportFailedError(fmt.Sprintf("検出されたフィードURLが不正です: %v", err))
		}
		if _, body, err = i.fetch(ctx, client, discovered); err != nil {
			return nil, model.NewImportFailedError(err.Error())
		}
		resolvedURL = discovered
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, model.NewImportFailedError(fmt.Sprintf("フィードの解析に失敗しました: %v", err))
	}

	result := &ImportResult{
		FeedTitle: feed.Title,
		FeedURL:   resolvedURL,
	}

	for _, item := range feed.Items {
		enclosure := selectMediaEnclosure(item)
		if enclosure == nil {
			result.Skipped++
			continue
		}

		input := recording.RegisterInput{
			Title:       item.Title,
			Description: item.Description,
			SourceURL:   enclosure.URL,
			MediaType:   enclosure.Type,
		}
		if _, err := i.registrar.Register(ctx, userID, input); err != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRecordingLimit {
				// 上限到達。残りのエピソードは取り込まずに打ち切る
				slog.Warn("録音データの上限に達したため取り込みを打ち切ります",
					slog.String("user_id", userID),
					slog.String("feed_url", resolvedURL),
				)
				return result, nil
			}
			result.Skipped++
			continue
		}
		result.Imported++
	}

	slog.Info("フィードを取り込みました",
		slog.String("user_id", userID),
		slog.String("feed_url", resolvedURL),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// fetch はURLの内容を取得する。レスポンスはmaxSizeで切り詰められる。
func (i *Importer) fetch(ctx context.Context, client *http.Client, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Recapio/1.0 (+https://recapio.example.com)")

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("フィードの取得に失敗しました: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxSize))
	if err != nil {
		return "", nil, fmt.Errorf("レスポンスの読み込みに失敗しました: %w", err)
	}

	return resp.Header.Get("Content-Type"), body, nil
}

// selectMediaEnclosure はエピソードから音声または動画のエンクロージャを選ぶ。
// 該当するものがない場合はnilを返す。
func selectMediaEnclosure(item *gofeed.Item) *gofeed.Enclosure {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || strings.HasPrefix(enc.Type, "video/") {
			return enc
		}
	}
	return nil
}
