package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recapio/recapio/internal/ingest"
	"github.com/recapio/recapio/internal/middleware"
	"github.com/recapio/recapio/internal/model"
	"github.com/recapio/recapio/internal/recording"
)

// RecordingServiceInterface は録音ハンドラーが必要とするサービスインターフェース。
type RecordingServiceInterface interface {
	Register(ctx context.Context, userID string, input recording.RegisterInput) (*model.Recording, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*model.Recording, int, error)
	Get(ctx context.Context, userID, recordingID string) (*model.Recording, error)
	GetTranscript(ctx context.Context, userID, recordingID string) (*model.Transcript, error)
	Delete(ctx context.Context, userID, recordingID string) error
}

// FeedImporterInterface はポッドキャストフィード取り込みのインターフェース。
type FeedImporterInterface interface {
	ImportFeed(ctx context.Context, userID, feedURL string) (*ingest.ImportResult, error)
}

// RecordingHandler は録音データ管理のHTTPハンドラー。
type RecordingHandler struct {
	service  RecordingServiceInterface
	importer FeedImporterInterface
}

// NewRecordingHandler はRecordingHandlerを生成する。
func NewRecordingHandler(service RecordingServiceInterface, importer FeedImporterInterface) *RecordingHandler {
	return &RecordingHandler{
		service:  service,
		importer: importer,
	}
}

// registerRecordingRequest は録音データ登録リクエストのボディ。
type registerRecordingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
	MediaType   string `json:"media_type"`
	Model       string `json:"model"`
}

// importFeedRequest はフィード取り込みリクエストのボディ。
type importFeedRequest struct {
	URL string `json:"url"`
}

// recordingResponse は録音データのAPIレスポンス。
type recordingResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DescriptionHTML string    `json:"description_html"`
	SourceURL       string    `json:"source_url"`
	MediaType       string    `json:"media_type"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// recordingListResponse は録音データ一覧のAPIレスポンス。
type recordingListResponse struct {
	Recordings []recordingResponse `json:"recordings"`
	Total      int                 `json:"total"`
}

// transcriptResponse は文字起こし結果のAPIレスポンス。
type transcriptResponse struct {
	ID            string    `json:"id"`
	RecordingID   string    `json:"recording_id"`
	Language      string    `json:"language"`
	ContentHTML   string    `json:"content_html"`
	ProviderModel string    `json:"provider_model"`
	CreatedAt     time.Time `json:"created_at"`
}

// Register は録音データ登録を処理する。
// POST /api/recordings
func (h *RecordingHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req registerRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.SourceURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	rec, err := h.service.Register(r.Context(), userID, recording.RegisterInput{
		Title:       req.Title,
		Description: req.Description,
		SourceURL:   req.SourceURL,
		MediaType:   req.MediaType,
		Model:       req.Model,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRecordingResponse(rec))
}

// List は録音データ一覧を返す。
// GET /api/recordings?limit=20&offset=0
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recordings, total, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := recordingListResponse{
		Recordings: make([]recordingResponse, len(recordings)),
		Total:      total,
	}
	for i, rec := range recordings {
		resp.Recordings[i] = toRecordingResponse(rec)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get は録音データ詳細を返す。
// GET /api/recordings/{id}
func (h *RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	rec, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

// GetTranscript は文字起こし結果を返す。
// GET /api/recordings/{id}/transcript
func (h *RecordingHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	transcript, err := h.service.GetTranscript(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transcriptResponse{
		ID:            transcript.ID,
		RecordingID:   transcript.RecordingID,
		Language:      transcript.Language,
		ContentHTML:   transcript.ContentHTML,
		ProviderModel: transcript.ProviderModel,
		CreatedAt:     transcript.CreatedAt,
	})
}

// Delete は録音データを削除する。
// DELETE /api/recordings/{id}
func (h *RecordingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ImportFeed はポッドキャストフィードの一括取り込みを処理する。
// POST /api/imports
func (h *RecordingHandler) ImportFeed(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req importFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	result, err := h.importer.ImportFeed(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// toRecordingResponse はドメインのRecordingをAPIレスポンス型に変換する。
func toRecordingResponse(rec *model.Recording) recordingResponse {
	return recordingResponse{
		ID:              rec.ID,
		Title:           rec.Title,
		DescriptionHTML: rec.DescriptionHTML,
		SourceURL:       rec.SourceURL,
		MediaType:       rec.MediaType,
		Status:          string(rec.Status),
		ErrorMessage:    rec.ErrorMessage,
		Model:           rec.Model,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}
