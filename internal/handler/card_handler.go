package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bunny-plus/backend/internal/card"
	"github.com/bunny-plus/backend/internal/metrics"
	"github.com/bunny-plus/backend/internal/middleware"
	"github.com/bunny-plus/backend/internal/model"
)

// CardServiceInterface はカードハンドラーが必要とするサービスインターフェース。
type CardServiceInterface interface {
	Pull(ctx context.Context, discordID string) (*card.PullResult, error)
	GetUserCards(ctx context.Context, discordID string) ([]*model.Card, error)
	GetCardByID(ctx context.Context, cardID int) (*model.Card, error)
}

// CardHandler はガチャとカード照会のHTTPハンドラー。
type CardHandler struct {
	service CardServiceInterface
	metrics metrics.MetricsCollector
}

// NewCardHandler はCardHandlerを生成する。
func NewCardHandler(service CardServiceInterface, collector metrics.MetricsCollector) *CardHandler {
	return &CardHandler{
		service: service,
		metrics: collector,
	}
}

// Pull はガチャを1回実行する。
// POST /api/cards/pull
func (h *CardHandler) Pull(w http.ResponseWriter, r *http.Request) {
	discordID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.service.Pull(r.Context(), discordID)
	if err != nil {
		if h.metrics != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				h.metrics.RecordPullRejected(apiErr.Code)
			}
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPull(string(result.Card.Rarity))
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// ListCards は認証済みユーザーの所有カード一覧を取得順で返す。
// GET /api/cards
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	discordID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cards, err := h.service.GetUserCards(r.Context(), discordID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

// GetCard はカタログからカードを取得する。
// GET /api/cards/{id}
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	cardID, err := strconv.Atoi(idParam)
	if err != nil || cardID <= 0 {
		handleServiceError(w, model.NewInvalidRequestError("カードIDは正の整数である必要があります"))
		return
	}

	c, err := h.service.GetCardByID(r.Context(), cardID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, c)
}
