package handler

import (
	"context"
	"net/http"

	"github.com/bunny-plus/backend/internal/middleware"
	"github.com/bunny-plus/backend/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByDiscordID(ctx context.Context, discordID string) (*model.User, error)
	CompleteOnboarding(ctx context.Context, discordID string) error
}

// UserHandler はユーザー関連のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Me は認証済みユーザー自身の情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	discordID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetByDiscordID(r.Context(), discordID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse(user))
}

// CompleteOnboarding はオンボーディング完了フラグを立てる。冪等。
// POST /api/users/me/onboarding
func (h *UserHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	discordID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.CompleteOnboarding(r.Context(), discordID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}
