package handler

import (
	"net/http"
	"strconv"

	"collectpay/internal/middleware"
	"collectpay/internal/notification"
	"collectpay/internal/wallet"
	"collectpay/pkg/logger"
)

// WalletHandler exposes the caller's wallet state.
type WalletHandler struct {
	service       *wallet.Service
	notifications *notification.Service
	logger        logger.Logger
}

func NewWalletHandler(service *wallet.Service, notifications *notification.Service, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service:       service,
		notifications: notifications,
		logger:        log,
	}
}

// GetMyWallet returns the authenticated user's wallet, creating it on first
// access. The read runs the lazy daily reset.
func (h *WalletHandler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	wallet, err := h.service.GetOrCreateWallet(r.Context(), principal.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// ListNotifications returns the caller's recent notifications.
func (h *WalletHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.notifications.ListForUser(r.Context(), principal.UserID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"count":         len(items),
	})
}
