package handler

import (
	"encoding/json"
	"net/http"

	"collectpay/internal/middleware"
	"collectpay/internal/qr"
	"collectpay/pkg/logger"
	"collectpay/pkg/validator"
)

// QrHandler manages QR issuance and verification endpoints.
type QrHandler struct {
	service   *qr.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewQrHandler(service *qr.Service, val *validator.Validator, log logger.Logger) *QrHandler {
	return &QrHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Generate issues a code for one of the caller's pending transactions.
func (h *QrHandler) Generate(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Reference string `json:"reference" validate:"required,txref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	code, err := h.service.Generate(r.Context(), principal.UserID, req.Reference)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"payload":    code.Payload,
		"expires_at": code.ExpiresAt,
	})
}

// Verify confirms a scanned payload and completes the payment.
func (h *QrHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Verify(r.Context(), req.Payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
