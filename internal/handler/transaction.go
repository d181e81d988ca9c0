package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"collectpay/internal/domain"
	"collectpay/internal/middleware"
	"collectpay/internal/transaction"
	apperrors "collectpay/pkg/errors"
	"collectpay/pkg/logger"
	"collectpay/pkg/validator"
)

// TransactionHandler manages transaction lifecycle endpoints.
type TransactionHandler struct {
	service   *transaction.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewTransactionHandler(service *transaction.Service, val *validator.Validator, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Create opens a transaction for the authenticated sender.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req transaction.CreateRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.FromUserID = principal.UserID

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Create(r.Context(), &req)
	if hold, isHold := err.(*apperrors.AmlHoldError); isHold {
		// The transaction exists but is parked for manual review.
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"transaction": tx,
			"held":        true,
			"risk_score":  hold.RiskScore,
			"reasons":     hold.Reasons,
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to create transaction", map[string]interface{}{
			"error":   err.Error(),
			"user_id": principal.UserID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// Get returns a transaction by id.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	tx, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// Review lets an admin resolve a held or pending transaction.
func (h *TransactionHandler) Review(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	var req struct {
		Status string `json:"status" validate:"required,oneof=completed rejected"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviewer := principal.UserID
	if err := h.service.UpdateStatus(r.Context(), id, domain.TransactionStatus(req.Status), req.Reason, &reviewer); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
