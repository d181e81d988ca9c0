package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"collectpay/internal/domain"
	"collectpay/internal/middleware"
	"collectpay/internal/settlement"
	"collectpay/pkg/logger"
	"collectpay/pkg/validator"
)

// SettlementHandler manages the settlement request and review endpoints.
type SettlementHandler struct {
	service   *settlement.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewSettlementHandler(service *settlement.Service, val *validator.Validator, log logger.Logger) *SettlementHandler {
	return &SettlementHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Create opens a settlement request for the caller's organization.
func (h *SettlementHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if principal.Role != domain.RoleFinance {
		respondError(w, http.StatusForbidden, "Only finance users can request settlements")
		return
	}

	var req settlement.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.RequestedBy = principal.UserID

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.service.CreateRequest(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to create settlement", map[string]interface{}{
			"error":   err.Error(),
			"user_id": principal.UserID,
		})
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// Review applies a checker decision to a settlement.
func (h *SettlementHandler) Review(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if principal.Role != domain.RoleAdmin {
		respondError(w, http.StatusForbidden, "Only admins can review settlements")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid settlement ID")
		return
	}

	var req settlement.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SettlementID = id
	req.ReviewerID = principal.UserID

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.service.Review(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// List returns recent settlements for an organization.
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(mux.Vars(r)["orgID"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid organization ID")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	settlements, err := h.service.ListByOrganization(r.Context(), orgID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settlements": settlements,
		"count":       len(settlements),
	})
}
