// Package handler provides the HTTP handlers for the core service.
package handler

import (
	"encoding/json"
	"net/http"

	apperrors "collectpay/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses with enough
// detail for a client to act on.
func respondServiceError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *apperrors.ValidationError:
		respondError(w, http.StatusBadRequest, e.Error())
		return
	case *apperrors.DuplicatePendingError:
		body := map[string]interface{}{"error": e.Error()}
		if e.Reference != "" {
			body["reference"] = e.Reference
		}
		respondJSON(w, http.StatusConflict, body)
		return
	case *apperrors.LimitExceededError:
		body := map[string]interface{}{
			"error":     e.Message,
			"scope":     e.Scope,
			"remaining": e.Remaining,
		}
		if e.Snapshot != nil {
			body["usage"] = e.Snapshot
		}
		respondJSON(w, http.StatusUnprocessableEntity, body)
		return
	case *apperrors.CapacityExceededError:
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":       e.Error(),
			"capacity":    e.Capacity,
			"requested":   e.Requested,
			"collections": e.Collections,
			"usage":       e.Usage,
		})
		return
	case *apperrors.ExpiredError:
		respondJSON(w, http.StatusGone, map[string]interface{}{
			"error":               e.Error(),
			"expired_seconds_ago": e.Seconds,
		})
		return
	case *apperrors.AlreadyUsedError:
		respondError(w, http.StatusConflict, e.Error())
		return
	case *apperrors.NotFoundError:
		respondError(w, http.StatusNotFound, e.Error())
		return
	}

	switch err {
	case apperrors.ErrUserNotFound, apperrors.ErrOrganizationNotFound,
		apperrors.ErrWalletNotFound, apperrors.ErrTransactionNotFound,
		apperrors.ErrQrCodeNotFound, apperrors.ErrSettlementNotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case apperrors.ErrUnauthorized:
		respondError(w, http.StatusForbidden, "not allowed")
	case apperrors.ErrInsufficientBalance, apperrors.ErrWalletInactive:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
