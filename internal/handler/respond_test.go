package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "collectpay/pkg/errors"
)

func TestRespondDuplicatePendingWithReference(t *testing.T) {
	rec := httptest.NewRecorder()

	respondServiceError(rec, &apperrors.DuplicatePendingError{Reference: "TXN-20260828-0042"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "TXN-20260828-0042", body["reference"])
}

func TestRespondDuplicatePendingWithoutReference(t *testing.T) {
	rec := httptest.NewRecorder()

	respondServiceError(rec, &apperrors.DuplicatePendingError{})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	// No reference field when the winner could not be named.
	_, present := body["reference"]
	assert.False(t, present)
	assert.Equal(t, "sender already has a pending transaction", body["error"])
}
