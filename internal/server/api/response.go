package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"wordledger/internal/common"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, common.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, common.ErrInvalidCredentials) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, common.ErrInsufficientBalance) {
		return http.StatusPaymentRequired
	}
	if errors.Is(err, common.ErrUserNotFound) || errors.Is(err, common.ErrCodeInvalid) {
		return http.StatusNotFound
	}
	if errors.Is(err, common.ErrUsernameTaken) || errors.Is(err, common.ErrCodeAlreadyUsed) || errors.Is(err, common.ErrCodeTaken) {
		return http.StatusConflict
	}
	if errors.Is(err, common.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
