package utils

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error kinds surfaced to callers.
const (
	KindUnauthenticated    = "unauthenticated"
	KindRateLimited        = "rate_limited"
	KindInsufficientCredit = "insufficient_credit"
	KindBackendFailure     = "backend_failure"
	KindInvalidRequest     = "invalid_request"
	KindNotFound           = "not_found"
	KindInternal           = "internal"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, rate-limited only
	Retryable  *bool  `json:"retryable,omitempty"`   // backend failures only
}

// RespondWithError sends a structured error response
func RespondWithError(w http.ResponseWriter, code int, kind, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message, Kind: kind})
}

// RespondWithRateLimit sends a rate-limit rejection with a retry hint
func RespondWithRateLimit(w http.ResponseWriter, retryAfterSeconds int) {
	RespondWithJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate limit exceeded",
		Kind:       KindRateLimited,
		RetryAfter: retryAfterSeconds,
	})
}

// RespondWithBackendError sends a backend failure marked retryable or terminal
func RespondWithBackendError(w http.ResponseWriter, message string, retryable bool) {
	RespondWithJSON(w, http.StatusBadGateway, ErrorResponse{
		Error:     message,
		Kind:      KindBackendFailure,
		Retryable: &retryable,
	})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
