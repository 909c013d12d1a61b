// Package api exposes the gating engine over HTTP: the public lock and
// board endpoints plus the token-protected admin surface.
package api

import (
	"encoding/json"
	"net/http"
)

// Standard error codes for API responses.
const (
	// ErrCodeInvalidRequest indicates a malformed request body or parameter.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeInvalidCredentials indicates an invalid or missing API token.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// ErrCodeAdminRequired indicates an admin token is required.
	ErrCodeAdminRequired = "admin_required"

	// ErrCodeMasterTokenLocked indicates the master token is disabled
	// because an admin token already exists.
	ErrCodeMasterTokenLocked = "master_token_locked"

	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeDuplicate indicates a unique constraint violation.
	ErrCodeDuplicate = "duplicate"

	// ErrCodeNoChallenge indicates no pending challenge for the key.
	ErrCodeNoChallenge = "no_challenge"

	// ErrCodeChallengeMismatch indicates a stale or unknown challenge ID.
	ErrCodeChallengeMismatch = "challenge_mismatch"

	// ErrCodeChallengeExpired indicates the signing window passed.
	ErrCodeChallengeExpired = "challenge_expired"

	// ErrCodeCategoryNotEnabled indicates the lock has no enabled
	// category of the requested type.
	ErrCodeCategoryNotEnabled = "category_not_enabled"

	// ErrCodeNoAdminTokenExists indicates a non-admin token was
	// requested before any admin token exists.
	ErrCodeNoAdminTokenExists = "no_admin_token_exists"

	// ErrCodeCannotDeleteLastAdmin indicates an attempt to delete the
	// last remaining admin token.
	ErrCodeCannotDeleteLastAdmin = "cannot_delete_last_admin"

	// ErrCodeInternalError indicates a server error.
	ErrCodeInternalError = "internal_error"
)

// APIError is the standard error response format.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with a hint for
// resolving the error.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIError{
		Error:   code,
		Message: message,
		Hint:    hint,
	}
	// Encoding errors are not recoverable once headers are sent.
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
