package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"credvault/internal/sentinel"
	dErrors "credvault/pkg/domain-errors"
)

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	msg := "internal error"

	var derr *dErrors.Error
	if errors.As(err, &derr) {
		status = toHTTPStatus(derr.Code)
		code = derr.Code
		msg = derr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// toHTTPStatus maps stable domain codes onto HTTP statuses.
func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidSubject, dErrors.CodeMintingFailed:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeUnlockFailed:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeBiometricNotVerified:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeEntryNotFound, dErrors.CodeSessionNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeEntryExpired, dErrors.CodeSessionExpired, dErrors.CodeEntryLocked:
		return http.StatusGone
	case dErrors.CodeRefreshFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// translateSessionError maps biometric manager sentinel errors onto domain
// codes at the transport boundary; the manager itself stays sentinel-only.
func translateSessionError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeSessionNotFound, "biometric session not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeSessionExpired, "biometric session has expired")
	case errors.Is(err, sentinel.ErrInvalidInput):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrNotVerified):
		return dErrors.Wrap(err, dErrors.CodeBiometricNotVerified, "biometric session cannot authorize")
	default:
		return err
	}
}
