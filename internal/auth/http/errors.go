package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// writeServiceError maps a service error to its HTTP response. Rejections
// keep their reason code so clients can localise the message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		httpx.WriteError(w, http.StatusForbidden, string(rej.Reason), rej.Message)
		return
	}

	switch {
	case errors.Is(err, httpx.ErrBadJSON):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, "Request body must be a single valid JSON object")

	case errors.Is(err, domain.ErrInvalidAssertion),
		errors.Is(err, service.ErrInvalidRegistration),
		errors.Is(err, service.ErrInvalidInvitationRequest),
		errors.Is(err, service.ErrInvalidBootstrap),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidRole):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.CodeInvalidRequest, err.Error())

	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.CodeInvalidCode, "Invalid TOTP code")
	case errors.Is(err, service.ErrBootstrapUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.CodeInvalidToken, "Invalid bootstrap token")

	case errors.Is(err, service.ErrAlreadyRegistered):
		httpx.WriteError(w, http.StatusConflict, authsdk.CodeAlreadyRegistered, "An account with this email already exists")
	case errors.Is(err, service.ErrInvitationConsumed):
		httpx.WriteError(w, http.StatusConflict, authsdk.CodeConflict, "Invitation has already been used")
	case errors.Is(err, service.ErrMFAAlreadyEnabled),
		errors.Is(err, service.ErrMFANotEnrolled),
		errors.Is(err, service.ErrMFANotEnabled),
		errors.Is(err, service.ErrWrongSessionStage),
		errors.Is(err, service.ErrBootstrapAlready):
		httpx.WriteError(w, http.StatusConflict, authsdk.CodeConflict, err.Error())

	case errors.Is(err, service.ErrInvitationNotFound),
		errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, authsdk.CodeNotFound, err.Error())

	case errors.Is(err, service.ErrUnavailable):
		w.Header().Set("Retry-After", "5")
		httpx.WriteError(w, http.StatusServiceUnavailable, authsdk.CodeTemporarilyUnavailable, "The service is temporarily unavailable")

	default:
		slogx.FromContext(r.Context()).Error("unhandled service error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.CodeServerError, "An internal error occurred")
	}
}
