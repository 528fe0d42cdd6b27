package authsdk

import (
	"errors"
	"fmt"
)

// Stable error codes returned by the service.
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInvalidCredentials     = "invalid_credentials"
	CodeInvalidToken           = "invalid_token"
	CodeInvalidCode            = "invalid_code"
	CodeMFARequired            = "mfa_required"
	CodeInsufficientRole       = "insufficient_role"
	CodeAlreadyRegistered      = "already_registered"
	CodeNotFound               = "not_found"
	CodeConflict               = "conflict"
	CodeRateLimited            = "rate_limit_exceeded"
	CodeTemporarilyUnavailable = "temporarily_unavailable"
	CodeServerError            = "server_error"

	// Rejection reasons.
	CodeNoValidInvitation     = "no_valid_invitation"
	CodeInvitationExpired     = "invitation_expired"
	CodeInvitationAlreadyUsed = "invitation_already_used"
	CodeProviderError         = "provider_error"
	CodeRegistrationClosed    = "registration_closed"
)

// Kinds reported with CodeProviderError.
const (
	KindStateMismatch    = "state_mismatch"
	KindProviderRejected = "provider_rejected"
	KindTransient        = "transient_network_error"
)

var rejectionCodes = map[string]bool{
	CodeNoValidInvitation:     true,
	CodeInvitationExpired:     true,
	CodeInvitationAlreadyUsed: true,
	CodeProviderError:         true,
	CodeRegistrationClosed:    true,
}

// APIError is a non-2xx response decoded from the service.
type APIError struct {
	StatusCode  int
	Code        string
	Kind        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("gatehouse: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("gatehouse: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// IsRejection reports whether err is the service refusing to sign someone
// in, as opposed to a malformed request or an outage.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && rejectionCodes[apiErr.Code]
}

// HasCode reports whether err is an APIError with the given code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
