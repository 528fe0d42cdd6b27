package federation

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

// Kind classifies a federated login failure.
type Kind string

const (
	KindStateMismatch    Kind = "state_mismatch"
	KindProviderRejected Kind = "provider_rejected"
	KindTransient        Kind = "transient_network_error"
)

var ErrUnknownProvider = errors.New("federation: unknown provider")

// ProviderError is returned for every failure after the provider was chosen.
type ProviderError struct {
	Provider  string
	Operation string // state, authorize, exchange, userinfo
	Kind      Kind
	Status    int
	Err       error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed (%s)", e.Provider, e.Operation, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the login could succeed.
func (e *ProviderError) Transient() bool { return e.Kind == KindTransient }

// Rejection converts the failure to a resolver rejection for audit and the
// client response.
func (e *ProviderError) Rejection() *domain.Rejection {
	switch e.Kind {
	case KindStateMismatch:
		return domain.RejectProvider(string(e.Kind), "The sign in request could not be verified. Please start again.")
	case KindTransient:
		return domain.RejectProvider(string(e.Kind), "The identity provider is unavailable. Please try again shortly.")
	default:
		return domain.RejectProvider(string(e.Kind), "")
	}
}

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func providerErr(provider, op string, kind Kind, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: op, Kind: kind, Status: status, Err: err}
}

// statusKind maps an upstream HTTP status to a failure kind. Server errors
// and throttling are worth retrying, everything else is a refusal.
func statusKind(status int) Kind {
	if status >= 500 || status == 429 {
		return KindTransient
	}
	return KindProviderRejected
}
