package domain

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ErrInvalidAssertion marks caller input errors: a malformed assertion or a
// missing required field. These are never recorded as security events.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// FederatedIdentity names an account at an external OAuth/OIDC provider.
type FederatedIdentity struct {
	Provider   string
	ExternalID string
}

// IdentityAssertion is a trusted statement of identity produced by a
// credential verifier or a federated provider client. The resolver never
// re-verifies it.
type IdentityAssertion struct {
	Email       string
	Federated   *FederatedIdentity
	DisplayName string
	AvatarURL   string

	// PasswordHash is only set on local registration assertions; it becomes
	// the new principal's hash if one gets created.
	PasswordHash string

	// InvitationToken selects an invitation explicitly instead of by email.
	// It is the only way to redeem an open invitation.
	InvitationToken string

	// SelfRegister marks a local registration that may proceed without an
	// invitation when open registration is enabled.
	SelfRegister bool
}

// IsFederated reports whether the assertion came from a federated provider.
func (a IdentityAssertion) IsFederated() bool { return a.Federated != nil }

// Normalized returns a copy with the email normalized.
func (a IdentityAssertion) Normalized() IdentityAssertion {
	a.Email = NormalizeEmail(a.Email)
	return a
}

// Validate reports caller input errors wrapped in ErrInvalidAssertion.
func (a IdentityAssertion) Validate() error {
	err := validation.ValidateStruct(&a,
		validation.Field(&a.Email, validation.Required, is.Email, validation.Length(3, 254)),
		validation.Field(&a.DisplayName, validation.Length(0, 128)),
		validation.Field(&a.AvatarURL, is.URL),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	if a.Federated != nil {
		fed := *a.Federated
		err := validation.ValidateStruct(&fed,
			validation.Field(&fed.Provider, validation.Required, validation.Length(1, 64)),
			validation.Field(&fed.ExternalID, validation.Required, validation.Length(1, 255)),
		)
		if err != nil {
			return fmt.Errorf("%w: federated: %v", ErrInvalidAssertion, err)
		}
		if a.PasswordHash != "" || a.SelfRegister {
			return fmt.Errorf("%w: federated assertions cannot carry local credentials", ErrInvalidAssertion)
		}
	}

	if a.SelfRegister && a.PasswordHash == "" {
		return fmt.Errorf("%w: self registration requires a password hash", ErrInvalidAssertion)
	}
	return nil
}
