package domain

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

var ErrInvalidSettings = errors.New("invalid security settings")

const (
	MinSessionTimeoutSeconds     = 5 * 60
	MaxSessionTimeoutSeconds     = 30 * 24 * 60 * 60
	DefaultSessionTimeoutSeconds = 24 * 60 * 60
)

// SecuritySettings is an immutable snapshot of the runtime security and
// registration configuration. One snapshot is taken per resolution so that
// no decision ever mixes values from two different writes.
type SecuritySettings struct {
	InviteOnlyMode          bool
	OpenRegistrationAllowed bool
	Require2FAAllUsers      bool
	Require2FAAdminsOnly    bool
	SessionTimeoutSeconds   int
	UpdatedAt               time.Time
}

// DefaultSecuritySettings is what a fresh installation starts with.
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		InviteOnlyMode:        true,
		SessionTimeoutSeconds: DefaultSessionTimeoutSeconds,
	}
}

// Is2FARequired reports whether a principal surfacing role must complete a
// second factor.
func (s SecuritySettings) Is2FARequired(role Role) bool {
	return s.Require2FAAllUsers || (s.Require2FAAdminsOnly && role.Privileged())
}

// SelfRegistrationOpen reports whether local accounts may be created without
// an invitation.
func (s SecuritySettings) SelfRegistrationOpen() bool {
	return s.OpenRegistrationAllowed && !s.InviteOnlyMode
}

func (s SecuritySettings) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutSeconds) * time.Second
}

func (s SecuritySettings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.SessionTimeoutSeconds,
			validation.Required,
			validation.Min(MinSessionTimeoutSeconds),
			validation.Max(MaxSessionTimeoutSeconds),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
