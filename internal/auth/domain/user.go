package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidUser = errors.New("invalid user")

// User is a principal. A user without a federated identity always has a
// local password hash; the two login paths are never both absent.
type User struct {
	ID                string
	Email             string
	DisplayName       string
	PasswordHash      *string // argon2id PHC string, nil when no local login path exists
	FederatedProvider *string
	FederatedID       *string
	IsFederated       bool
	AvatarURL         string
	MFASecret         *string    // base32 TOTP secret (nullable)
	MFAEnabledAt      *time.Time // set once the secret has been confirmed
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewLocalUser builds a password-only principal.
func NewLocalUser(id, email, displayName, passwordHash string, now time.Time) (User, error) {
	if passwordHash == "" {
		return User{}, ErrInvalidUser
	}
	u := User{
		ID:           id,
		Email:        NormalizeEmail(email),
		DisplayName:  displayNameOrLocalPart(displayName, email),
		PasswordHash: &passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return u, u.Validate()
}

// NewFederatedUser builds a principal whose only login path is the given
// external identity.
func NewFederatedUser(id, email, displayName string, fed FederatedIdentity, avatarURL string, now time.Time) (User, error) {
	if fed.Provider == "" || fed.ExternalID == "" {
		return User{}, ErrInvalidUser
	}
	provider, externalID := fed.Provider, fed.ExternalID
	u := User{
		ID:                id,
		Email:             NormalizeEmail(email),
		DisplayName:       displayNameOrLocalPart(displayName, email),
		FederatedProvider: &provider,
		FederatedID:       &externalID,
		IsFederated:       true,
		AvatarURL:         avatarURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return u, u.Validate()
}

// Validate checks the structural invariants of a principal.
func (u User) Validate() error {
	if u.ID == "" || u.Email == "" {
		return ErrInvalidUser
	}
	if !u.IsFederated && (u.PasswordHash == nil || *u.PasswordHash == "") {
		return ErrInvalidUser
	}
	if u.IsFederated && (u.FederatedProvider == nil || u.FederatedID == nil) {
		return ErrInvalidUser
	}
	return nil
}

func (u User) MFAEnabled() bool { return u.MFAEnabledAt != nil }

// HasPassword reports whether the user can log in with a local password.
func (u User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

// NormalizeEmail trims and lower-cases an address. All email comparisons in
// the system happen on normalized values.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayNameOrLocalPart(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	return local
}
