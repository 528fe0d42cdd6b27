package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// PasswordVerifier checks local credentials and vouches for the email when
// they match. It is the only code that sees raw passwords.
type PasswordVerifier struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher

	dummyOnce sync.Once
	dummy     string
}

// burn spends the same time as a real verification so unknown emails are
// not distinguishable by latency.
func (v *PasswordVerifier) burn(password string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.Hasher.Hash("gatehouse-timing-equaliser")
	})
	if v.dummy != "" {
		_ = v.Hasher.Verify(password, v.dummy)
	}
}

func (v *PasswordVerifier) VerifyPassword(ctx context.Context, email, password string) (domain.IdentityAssertion, error) {
	log := slogx.FromContext(ctx)
	email = domain.NormalizeEmail(email)

	if email == "" || password == "" {
		return domain.IdentityAssertion{}, ErrInvalidCredentials
	}

	u, err := v.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		v.burn(password)
		return domain.IdentityAssertion{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.IdentityAssertion{}, unavailable(err)
	}

	if !u.HasPassword() {
		v.burn(password)
		log.Debug("password login for account without local password", slog.String("user_id", u.ID))
		return domain.IdentityAssertion{}, ErrInvalidCredentials
	}

	if err := v.Hasher.Verify(password, *u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Error("stored password hash unusable", slog.String("user_id", u.ID), slog.Any("error", err))
		}
		return domain.IdentityAssertion{}, ErrInvalidCredentials
	}

	return domain.IdentityAssertion{Email: u.Email, DisplayName: u.DisplayName}, nil
}

// HashPassword hashes a new password for a registration assertion.
func (v *PasswordVerifier) HashPassword(password string) (string, error) {
	return v.Hasher.Hash(password)
}
