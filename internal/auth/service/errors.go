package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

var (
	// ErrUnavailable marks infrastructure failures. It is never a rejection:
	// a storage outage must not read as "no valid invitation".
	ErrUnavailable = errors.New("identity store unavailable")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAlreadyRegistered  = errors.New("an account with this email already exists")
	ErrUserNotFound       = errors.New("user not found")
)

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func getUser(ctx context.Context, s store.Store, id string) (domain.User, error) {
	u, err := s.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, unavailable(err)
}
