package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/gatehouse/internal/auth/audit"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
	ErrInvalidBootstrap      = errors.New("invalid bootstrap request")
)

// BootstrapService creates the first owner so an invite-only deployment has
// someone to issue invitations.
type BootstrapService struct {
	Store     store.Store
	Passwords *PasswordVerifier
	Audit     audit.Sink
	Token     string // pre-shared bootstrap token; empty disables bootstrap
	Now       func() time.Time
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	n, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req domain.BootstrapData) (domain.User, error) {
	l := slogx.FromContext(ctx)

	// 1. Check the token before anything that reveals system state.
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return domain.User{}, ErrBootstrapUnauthorized
	}

	err := validation.ValidateStruct(&req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required, validation.Length(MinPasswordLength, 256)),
		validation.Field(&req.DisplayName, validation.Length(0, 128)),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidBootstrap, err)
	}

	// 2. Hash outside the transaction.
	hash, err := s.Passwords.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash owner password: %w", err)
	}

	now := nowFrom(s.Now)
	owner, err := domain.NewLocalUser(idx.NewAt(now).String(), req.Email, req.DisplayName, hash, now)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidBootstrap, err)
	}

	// 3. Re-check emptiness inside the transaction so two bootstraps cannot
	// both succeed.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrBootstrapAlready
		}
		if err := tx.Users().CreateUser(ctx, owner); err != nil {
			return err
		}
		return tx.Roles().AssignRole(ctx, owner.ID, domain.RoleOwner, now)
	})
	if errors.Is(err, ErrBootstrapAlready) {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.User{}, ErrBootstrapAlready
	}
	if err != nil {
		l.Error("failed to bootstrap owner", slog.Any("error", err))
		return domain.User{}, unavailable(err)
	}

	l.Info("successfully bootstrapped system", slog.String("owner_id", owner.ID))
	audit.Emit(ctx, s.Audit, domain.AuditEvent{
		Type:       domain.EventBootstrapped,
		Actor:      owner.ID,
		Email:      owner.Email,
		Decision:   domain.DecisionCreateNew,
		OccurredAt: now,
	})
	return owner, nil
}
