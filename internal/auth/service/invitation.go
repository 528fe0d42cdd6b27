package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/gatehouse/internal/auth/audit"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/metrics"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	DefaultInvitationPageSize = 50
	MaxInvitationPageSize     = 200

	tokenAttempts = 3
)

var (
	ErrInvalidInvitationRequest = errors.New("invalid invitation request")
	ErrInvitationNotFound       = errors.New("invitation not found")
	ErrInvitationConsumed       = errors.New("invitation has already been used")
	ErrTokenCollision           = errors.New("could not generate a unique invitation token")
)

type CreateInvitationRequest struct {
	Role      domain.Role
	Email     string     // empty for an open invitation
	ExpiresAt *time.Time // nil never expires
	CreatedBy string
}

func (r CreateInvitationRequest) Validate(now time.Time) error {
	roles := make([]any, 0, len(domain.AllRoles()))
	for _, role := range domain.AllRoles() {
		roles = append(roles, role)
	}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(roles...)),
		validation.Field(&r.Email, is.Email, validation.Length(0, 254)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInvitationRequest, err)
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiry must be in the future", ErrInvalidInvitationRequest)
	}
	return nil
}

type InvitationFilter struct {
	Status domain.InvitationStatus // empty lists every status
	Email  string
	After  string // id cursor from a previous page
	Limit  int
}

type InvitationPage struct {
	Invitations []domain.Invitation
	NextCursor  string
}

type InvitationService struct {
	Store    store.Store
	Notifier *notify.Async
	Audit    audit.Sink
	Metrics  *metrics.Metrics
	Now      func() time.Time

	// TokenSize is the token length in bytes. Zero means 256 bits.
	TokenSize int
}

// Create stores a new invitation and returns it with the raw token, which is
// not recoverable afterwards.
func (s *InvitationService) Create(ctx context.Context, req CreateInvitationRequest) (domain.Invitation, string, error) {
	log := slogx.FromContext(ctx)
	now := nowFrom(s.Now)

	if err := req.Validate(now); err != nil {
		return domain.Invitation{}, "", err
	}

	size := s.TokenSize
	if size == 0 {
		size = cryptox.TokenSize256
	}

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		token, err := cryptox.GenerateToken(size)
		if err != nil {
			// Only reachable with a configured size under 128 bits.
			return domain.Invitation{}, "", err
		}

		inv, err := domain.NewInvitation(domain.NewInvitationParams{
			ID:        idx.NewAt(now).String(),
			TokenHash: cryptox.FingerprintToken(token),
			Email:     req.Email,
			Role:      req.Role,
			CreatedBy: req.CreatedBy,
			ExpiresAt: req.ExpiresAt,
			CreatedAt: now,
		})
		if err != nil {
			return domain.Invitation{}, "", fmt.Errorf("%w: %v", ErrInvalidInvitationRequest, err)
		}

		err = s.Store.Invites().CreateInvite(ctx, inv)
		if errors.Is(err, store.ErrAlreadyExists) {
			log.Warn("invitation token collision, regenerating", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			log.Error("failed to store invitation", slog.Any("error", err))
			return domain.Invitation{}, "", unavailable(err)
		}

		log.Info("invitation created",
			slog.String("invitation_id", inv.ID),
			slog.String("role", string(inv.Role)),
			slog.String("email", inv.EmailOrEmpty()),
			slog.String("created_by", req.CreatedBy),
		)
		audit.Emit(ctx, s.Audit, domain.AuditEvent{
			Type:         domain.EventInvitationCreated,
			Actor:        req.CreatedBy,
			Email:        inv.EmailOrEmpty(),
			InvitationID: inv.ID,
			OccurredAt:   now,
		})
		s.Metrics.Invitation(metrics.InvitationCreated)

		if inv.Email != nil {
			s.Notifier.Dispatch(ctx, notify.Invitation{
				InvitationID: inv.ID,
				Email:        *inv.Email,
				Role:         string(inv.Role),
				Token:        token,
				ExpiresAt:    inv.ExpiresAt,
			})
		}
		return inv, token, nil
	}

	log.Error("exhausted invitation token attempts")
	return domain.Invitation{}, "", ErrTokenCollision
}

// FindValidByEmail returns the newest unconsumed, unexpired invitation bound
// to email.
func (s *InvitationService) FindValidByEmail(ctx context.Context, email string, now time.Time) (domain.Invitation, error) {
	inv, err := s.Store.Invites().GetValidInviteByEmail(ctx, domain.NormalizeEmail(email), now)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	return inv, unavailable(err)
}

// FindValidByToken applies the same validity rule to a raw token.
func (s *InvitationService) FindValidByToken(ctx context.Context, token string, now time.Time) (domain.Invitation, error) {
	inv, err := s.Store.Invites().GetInviteByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	if err != nil {
		return domain.Invitation{}, unavailable(err)
	}
	if !inv.ValidAt(now) {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	return inv, nil
}

// Consume marks the invitation used by usedBy. It reports false when the
// invitation was already consumed.
func (s *InvitationService) Consume(ctx context.Context, invitationID, usedBy string, now time.Time) (bool, error) {
	ok, err := s.Store.Invites().ConsumeInvite(ctx, invitationID, usedBy, now)
	if err != nil {
		return false, unavailable(err)
	}
	if ok {
		s.Metrics.Invitation(metrics.InvitationConsumed)
	}
	return ok, nil
}

// Revoke deletes an unconsumed invitation.
func (s *InvitationService) Revoke(ctx context.Context, actor, invitationID string) error {
	log := slogx.FromContext(ctx)

	err := s.Store.Invites().DeleteUnusedInvite(ctx, invitationID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrInvitationNotFound
	case errors.Is(err, store.ErrConflict):
		log.Warn("refused to revoke consumed invitation", slog.String("invitation_id", invitationID))
		return ErrInvitationConsumed
	case err != nil:
		return unavailable(err)
	}

	log.Info("invitation revoked", slog.String("invitation_id", invitationID), slog.String("actor", actor))
	audit.Emit(ctx, s.Audit, domain.AuditEvent{
		Type:         domain.EventInvitationRevoked,
		Actor:        actor,
		InvitationID: invitationID,
	})
	s.Metrics.Invitation(metrics.InvitationRevoked)
	return nil
}

// List pages through invitations newest first.
func (s *InvitationService) List(ctx context.Context, f InvitationFilter) (InvitationPage, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = DefaultInvitationPageSize
	case limit > MaxInvitationPageSize:
		limit = MaxInvitationPageSize
	}

	invs, err := s.Store.Invites().ListInvites(ctx, store.InviteFilter{
		Status: f.Status,
		Email:  domain.NormalizeEmail(f.Email),
		After:  f.After,
		Limit:  limit + 1,
		Now:    nowFrom(s.Now),
	})
	if err != nil {
		return InvitationPage{}, unavailable(err)
	}

	page := InvitationPage{Invitations: invs}
	if len(invs) > limit {
		page.Invitations = invs[:limit]
		page.NextCursor = invs[limit-1].ID
	}
	return page, nil
}
