package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

type RoleService struct {
	Store store.Store
	Now   func() time.Time
}

// Assign grants role to the user. Granting a held role is a no-op.
func (s *RoleService) Assign(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	return unavailable(s.Store.Roles().AssignRole(ctx, userID, role, nowFrom(s.Now)))
}

func (s *RoleService) HasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	ok, err := s.Store.Roles().HasRole(ctx, userID, role)
	return ok, unavailable(err)
}

func (s *RoleService) ListRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListUserRoles(ctx, userID)
	return roles, unavailable(err)
}

// PrimaryRole is the highest ranked role the user holds, or member.
func (s *RoleService) PrimaryRole(ctx context.Context, userID string) (domain.Role, error) {
	return primaryRole(ctx, s.Store.Roles(), userID)
}

func (s *RoleService) Revoke(ctx context.Context, userID string, role domain.Role) error {
	return unavailable(s.Store.Roles().RevokeRole(ctx, userID, role))
}

func primaryRole(ctx context.Context, roles store.Roles, userID string) (domain.Role, error) {
	held, err := roles.ListUserRoles(ctx, userID)
	if err != nil {
		return "", unavailable(err)
	}
	return domain.PrimaryRole(held), nil
}

func nowFrom(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}
