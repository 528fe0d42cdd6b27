package service

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

type UserService struct {
	Store store.Store
}

// Profile is a user with the role surfaced to clients.
type Profile struct {
	User  domain.User
	Role  domain.Role
	Roles []domain.Role
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (Profile, error) {
	u, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return Profile{}, err
	}
	roles, err := s.Store.Roles().ListUserRoles(ctx, userID)
	if err != nil {
		return Profile{}, unavailable(err)
	}
	return Profile{User: u, Role: domain.PrimaryRole(roles), Roles: roles}, nil
}
