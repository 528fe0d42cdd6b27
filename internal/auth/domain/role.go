package domain

import (
	"errors"
	"strings"
)

// Role is one of the closed set of role names a principal or invitation can carry.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// DefaultRole is granted to self-registered principals and reported for
// principals that hold no role at all.
const DefaultRole = RoleMember

var ErrInvalidRole = errors.New("invalid role")

// Higher rank wins when a principal holds several roles.
var roleRank = map[Role]int{
	RoleOwner:  50,
	RoleAdmin:  40,
	RoleEditor: 30,
	RoleMember: 20,
	RoleViewer: 10,
}

// AllRoles returns every known role ordered from most to least privileged.
func AllRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleEditor, RoleMember, RoleViewer}
}

// ParseRole normalizes s and checks it against the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns 0 for unknown roles.
func (r Role) Rank() int { return roleRank[r] }

// Privileged reports whether the role administers the system (admin, owner).
func (r Role) Privileged() bool { return r == RoleAdmin || r == RoleOwner }

// AtLeast reports whether r is as privileged as min.
func (r Role) AtLeast(min Role) bool { return r.Rank() >= min.Rank() && r.Valid() }

func (r Role) String() string { return string(r) }

// PrimaryRole picks the highest ranked role from roles. A principal without
// roles is reported as DefaultRole.
func PrimaryRole(roles []Role) Role {
	primary := Role("")
	for _, r := range roles {
		if r.Rank() > primary.Rank() {
			primary = r
		}
	}
	if primary == "" {
		return DefaultRole
	}
	return primary
}
