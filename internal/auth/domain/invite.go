package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidInvitation = errors.New("invalid invitation")

// InvitationStatus is the derived lifecycle state of an invitation at a given instant.
type InvitationStatus string

const (
	InvitationPending InvitationStatus = "pending"
	InvitationUsed    InvitationStatus = "used"
	InvitationExpired InvitationStatus = "expired"
)

// ParseInvitationStatus accepts "", "all" and the three statuses. The empty
// status means no filtering.
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	switch st := InvitationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", "all":
		return "", nil
	case InvitationPending, InvitationUsed, InvitationExpired:
		return st, nil
	default:
		return "", ErrInvalidInvitation
	}
}

// Invitation authorizes the creation of exactly one principal with Role.
//
// The raw token is never stored; TokenHash holds its fingerprint. UsedAt and
// UsedBy are written together by a single conditional update.
type Invitation struct {
	ID        string
	TokenHash string
	Email     *string // nil for an open invitation
	Role      Role
	CreatedBy *string
	ExpiresAt *time.Time // nil never expires
	UsedAt    *time.Time
	UsedBy    *string
	CreatedAt time.Time
}

// NewInvitationParams carries the caller-chosen attributes of a new invitation.
type NewInvitationParams struct {
	ID        string
	TokenHash string
	Email     string
	Role      Role
	CreatedBy string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// NewInvitation builds an unconsumed invitation and enforces its construction
// invariants: known role, token fingerprint present, expiry after creation.
func NewInvitation(p NewInvitationParams) (Invitation, error) {
	if p.ID == "" || p.TokenHash == "" || !p.Role.Valid() || p.CreatedAt.IsZero() {
		return Invitation{}, ErrInvalidInvitation
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(p.CreatedAt) {
		return Invitation{}, ErrInvalidInvitation
	}

	inv := Invitation{
		ID:        p.ID,
		TokenHash: p.TokenHash,
		Role:      p.Role,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}
	if email := NormalizeEmail(p.Email); email != "" {
		inv.Email = &email
	}
	if p.CreatedBy != "" {
		createdBy := p.CreatedBy
		inv.CreatedBy = &createdBy
	}
	return inv, nil
}

// Consumed reports whether the invitation has been used.
func (i Invitation) Consumed() bool { return i.UsedAt != nil }

// ExpiredAt reports whether the invitation expired at or before now. An
// invitation expiring exactly at now is expired.
func (i Invitation) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// ValidAt is the validity predicate: unconsumed and not expired at now.
func (i Invitation) ValidAt(now time.Time) bool {
	return !i.Consumed() && !i.ExpiredAt(now)
}

func (i Invitation) StatusAt(now time.Time) InvitationStatus {
	switch {
	case i.Consumed():
		return InvitationUsed
	case i.ExpiredAt(now):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

// BoundTo reports whether the invitation may be redeemed by email. Open
// invitations are redeemable by any address.
func (i Invitation) BoundTo(email string) bool {
	return i.Email == nil || *i.Email == NormalizeEmail(email)
}

// EmailOrEmpty returns the bound address or "" for open invitations.
func (i Invitation) EmailOrEmpty() string {
	if i.Email == nil {
		return ""
	}
	return *i.Email
}
