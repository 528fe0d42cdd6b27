package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a write is refused because of the row's
	// current state, e.g. deleting an invitation that has been consumed.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories are exposed as methods so that a Tx can
// hand out the same repos bound to the transaction, and nested transactions
// are refused.
type Store interface {
	Users() Users
	Invites() Invites
	Roles() Roles
	Settings() Settings
	Audit() Audit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches the normalized email exactly.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user. A duplicate email yields ErrAlreadyExists;
	// the unique constraint is what keeps concurrent registrations apart.
	CreateUser(ctx context.Context, u domain.User) error

	// ClaimFederatedIdentity attaches a federated identity to a user that has
	// none yet. It returns false when the user was already federated, in which
	// case nothing is written.
	ClaimFederatedIdentity(ctx context.Context, userID string, fed domain.FederatedIdentity, avatarURL string, now time.Time) (bool, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	// CountUsers is used by bootstrap to detect an empty installation.
	CountUsers(ctx context.Context) (int, error)

	UpdateMFASecret(ctx context.Context, userID, secret string, now time.Time) error
	EnableMFA(ctx context.Context, userID string, now time.Time) error
	DisableMFA(ctx context.Context, userID string, now time.Time) error
}

// InviteFilter narrows ListInvites. Pagination is keyset on the ULID id,
// newest first: After is the last id of the previous page.
type InviteFilter struct {
	Status domain.InvitationStatus
	Email  string
	After  string
	Limit  int
	Now    time.Time
}

type Invites interface {
	// CreateInvite writes a new invitation. A duplicate token_hash yields
	// ErrAlreadyExists.
	CreateInvite(ctx context.Context, inv domain.Invitation) error

	GetInviteByID(ctx context.Context, id string) (domain.Invitation, error)

	// GetInviteByTokenHash returns the invitation regardless of its state so
	// callers can tell used from expired.
	GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invitation, error)

	// GetValidInviteByEmail returns the newest unconsumed invitation bound to
	// email whose expiry is after now.
	GetValidInviteByEmail(ctx context.Context, email string, now time.Time) (domain.Invitation, error)

	// ListInvitesByEmail returns every invitation bound to email, newest first.
	ListInvitesByEmail(ctx context.Context, email string) ([]domain.Invitation, error)

	ListInvites(ctx context.Context, f InviteFilter) ([]domain.Invitation, error)

	// ConsumeInvite sets used_at and used_by together, only while used_at is
	// still null. It returns true iff this call performed the transition.
	ConsumeInvite(ctx context.Context, id, usedBy string, now time.Time) (bool, error)

	// DeleteUnusedInvite removes an unconsumed invitation. ErrConflict if it
	// was consumed, ErrNotFound if it does not exist.
	DeleteUnusedInvite(ctx context.Context, id string) error
}

type Roles interface {
	// AssignRole is idempotent.
	AssignRole(ctx context.Context, userID string, role domain.Role, now time.Time) error
	HasRole(ctx context.Context, userID string, role domain.Role) (bool, error)
	ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error)
	RevokeRole(ctx context.Context, userID string, role domain.Role) error
}

type Settings interface {
	// GetSecuritySettings reads the singleton row in one statement.
	GetSecuritySettings(ctx context.Context) (domain.SecuritySettings, error)
	UpdateSecuritySettings(ctx context.Context, s domain.SecuritySettings) error
}

type Audit interface {
	AppendEvent(ctx context.Context, ev domain.AuditEvent) error

	// DeleteEventsBefore prunes events older than cutoff and returns how many
	// were removed.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
