package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(DSN(filepath.Join(t.TempDir(), "gatehouse.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func mustUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()
	u, err := domain.NewLocalUser(idx.New().String(), email, "", "$argon2id$hash", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func mustInvite(t *testing.T, s *Store, email string, role domain.Role, createdAt time.Time, expiresAt *time.Time) domain.Invitation {
	t.Helper()
	inv, err := domain.NewInvitation(domain.NewInvitationParams{
		ID:        idx.NewAt(createdAt).String(),
		TokenHash: cryptox.FingerprintToken(idx.New().String()),
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	require.NoError(t, s.Invites().CreateInvite(context.Background(), inv))
	return inv
}

func ptr[T any](v T) *T { return &v }

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	u := mustUser(t, s, "carol@x.com")

	got, err := s.Users().GetUserByEmail(ctx, "carol@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "carol", got.DisplayName)
	require.False(t, got.IsFederated)
	require.True(t, got.HasPassword())
	require.True(t, u.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Users().GetUserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	t.Run("email is unique", func(t *testing.T) {
		dup, err := domain.NewLocalUser(idx.New().String(), "carol@x.com", "", "h", time.Now())
		require.NoError(t, err)
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("first federated claim wins", func(t *testing.T) {
		ok, err := s.Users().ClaimFederatedIdentity(ctx, u.ID,
			domain.FederatedIdentity{Provider: "google", ExternalID: "g1"}, "https://img/a.png", time.Now())
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Users().ClaimFederatedIdentity(ctx, u.ID,
			domain.FederatedIdentity{Provider: "github", ExternalID: "h1"}, "", time.Now())
		require.NoError(t, err)
		require.False(t, ok)

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.IsFederated)
		require.Equal(t, "google", *got.FederatedProvider)
		require.Equal(t, "g1", *got.FederatedID)
		require.Equal(t, "https://img/a.png", got.AvatarURL)
		require.True(t, got.HasPassword(), "claiming keeps the local password")
	})

	t.Run("mfa lifecycle", func(t *testing.T) {
		require.ErrorIs(t, s.Users().EnableMFA(ctx, idx.New().String(), time.Now()), store.ErrNotFound)

		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "SECRET", time.Now()))
		require.NoError(t, s.Users().EnableMFA(ctx, u.ID, time.Now()))
		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.MFAEnabled())
		require.Equal(t, "SECRET", *got.MFASecret)

		require.NoError(t, s.Users().DisableMFA(ctx, u.ID, time.Now()))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.MFAEnabled())
		require.Nil(t, got.MFASecret)
	})
}

func TestInvites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	t.Run("valid lookup prefers newest", func(t *testing.T) {
		mustInvite(t, s, "bob@x.com", domain.RoleViewer, now.Add(-2*time.Hour), nil)
		newer := mustInvite(t, s, "bob@x.com", domain.RoleEditor, now.Add(-time.Hour), ptr(now.Add(time.Hour)))

		got, err := s.Invites().GetValidInviteByEmail(ctx, "bob@x.com", now)
		require.NoError(t, err)
		require.Equal(t, newer.ID, got.ID)
		require.Equal(t, domain.RoleEditor, got.Role)
	})

	t.Run("expiry boundary is closed", func(t *testing.T) {
		inv := mustInvite(t, s, "edge@x.com", domain.RoleMember, now.Add(-time.Hour), ptr(now))

		_, err := s.Invites().GetValidInviteByEmail(ctx, "edge@x.com", now)
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.Invites().GetValidInviteByEmail(ctx, "edge@x.com", now.Add(-time.Nanosecond))
		require.NoError(t, err)
		require.Equal(t, inv.ID, got.ID)
	})

	t.Run("consume is compare and swap", func(t *testing.T) {
		inv := mustInvite(t, s, "cas@x.com", domain.RoleMember, now, nil)
		a := mustUser(t, s, "a@x.com")
		b := mustUser(t, s, "b@x.com")

		ok, err := s.Invites().ConsumeInvite(ctx, inv.ID, a.ID, now)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Invites().ConsumeInvite(ctx, inv.ID, b.ID, now)
		require.NoError(t, err)
		require.False(t, ok)

		got, err := s.Invites().GetInviteByTokenHash(ctx, inv.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)
		require.Equal(t, a.ID, *got.UsedBy)

		_, err = s.Invites().GetValidInviteByEmail(ctx, "cas@x.com", now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		inv := mustInvite(t, s, "race@x.com", domain.RoleMember, now, nil)
		u := mustUser(t, s, "racer@x.com")

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			errs []error
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Invites().ConsumeInvite(ctx, inv.ID, u.ID, time.Now())
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
				}
				if ok {
					wins++
				}
			}()
		}
		wg.Wait()
		require.Empty(t, errs)
		require.Equal(t, 1, wins)
	})

	t.Run("delete only when unused", func(t *testing.T) {
		unused := mustInvite(t, s, "", domain.RoleMember, now, nil)
		require.NoError(t, s.Invites().DeleteUnusedInvite(ctx, unused.ID))
		require.ErrorIs(t, s.Invites().DeleteUnusedInvite(ctx, unused.ID), store.ErrNotFound)

		used := mustInvite(t, s, "used@x.com", domain.RoleMember, now, nil)
		u := mustUser(t, s, "used@x.com")
		_, err := s.Invites().ConsumeInvite(ctx, used.ID, u.ID, now)
		require.NoError(t, err)
		require.ErrorIs(t, s.Invites().DeleteUnusedInvite(ctx, used.ID), store.ErrConflict)
	})

	t.Run("token hash is unique", func(t *testing.T) {
		inv := mustInvite(t, s, "dup@x.com", domain.RoleMember, now, nil)
		inv.ID = idx.New().String()
		require.ErrorIs(t, s.Invites().CreateInvite(ctx, inv), store.ErrAlreadyExists)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		pending, err := s.Invites().ListInvites(ctx, store.InviteFilter{
			Status: domain.InvitationPending, Email: "bob@x.com", Limit: 10, Now: now,
		})
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Greater(t, pending[0].ID, pending[1].ID)

		page, err := s.Invites().ListInvites(ctx, store.InviteFilter{Limit: 1, Now: now})
		require.NoError(t, err)
		require.Len(t, page, 1)

		next, err := s.Invites().ListInvites(ctx, store.InviteFilter{Limit: 1, After: page[0].ID, Now: now})
		require.NoError(t, err)
		require.Len(t, next, 1)
		require.Less(t, next[0].ID, page[0].ID)

		expired, err := s.Invites().ListInvites(ctx, store.InviteFilter{Status: domain.InvitationExpired, Limit: 10, Now: now})
		require.NoError(t, err)
		for _, inv := range expired {
			require.Equal(t, domain.InvitationExpired, inv.StatusAt(now))
		}

		used, err := s.Invites().ListInvites(ctx, store.InviteFilter{Status: domain.InvitationUsed, Limit: 10, Now: now})
		require.NoError(t, err)
		require.NotEmpty(t, used)
		for _, inv := range used {
			require.True(t, inv.Consumed())
		}
	})
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := mustUser(t, s, "r@x.com")

	require.NoError(t, s.Roles().AssignRole(ctx, u.ID, domain.RoleEditor, time.Now()))
	require.NoError(t, s.Roles().AssignRole(ctx, u.ID, domain.RoleEditor, time.Now()))

	roles, err := s.Roles().ListUserRoles(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleEditor}, roles)

	ok, err := s.Roles().HasRole(ctx, u.ID, domain.RoleEditor)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Roles().RevokeRole(ctx, u.ID, domain.RoleEditor))
	ok, err = s.Roles().HasRole(ctx, u.ID, domain.RoleEditor)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.Settings().GetSecuritySettings(ctx)
	require.NoError(t, err)
	require.True(t, got.InviteOnlyMode)
	require.Equal(t, domain.DefaultSessionTimeoutSeconds, got.SessionTimeoutSeconds)

	want := domain.SecuritySettings{
		OpenRegistrationAllowed: true,
		Require2FAAdminsOnly:    true,
		SessionTimeoutSeconds:   3600,
		UpdatedAt:               time.Now().UTC(),
	}
	require.NoError(t, s.Settings().UpdateSecuritySettings(ctx, want))

	got, err = s.Settings().GetSecuritySettings(ctx)
	require.NoError(t, err)
	require.False(t, got.InviteOnlyMode)
	require.True(t, got.OpenRegistrationAllowed)
	require.True(t, got.Require2FAAdminsOnly)
	require.Equal(t, 3600, got.SessionTimeoutSeconds)
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestAudit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour), now} {
		require.NoError(t, s.Audit().AppendEvent(ctx, domain.AuditEvent{
			ID:         idx.New().String(),
			Type:       domain.EventIdentityRejected,
			Email:      "x@x.com",
			Decision:   domain.DecisionReject,
			Reason:     domain.ReasonNoValidInvitation,
			Candidates: []string{"a", "b"},
			OccurredAt: at,
		}))
	}

	n, err := s.Audit().DeleteEventsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		u, err := domain.NewLocalUser(idx.New().String(), "tx@x.com", "", "h", time.Now())
		require.NoError(t, err)
		require.NoError(t, tx.Users().CreateUser(ctx, u))
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Users().GetUserByEmail(ctx, "tx@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.WithTx(ctx, func(store.Tx) error { return nil })
	}), sql.ErrTxDone)
}
