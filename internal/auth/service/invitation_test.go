package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

// collidingStore reports the first n invitation inserts as duplicates.
type collidingStore struct {
	store.Store
	remaining int
}

func (s *collidingStore) Invites() store.Invites {
	return &collidingInvites{Invites: s.Store.Invites(), s: s}
}

type collidingInvites struct {
	store.Invites
	s *collidingStore
}

func (c *collidingInvites) CreateInvite(ctx context.Context, inv domain.Invitation) error {
	if c.s.remaining > 0 {
		c.s.remaining--
		return store.ErrAlreadyExists
	}
	return c.Invites.CreateInvite(ctx, inv)
}

func TestCreateInvitation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := epoch.Add(72 * time.Hour)

	inv, token, err := f.invites.Create(ctx, CreateInvitationRequest{
		Role:      domain.RoleEditor,
		Email:     " Bob@X.com ",
		ExpiresAt: &exp,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "bob@x.com", inv.EmailOrEmpty())
	require.Equal(t, cryptox.FingerprintToken(token), inv.TokenHash)
	require.NotContains(t, inv.TokenHash, token)

	stored, err := f.store.Invites().GetInviteByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.TokenHash, stored.TokenHash)
	require.Equal(t, domain.InvitationPending, stored.StatusAt(epoch))

	f.notifier.Wait()
	require.Len(t, f.sender.sent, 1)
	require.Equal(t, token, f.sender.sent[0].Token)
	require.Equal(t, "bob@x.com", f.sender.sent[0].Email)

	require.Len(t, f.audit.ofType(domain.EventInvitationCreated), 1)
}

func TestCreateOpenInvitationSkipsNotification(t *testing.T) {
	f := newFixture(t)
	inv, _ := f.invite(t, "", domain.RoleViewer, 0)
	require.Nil(t, inv.Email)
	require.Nil(t, inv.ExpiresAt)

	f.notifier.Wait()
	require.Empty(t, f.sender.sent)
}

func TestCreateInvitationValidation(t *testing.T) {
	f := newFixture(t)
	past := epoch.Add(-time.Minute)

	for name, req := range map[string]CreateInvitationRequest{
		"unknown role":   {Role: "superuser"},
		"missing role":   {Email: "a@x.com"},
		"bad email":      {Role: domain.RoleMember, Email: "nope"},
		"expiry in past": {Role: domain.RoleMember, ExpiresAt: &past},
		"expiry now":     {Role: domain.RoleMember, ExpiresAt: &epoch},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.invites.Create(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidInvitationRequest)
		})
	}
}

func TestCreateInvitationRetriesTokenCollision(t *testing.T) {
	f := newFixture(t)

	f.invites.Store = &collidingStore{Store: f.store, remaining: 2}
	inv, _, err := f.invites.Create(context.Background(), CreateInvitationRequest{Role: domain.RoleMember})
	require.NoError(t, err)
	require.NotEmpty(t, inv.ID)

	f.invites.Store = &collidingStore{Store: f.store, remaining: tokenAttempts}
	_, _, err = f.invites.Create(context.Background(), CreateInvitationRequest{Role: domain.RoleMember})
	require.ErrorIs(t, err, ErrTokenCollision)
}

func TestCreateInvitationRefusesWeakTokens(t *testing.T) {
	f := newFixture(t)
	f.invites.TokenSize = 8

	_, _, err := f.invites.Create(context.Background(), CreateInvitationRequest{Role: domain.RoleMember})
	require.ErrorIs(t, err, cryptox.ErrInsufficientEntropy)
}

func TestFindValidInvitation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, token := f.invite(t, "bob@x.com", domain.RoleEditor, time.Hour)

	got, err := f.invites.FindValidByEmail(ctx, "BOB@x.com", epoch)
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)

	got, err = f.invites.FindValidByToken(ctx, token, epoch)
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)

	_, err = f.invites.FindValidByEmail(ctx, "bob@x.com", epoch.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.invites.FindValidByToken(ctx, token, epoch.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.invites.FindValidByToken(ctx, "not-a-token", epoch)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestConsumeInvitationOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, _ := f.invite(t, "bob@x.com", domain.RoleEditor, 0)
	a := f.localUser(t, "a@x.com", "password-a", domain.RoleMember)
	b := f.localUser(t, "b@x.com", "password-b", domain.RoleMember)

	ok, err := f.invites.Consume(ctx, inv.ID, a.ID, epoch)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.invites.Consume(ctx, inv.ID, b.ID, epoch.Add(time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := f.store.Invites().GetInviteByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, *got.UsedBy)
	require.True(t, got.UsedAt.Equal(epoch))

	_, err = f.invites.FindValidByEmail(ctx, "bob@x.com", epoch)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRevokeInvitation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("pending", func(t *testing.T) {
		inv, token := f.invite(t, "bob@x.com", domain.RoleEditor, 0)
		require.NoError(t, f.invites.Revoke(ctx, "admin-1", inv.ID))

		_, err := f.invites.FindValidByToken(ctx, token, epoch)
		require.ErrorIs(t, err, ErrInvitationNotFound)
		require.Len(t, f.audit.ofType(domain.EventInvitationRevoked), 1)
	})

	t.Run("consumed", func(t *testing.T) {
		inv, _ := f.invite(t, "carol@x.com", domain.RoleEditor, 0)
		_, err := f.resolver.Resolve(ctx, federated("carol@x.com", "google", "c1"))
		require.NoError(t, err)

		require.ErrorIs(t, f.invites.Revoke(ctx, "admin-1", inv.ID), ErrInvitationConsumed)
	})

	t.Run("unknown", func(t *testing.T) {
		require.ErrorIs(t, f.invites.Revoke(ctx, "admin-1", "01HZZZZZZZZZZZZZZZZZZZZZZZ"), ErrInvitationNotFound)
	})
}

func TestListInvitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []string
	for i := range 5 {
		inv, _ := f.invite(t, "", domain.RoleMember, time.Hour)
		ids = append(ids, inv.ID)
		f.clock.Advance(time.Duration(i+1) * time.Millisecond)
	}
	used, _ := f.invite(t, "used@x.com", domain.RoleMember, 0)
	_, err := f.resolver.Resolve(ctx, federated("used@x.com", "github", "u"))
	require.NoError(t, err)

	t.Run("pages newest first", func(t *testing.T) {
		page, err := f.invites.List(ctx, InvitationFilter{Limit: 4})
		require.NoError(t, err)
		require.Len(t, page.Invitations, 4)
		require.Equal(t, used.ID, page.Invitations[0].ID)
		require.Equal(t, ids[4], page.Invitations[1].ID)
		require.NotEmpty(t, page.NextCursor)

		next, err := f.invites.List(ctx, InvitationFilter{Limit: 4, After: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, next.Invitations, 2)
		require.Equal(t, ids[0], next.Invitations[1].ID)
		require.Empty(t, next.NextCursor)
	})

	t.Run("by status", func(t *testing.T) {
		page, err := f.invites.List(ctx, InvitationFilter{Status: domain.InvitationUsed})
		require.NoError(t, err)
		require.Len(t, page.Invitations, 1)
		require.Equal(t, used.ID, page.Invitations[0].ID)

		f.clock.Advance(2 * time.Hour)
		page, err = f.invites.List(ctx, InvitationFilter{Status: domain.InvitationExpired})
		require.NoError(t, err)
		require.Len(t, page.Invitations, 5)

		page, err = f.invites.List(ctx, InvitationFilter{Status: domain.InvitationPending})
		require.NoError(t, err)
		require.Empty(t, page.Invitations)
	})

	t.Run("by email", func(t *testing.T) {
		page, err := f.invites.List(ctx, InvitationFilter{Email: "USED@x.com"})
		require.NoError(t, err)
		require.Len(t, page.Invitations, 1)
	})
}
