package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/metrics"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/lockx"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSink keeps every audit event in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingSink) Record(_ context.Context, ev domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) ofType(typ string) []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// recordingSender captures dispatched invitations.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Invitation
}

func (r *recordingSender) SendInvitation(_ context.Context, inv notify.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, inv)
	return nil
}

// clock is a settable time source shared by every service in a fixture.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *sqlite.Store
	clock    *clock
	audit    *recordingSink
	sender   *recordingSender
	notifier *notify.Async
	metrics  *metrics.Metrics

	settings  *SettingsService
	roles     *RoleService
	invites   *InvitationService
	resolver  *Resolver
	passwords *PasswordVerifier
	mfa       *MFAService
	auth      *Authenticator
	signer    *jwtx.HMAC
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "gatehouse.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	signer, err := jwtx.NewHMAC([]byte(strings.Repeat("k", 32)), "https://gatehouse.test")
	require.NoError(t, err)

	f := &fixture{
		store:   s,
		clock:   &clock{now: epoch},
		audit:   &recordingSink{},
		sender:  &recordingSender{},
		metrics: metrics.New(),
	}
	f.signer = signer.WithClock(f.clock.Now)
	f.notifier = notify.NewAsync(f.sender, time.Second)

	// Cheap argon2 parameters keep the suite fast.
	hasher := &cryptox.PasswordHasher{
		Pepper: []byte("test-pepper"),
		Params: cryptox.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
	}

	f.settings = &SettingsService{Store: s, Audit: f.audit, Now: f.clock.Now}
	f.roles = &RoleService{Store: s, Now: f.clock.Now}
	f.invites = &InvitationService{Store: s, Notifier: f.notifier, Audit: f.audit, Metrics: f.metrics, Now: f.clock.Now}
	f.resolver = &Resolver{Store: s, Settings: f.settings, Locks: lockx.New(), Audit: f.audit, Metrics: f.metrics, Now: f.clock.Now}
	f.passwords = &PasswordVerifier{Store: s, Hasher: hasher}
	f.mfa = &MFAService{Store: s, Issuer: "Gatehouse", Now: f.clock.Now}
	f.auth = &Authenticator{
		Resolver:  f.resolver,
		Settings:  f.settings,
		Passwords: f.passwords,
		MFA:       f.mfa,
		Signer:    signer,
		Now:       f.clock.Now,
	}
	return f
}

func (f *fixture) updateSettings(t *testing.T, mutate func(*domain.SecuritySettings)) domain.SecuritySettings {
	t.Helper()
	cur, err := f.settings.Current(context.Background())
	require.NoError(t, err)
	mutate(&cur)
	next, err := f.settings.Update(context.Background(), "admin-1", cur)
	require.NoError(t, err)
	return next
}

func (f *fixture) snapshot(t *testing.T) domain.SecuritySettings {
	t.Helper()
	cur, err := f.settings.Current(context.Background())
	require.NoError(t, err)
	return cur
}

// invite creates an invitation through the service. email may be empty.
func (f *fixture) invite(t *testing.T, email string, role domain.Role, ttl time.Duration) (domain.Invitation, string) {
	t.Helper()
	req := CreateInvitationRequest{Role: role, Email: email}
	if ttl > 0 {
		exp := f.clock.Now().Add(ttl)
		req.ExpiresAt = &exp
	}
	inv, token, err := f.invites.Create(context.Background(), req)
	require.NoError(t, err)
	return inv, token
}

// rawInvite inserts an invitation directly, bypassing expiry validation.
func (f *fixture) rawInvite(t *testing.T, email string, role domain.Role, createdAt time.Time, expiresAt *time.Time) (domain.Invitation, string) {
	t.Helper()
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	inv, err := domain.NewInvitation(domain.NewInvitationParams{
		ID:        idx.NewAt(createdAt).String(),
		TokenHash: cryptox.FingerprintToken(token),
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Invites().CreateInvite(context.Background(), inv))
	return inv, token
}

// localUser registers a password principal holding role.
func (f *fixture) localUser(t *testing.T, email, password string, role domain.Role) domain.User {
	t.Helper()
	ctx := context.Background()
	hash, err := f.passwords.HashPassword(password)
	require.NoError(t, err)
	u, err := domain.NewLocalUser(idx.New().String(), email, "", hash, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.Users().CreateUser(ctx, u))
	require.NoError(t, f.roles.Assign(ctx, u.ID, role))
	return u
}

func federated(email, provider, externalID string) domain.IdentityAssertion {
	return domain.IdentityAssertion{
		Email:     email,
		Federated: &domain.FederatedIdentity{Provider: provider, ExternalID: externalID},
	}
}

func requireRejected(t *testing.T, err error, reason domain.RejectionReason) {
	t.Helper()
	rej, ok := domain.AsRejection(err)
	require.Truef(t, ok, "expected a rejection, got %v", err)
	require.Equal(t, reason, rej.Reason)
	require.NotEmpty(t, rej.Message)
}

func userCount(t *testing.T, f *fixture) int {
	t.Helper()
	n, err := f.store.Users().CountUsers(context.Background())
	require.NoError(t, err)
	return n
}
