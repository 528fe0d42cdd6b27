package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func (f *fixture) verify(t *testing.T, s Session) jwtx.SessionClaims {
	t.Helper()
	claims, err := f.signer.Verify(s.Token)
	require.NoError(t, err)
	require.Equal(t, s.Stage, claims.Stage)
	return claims
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

func TestLoginPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.localUser(t, "carol@x.com", "carol-password", domain.RoleEditor)

	s, err := f.auth.LoginPassword(ctx, "Carol@x.com", "carol-password", "")
	require.NoError(t, err)
	require.Equal(t, jwtx.StageFull, s.Stage)
	require.Equal(t, epoch.Add(24*time.Hour), s.ExpiresAt)

	claims := f.verify(t, s)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, "editor", claims.Role)
	require.True(t, claims.HasAMR(jwtx.AMRPassword))

	_, err = f.auth.LoginPassword(ctx, "carol@x.com", "wrong-password", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.LoginPassword(ctx, "nobody@x.com", "carol-password", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginPasswordFederatedOnlyAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.invite(t, "bob@x.com", domain.RoleMember, 0)
	_, err := f.auth.LoginFederated(ctx, federated("bob@x.com", "google", "g"))
	require.NoError(t, err)

	_, err = f.auth.LoginPassword(ctx, "bob@x.com", "anything-at-all", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.auth.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "short"})
		require.ErrorIs(t, err, ErrInvalidRegistration)
	})

	t.Run("closed without invitation", func(t *testing.T) {
		_, err := f.auth.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "long enough password"})
		requireRejected(t, err, domain.ReasonRegistrationClosed)
	})

	t.Run("with invitation", func(t *testing.T) {
		_, token := f.invite(t, "a@x.com", domain.RoleEditor, time.Hour)
		s, err := f.auth.Register(ctx, RegisterRequest{
			Email:           "a@x.com",
			Password:        "long enough password",
			DisplayName:     "Alice",
			InvitationToken: token,
		})
		require.NoError(t, err)
		require.True(t, s.Resolution.IsNewUser)
		require.Equal(t, "Alice", s.Resolution.User.DisplayName)
		require.Equal(t, "editor", f.verify(t, s).Role)

		again, err := f.auth.LoginPassword(ctx, "a@x.com", "long enough password", "")
		require.NoError(t, err)
		require.Equal(t, s.Resolution.User.ID, again.Resolution.User.ID)
	})

	t.Run("open registration", func(t *testing.T) {
		f.updateSettings(t, func(s *domain.SecuritySettings) {
			s.InviteOnlyMode = false
			s.OpenRegistrationAllowed = true
		})
		s, err := f.auth.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "long enough password"})
		require.NoError(t, err)
		require.Equal(t, domain.RoleMember, s.Resolution.Role)

		_, err = f.auth.Register(ctx, RegisterRequest{Email: "b@x.com", Password: "another password"})
		require.ErrorIs(t, err, ErrAlreadyRegistered)
	})
}

func TestLoginRequiringSecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.localUser(t, "admin@x.com", "admin-password", domain.RoleAdmin)
	f.updateSettings(t, func(s *domain.SecuritySettings) { s.Require2FAAdminsOnly = true })

	// First login: a second factor is required but none is enrolled.
	s, err := f.auth.LoginPassword(ctx, "admin@x.com", "admin-password", "")
	require.NoError(t, err)
	require.Equal(t, jwtx.StageMFAEnroll, s.Stage)
	require.Equal(t, epoch.Add(EnrollSessionTTL), s.ExpiresAt)
	partial := f.verify(t, s)

	enrollment, err := f.mfa.EnrollTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.Contains(t, enrollment.URL, "otpauth://totp/")

	_, err = f.auth.CompleteMFA(ctx, partial, "000000")
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	full, err := f.auth.CompleteMFA(ctx, partial, f.code(t, enrollment.Secret))
	require.NoError(t, err)
	require.Equal(t, jwtx.StageFull, full.Stage)
	claims := f.verify(t, full)
	require.True(t, claims.HasAMR(jwtx.AMRPassword))
	require.True(t, claims.HasAMR(jwtx.AMRMFA))

	// Later logins are challenged.
	f.clock.Advance(time.Minute)
	s, err = f.auth.LoginPassword(ctx, "admin@x.com", "admin-password", "")
	require.NoError(t, err)
	require.Equal(t, jwtx.StageMFAChallenge, s.Stage)

	full, err = f.auth.CompleteMFA(ctx, f.verify(t, s), f.code(t, enrollment.Secret))
	require.NoError(t, err)
	require.Equal(t, jwtx.StageFull, full.Stage)

	// Or pass the code up front.
	s, err = f.auth.LoginPassword(ctx, "admin@x.com", "admin-password", f.code(t, enrollment.Secret))
	require.NoError(t, err)
	require.Equal(t, jwtx.StageFull, s.Stage)

	_, err = f.auth.LoginPassword(ctx, "admin@x.com", "admin-password", "123456")
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	_, err = f.auth.CompleteMFA(ctx, f.verify(t, s), f.code(t, enrollment.Secret))
	require.ErrorIs(t, err, ErrWrongSessionStage)
}

func TestFederatedLoginSessionTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.invite(t, "bob@x.com", domain.RoleMember, 0)
	f.updateSettings(t, func(s *domain.SecuritySettings) { s.SessionTimeoutSeconds = 900 })

	s, err := f.auth.LoginFederated(ctx, federated("bob@x.com", "discord", "d1"))
	require.NoError(t, err)
	require.Equal(t, epoch.Add(15*time.Minute), s.ExpiresAt)
	require.True(t, f.verify(t, s).HasAMR(jwtx.AMRFederated))

	f.clock.Advance(16 * time.Minute)
	_, err = f.signer.Verify(s.Token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}
