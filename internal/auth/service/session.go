package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// Partial sessions only allow finishing the second factor.
const (
	ChallengeSessionTTL = 5 * time.Minute
	EnrollSessionTTL    = 15 * time.Minute

	MinPasswordLength = 10
)

var (
	ErrInvalidRegistration = errors.New("invalid registration request")
	ErrWrongSessionStage   = errors.New("session is not awaiting a second factor")
)

// Session is an issued session token and the resolution behind it.
type Session struct {
	Token      string
	Stage      jwtx.Stage
	ExpiresAt  time.Time
	Resolution domain.Resolution
}

type RegisterRequest struct {
	Email           string
	Password        string
	DisplayName     string
	InvitationToken string
}

func (r RegisterRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 256)),
		validation.Field(&r.DisplayName, validation.Length(0, 128)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	return nil
}

// Authenticator turns verified identities into sessions. It takes one
// settings snapshot per attempt and applies the second factor policy to the
// resolved role.
type Authenticator struct {
	Resolver  *Resolver
	Settings  SettingsSource
	Passwords *PasswordVerifier
	MFA       *MFAService
	Signer    *jwtx.HMAC
	Now       func() time.Time
}

// LoginPassword verifies credentials and resolves the principal. totpCode
// may be empty, in which case an MFA challenge session is returned when a
// second factor is enabled.
func (a *Authenticator) LoginPassword(ctx context.Context, email, password, totpCode string) (Session, error) {
	snap, err := a.Settings.Current(ctx)
	if err != nil {
		return Session{}, unavailable(err)
	}

	assertion, err := a.Passwords.VerifyPassword(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	res, err := a.Resolver.ResolveWithSettings(ctx, assertion, snap)
	if err != nil {
		return Session{}, err
	}
	return a.issue(ctx, res, jwtx.AMRPassword, totpCode)
}

// Register creates a local principal through open registration or an
// invitation and signs it in.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	if err := req.Validate(); err != nil {
		return Session{}, err
	}

	hash, err := a.Passwords.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	res, err := a.Resolver.Resolve(ctx, domain.IdentityAssertion{
		Email:           req.Email,
		DisplayName:     req.DisplayName,
		PasswordHash:    hash,
		InvitationToken: req.InvitationToken,
		SelfRegister:    req.InvitationToken == "",
	})
	if err != nil {
		return Session{}, err
	}
	return a.issue(ctx, res, jwtx.AMRPassword, "")
}

// LoginFederated resolves an assertion produced by the federation client.
func (a *Authenticator) LoginFederated(ctx context.Context, assertion domain.IdentityAssertion) (Session, error) {
	res, err := a.Resolver.Resolve(ctx, assertion)
	if err != nil {
		return Session{}, err
	}
	return a.issue(ctx, res, jwtx.AMRFederated, "")
}

// CompleteMFA upgrades a partial session with a TOTP code. An enrolment
// session confirms the pending secret; a challenge session verifies it.
func (a *Authenticator) CompleteMFA(ctx context.Context, partial jwtx.SessionClaims, code string) (Session, error) {
	switch partial.Stage {
	case jwtx.StageMFAEnroll:
		if err := a.MFA.ConfirmTOTP(ctx, partial.Subject, code); err != nil {
			return Session{}, err
		}
	case jwtx.StageMFAChallenge:
		if err := a.MFA.VerifyTOTP(ctx, partial.Subject, code); err != nil {
			return Session{}, err
		}
	default:
		return Session{}, ErrWrongSessionStage
	}

	snap, err := a.Settings.Current(ctx)
	if err != nil {
		return Session{}, unavailable(err)
	}
	u, err := getUser(ctx, a.Resolver.Store, partial.Subject)
	if err != nil {
		return Session{}, err
	}
	role, err := primaryRole(ctx, a.Resolver.Store.Roles(), u.ID)
	if err != nil {
		return Session{}, err
	}

	res := domain.Resolution{
		User:        u,
		Role:        role,
		Decision:    domain.DecisionLinkExisting,
		Requires2FA: snap.Is2FARequired(role),
		SessionTTL:  snap.SessionTimeout(),
	}
	amr := append(slices.Clone(partial.AMR), jwtx.AMROTP, jwtx.AMRMFA)
	return a.sign(ctx, res, jwtx.StageFull, amr, res.SessionTTL)
}

func (a *Authenticator) issue(ctx context.Context, res domain.Resolution, method, totpCode string) (Session, error) {
	amr := []string{method}
	u := res.User

	switch {
	case u.MFAEnabled() && totpCode != "":
		if err := a.MFA.verifyUser(u, totpCode); err != nil {
			return Session{}, err
		}
		return a.sign(ctx, res, jwtx.StageFull, append(amr, jwtx.AMROTP, jwtx.AMRMFA), res.SessionTTL)
	case u.MFAEnabled():
		return a.sign(ctx, res, jwtx.StageMFAChallenge, amr, ChallengeSessionTTL)
	case res.Requires2FA:
		return a.sign(ctx, res, jwtx.StageMFAEnroll, amr, EnrollSessionTTL)
	default:
		return a.sign(ctx, res, jwtx.StageFull, amr, res.SessionTTL)
	}
}

func (a *Authenticator) sign(ctx context.Context, res domain.Resolution, stage jwtx.Stage, amr []string, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTimeoutSeconds * time.Second
	}
	now := nowFrom(a.Now)
	claims := jwtx.NewSessionClaims(res.User.ID, res.User.Email, string(res.Role), stage, amr, ttl, a.Signer.Issuer(), now)

	token, err := a.Signer.Sign(claims)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	slogx.FromContext(ctx).Debug("session issued",
		slog.String("user_id", res.User.ID),
		slog.String("stage", string(stage)),
		slog.Duration("ttl", ttl),
	)
	return Session{Token: token, Stage: stage, ExpiresAt: now.Add(ttl), Resolution: res}, nil
}
