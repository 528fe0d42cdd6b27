package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/audit"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/metrics"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/lockx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// errLostRace aborts the registration transaction when a concurrent request
// created the principal or consumed the invitation first.
var errLostRace = errors.New("lost registration race")

// Resolver decides whether an asserted identity may sign in, linking it to an
// existing principal or creating one from an invitation.
type Resolver struct {
	Store    store.Store
	Settings SettingsSource
	Locks    *lockx.KeyedMutex
	Audit    audit.Sink
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// resolveTrace accumulates what the audit record needs.
type resolveTrace struct {
	assertion    domain.IdentityAssertion
	invitationID string
	candidates   []string
}

// Resolve takes one settings snapshot and resolves a against it.
func (r *Resolver) Resolve(ctx context.Context, a domain.IdentityAssertion) (domain.Resolution, error) {
	snap, err := r.Settings.Current(ctx)
	if err != nil {
		r.Metrics.Resolution("error", "")
		return domain.Resolution{}, unavailable(err)
	}
	return r.ResolveWithSettings(ctx, a, snap)
}

// ResolveWithSettings resolves a against an explicit snapshot. Errors are a
// *domain.Rejection, domain.ErrInvalidAssertion, ErrAlreadyRegistered or
// ErrUnavailable.
func (r *Resolver) ResolveWithSettings(ctx context.Context, a domain.IdentityAssertion, snap domain.SecuritySettings) (domain.Resolution, error) {
	a = a.Normalized()
	if err := a.Validate(); err != nil {
		return domain.Resolution{}, err
	}

	unlock, err := r.lock(ctx, a.Email)
	if err != nil {
		return domain.Resolution{}, err
	}
	defer unlock()

	tr := &resolveTrace{assertion: a}
	now := nowFrom(r.Now)

	res, err := r.resolve(ctx, tr, a, snap, now)
	if err != nil {
		r.report(ctx, tr, domain.Resolution{}, err)
		return domain.Resolution{}, err
	}

	res.Requires2FA = snap.Is2FARequired(res.Role)
	res.SessionTTL = snap.SessionTimeout()
	r.report(ctx, tr, res, nil)
	return res, nil
}

func (r *Resolver) lock(ctx context.Context, email string) (func(), error) {
	if r.Locks == nil {
		return func() {}, nil
	}
	return r.Locks.Lock(ctx, email)
}

func (r *Resolver) resolve(ctx context.Context, tr *resolveTrace, a domain.IdentityAssertion, snap domain.SecuritySettings, now time.Time) (domain.Resolution, error) {
	u, err := r.Store.Users().GetUserByEmail(ctx, a.Email)
	switch {
	case err == nil:
		return r.linkExisting(ctx, a, u, now)
	case errors.Is(err, store.ErrNotFound):
		return r.register(ctx, tr, a, snap, now)
	default:
		return domain.Resolution{}, unavailable(err)
	}
}

// linkExisting signs in a known principal. The first federated login claims
// the account; later providers never overwrite the claim.
func (r *Resolver) linkExisting(ctx context.Context, a domain.IdentityAssertion, u domain.User, now time.Time) (domain.Resolution, error) {
	// A registration for a known email must never act as a login.
	if a.PasswordHash != "" {
		if a.SelfRegister {
			return domain.Resolution{}, ErrAlreadyRegistered
		}
		return domain.Resolution{}, domain.Reject(domain.ReasonInvitationAlreadyUsed)
	}

	claimed := false
	if a.IsFederated() && !u.IsFederated {
		ok, err := r.Store.Users().ClaimFederatedIdentity(ctx, u.ID, *a.Federated, a.AvatarURL, now)
		if err != nil {
			return domain.Resolution{}, unavailable(err)
		}
		claimed = ok

		// Claimed here or by a concurrent login; either way reload.
		if u, err = r.Store.Users().GetUserByID(ctx, u.ID); err != nil {
			return domain.Resolution{}, unavailable(err)
		}
	}

	role, err := primaryRole(ctx, r.Store.Roles(), u.ID)
	if err != nil {
		return domain.Resolution{}, err
	}

	return domain.Resolution{
		User:     u,
		Role:     role,
		Decision: domain.DecisionLinkExisting,
		Claimed:  claimed,
	}, nil
}

func (r *Resolver) register(ctx context.Context, tr *resolveTrace, a domain.IdentityAssertion, snap domain.SecuritySettings, now time.Time) (domain.Resolution, error) {
	if !a.IsFederated() && a.PasswordHash == "" {
		// A password login for an unknown email never reaches here through
		// PasswordVerifier; anything else has nothing to create from.
		return domain.Resolution{}, domain.Reject(domain.ReasonNoValidInvitation)
	}

	if a.SelfRegister && a.InvitationToken == "" && snap.SelfRegistrationOpen() {
		return r.createOpen(ctx, a, now)
	}

	inv, rej, err := r.findInvitation(ctx, tr, a, now)
	if err != nil {
		return domain.Resolution{}, err
	}
	if rej != nil {
		// Only a tokenless local sign up is told registration is closed.
		// Federated strangers and unknown tokens stay NoValidInvitation.
		if a.SelfRegister && a.InvitationToken == "" && rej.Reason == domain.ReasonNoValidInvitation {
			return domain.Resolution{}, domain.Reject(domain.ReasonRegistrationClosed)
		}
		return domain.Resolution{}, rej
	}

	return r.createFromInvitation(ctx, tr, a, inv, now)
}

// findInvitation looks up the invitation authorising a new principal. A
// supplied token is authoritative; otherwise the newest valid invitation for
// the email is used.
func (r *Resolver) findInvitation(ctx context.Context, tr *resolveTrace, a domain.IdentityAssertion, now time.Time) (domain.Invitation, *domain.Rejection, error) {
	invites := r.Store.Invites()

	if a.InvitationToken != "" {
		inv, err := invites.GetInviteByTokenHash(ctx, cryptox.FingerprintToken(a.InvitationToken))
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, domain.Reject(domain.ReasonNoValidInvitation), nil
		}
		if err != nil {
			return domain.Invitation{}, nil, unavailable(err)
		}
		tr.candidates = []string{inv.ID}

		switch {
		case inv.Consumed():
			return domain.Invitation{}, domain.Reject(domain.ReasonInvitationAlreadyUsed), nil
		case inv.ExpiredAt(now):
			return domain.Invitation{}, domain.Reject(domain.ReasonInvitationExpired), nil
		case !inv.BoundTo(a.Email):
			return domain.Invitation{}, domain.Reject(domain.ReasonNoValidInvitation), nil
		}
		return inv, nil, nil
	}

	inv, err := invites.GetValidInviteByEmail(ctx, a.Email, now)
	if err == nil {
		tr.candidates = []string{inv.ID}
		return inv, nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Invitation{}, nil, unavailable(err)
	}

	// Nothing valid. Look at what exists so the log and the reason are
	// useful: a consumed invitation means someone got here first.
	all, err := invites.ListInvitesByEmail(ctx, a.Email)
	if err != nil {
		return domain.Invitation{}, nil, unavailable(err)
	}
	reason := domain.ReasonNoValidInvitation
	for _, c := range all {
		tr.candidates = append(tr.candidates, c.ID)
		if c.Consumed() {
			reason = domain.ReasonInvitationAlreadyUsed
		}
	}
	return domain.Invitation{}, domain.Reject(reason), nil
}

func newPrincipal(a domain.IdentityAssertion, now time.Time) (domain.User, error) {
	id := idx.NewAt(now).String()
	if a.IsFederated() {
		return domain.NewFederatedUser(id, a.Email, a.DisplayName, *a.Federated, a.AvatarURL, now)
	}
	return domain.NewLocalUser(id, a.Email, a.DisplayName, a.PasswordHash, now)
}

// createFromInvitation creates the principal, grants the invitation role and
// consumes the invitation as one transaction. The unique email and the
// used_at guard decide any race.
func (r *Resolver) createFromInvitation(ctx context.Context, tr *resolveTrace, a domain.IdentityAssertion, inv domain.Invitation, now time.Time) (domain.Resolution, error) {
	u, err := newPrincipal(a, now)
	if err != nil {
		return domain.Resolution{}, errors.Join(domain.ErrInvalidAssertion, err)
	}

	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return errLostRace
			}
			return err
		}
		if err := tx.Roles().AssignRole(ctx, u.ID, inv.Role, now); err != nil {
			return err
		}
		ok, err := tx.Invites().ConsumeInvite(ctx, inv.ID, u.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return domain.Resolution{}, domain.Reject(domain.ReasonInvitationAlreadyUsed)
	}
	if err != nil {
		return domain.Resolution{}, unavailable(err)
	}

	tr.invitationID = inv.ID
	r.Metrics.Invitation(metrics.InvitationConsumed)
	audit.Emit(ctx, r.Audit, domain.AuditEvent{
		Type:         domain.EventInvitationConsumed,
		Actor:        u.ID,
		Email:        u.Email,
		InvitationID: inv.ID,
		OccurredAt:   now,
	})

	return domain.Resolution{
		User:         u,
		Role:         inv.Role,
		IsNewUser:    true,
		Decision:     domain.DecisionCreateNew,
		InvitationID: inv.ID,
	}, nil
}

// createOpen registers a local principal without an invitation.
func (r *Resolver) createOpen(ctx context.Context, a domain.IdentityAssertion, now time.Time) (domain.Resolution, error) {
	u, err := newPrincipal(a, now)
	if err != nil {
		return domain.Resolution{}, errors.Join(domain.ErrInvalidAssertion, err)
	}

	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.Roles().AssignRole(ctx, u.ID, domain.DefaultRole, now)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.Resolution{}, ErrAlreadyRegistered
	}
	if err != nil {
		return domain.Resolution{}, unavailable(err)
	}

	return domain.Resolution{
		User:      u,
		Role:      domain.DefaultRole,
		IsNewUser: true,
		Decision:  domain.DecisionCreateNew,
	}, nil
}

// report logs, audits and counts a finished resolution. Input errors are
// not security events and only reach the debug log.
func (r *Resolver) report(ctx context.Context, tr *resolveTrace, res domain.Resolution, err error) {
	log := slogx.FromContext(ctx)
	a := tr.assertion

	provider := ""
	if a.Federated != nil {
		provider = a.Federated.Provider
	}

	if err == nil {
		log.Info("identity resolved",
			slog.String("user_id", res.User.ID),
			slog.String("email", a.Email),
			slog.String("decision", string(res.Decision)),
			slog.String("role", string(res.Role)),
			slog.Bool("new_user", res.IsNewUser),
			slog.Bool("claimed", res.Claimed),
			slog.String("invitation_id", tr.invitationID),
			slog.String("provider", provider),
		)
		audit.Emit(ctx, r.Audit, domain.AuditEvent{
			Type:         domain.EventIdentityResolved,
			Actor:        res.User.ID,
			Email:        a.Email,
			Decision:     res.Decision,
			InvitationID: tr.invitationID,
			Provider:     provider,
		})
		r.Metrics.Resolution(string(res.Decision), "")
		return
	}

	if rej, ok := domain.AsRejection(err); ok {
		log.Warn("identity rejected",
			slog.String("email", a.Email),
			slog.String("reason", string(rej.Reason)),
			slog.Any("candidates", tr.candidates),
			slog.String("provider", provider),
		)
		audit.Emit(ctx, r.Audit, domain.AuditEvent{
			Type:       domain.EventIdentityRejected,
			Email:      a.Email,
			Decision:   domain.DecisionReject,
			Reason:     rej.Reason,
			Candidates: tr.candidates,
			Provider:   provider,
		})
		r.Metrics.Resolution(string(domain.DecisionReject), string(rej.Reason))
		return
	}

	if errors.Is(err, ErrUnavailable) {
		log.Error("identity resolution failed", slog.String("email", a.Email), slog.Any("error", err))
		r.Metrics.Resolution("error", "")
		return
	}

	log.Debug("identity resolution refused input", slog.String("email", a.Email), slog.Any("error", err))
}

// ReportProviderFailure records a federated login that failed before an
// assertion existed, so it shows up alongside resolver decisions.
func (r *Resolver) ReportProviderFailure(ctx context.Context, provider string, rej *domain.Rejection) {
	slogx.FromContext(ctx).Warn("federated login failed",
		slog.String("provider", provider),
		slog.String("kind", rej.ProviderKind),
	)
	audit.Emit(ctx, r.Audit, domain.AuditEvent{
		Type:     domain.EventIdentityRejected,
		Decision: domain.DecisionReject,
		Reason:   rej.Reason,
		Provider: provider,
	})
	r.Metrics.Resolution(string(domain.DecisionReject), string(rej.Reason))
}
