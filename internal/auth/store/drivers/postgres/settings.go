package postgres

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type settingsRepo struct {
	q queryer
}

func (r *settingsRepo) GetSecuritySettings(ctx context.Context) (domain.SecuritySettings, error) {
	var s domain.SecuritySettings
	err := r.q.QueryRowContext(ctx, `
		SELECT invite_only_mode, open_registration_allowed, require_2fa_all_users,
		       require_2fa_admins_only, session_timeout_seconds, updated_at
		FROM security_settings
		WHERE id = 1`,
	).Scan(
		&s.InviteOnlyMode, &s.OpenRegistrationAllowed, &s.Require2FAAllUsers,
		&s.Require2FAAdminsOnly, &s.SessionTimeoutSeconds, &s.UpdatedAt,
	)
	if err != nil {
		return domain.SecuritySettings{}, mapNotFound(err)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r *settingsRepo) UpdateSecuritySettings(ctx context.Context, s domain.SecuritySettings) error {
	return exactlyOne(r.q.ExecContext(ctx, `
		UPDATE security_settings
		SET invite_only_mode = $1,
		    open_registration_allowed = $2,
		    require_2fa_all_users = $3,
		    require_2fa_admins_only = $4,
		    session_timeout_seconds = $5,
		    updated_at = $6
		WHERE id = 1`,
		s.InviteOnlyMode, s.OpenRegistrationAllowed, s.Require2FAAllUsers,
		s.Require2FAAdminsOnly, s.SessionTimeoutSeconds, s.UpdatedAt.UTC(),
	))
}
