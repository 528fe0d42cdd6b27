package sqlite

import (
	"context"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

type settingsRepo struct {
	q queryer
}

func (r *settingsRepo) GetSecuritySettings(ctx context.Context) (domain.SecuritySettings, error) {
	var (
		s         domain.SecuritySettings
		updatedAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT invite_only_mode, open_registration_allowed, require_2fa_all_users,
		       require_2fa_admins_only, session_timeout_seconds, updated_at
		FROM security_settings
		WHERE id = 1`,
	).Scan(
		&s.InviteOnlyMode, &s.OpenRegistrationAllowed, &s.Require2FAAllUsers,
		&s.Require2FAAdminsOnly, &s.SessionTimeoutSeconds, &updatedAt,
	)
	if err != nil {
		return domain.SecuritySettings{}, mapNotFound(err)
	}
	s.UpdatedAt = fromNanos(updatedAt)
	return s, nil
}

func (r *settingsRepo) UpdateSecuritySettings(ctx context.Context, s domain.SecuritySettings) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE security_settings
		SET invite_only_mode = ?,
		    open_registration_allowed = ?,
		    require_2fa_all_users = ?,
		    require_2fa_admins_only = ?,
		    session_timeout_seconds = ?,
		    updated_at = ?
		WHERE id = 1`,
		boolToInt(s.InviteOnlyMode), boolToInt(s.OpenRegistrationAllowed), boolToInt(s.Require2FAAllUsers),
		boolToInt(s.Require2FAAdminsOnly), s.SessionTimeoutSeconds, toNanos(s.UpdatedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
