package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type rolesRepo struct {
	q queryer
}

func (r *rolesRepo) AssignRole(ctx context.Context, userID string, role domain.Role, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, assigned_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, role) DO NOTHING`,
		userID, string(role), toNanos(now),
	)
	return err
}

func (r *rolesRepo) HasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = ? AND role = ?)`,
		userID, string(role),
	).Scan(&exists)
	return exists, err
}

func (r *rolesRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = ? ORDER BY assigned_at, role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, domain.Role(role))
	}
	return roles, rows.Err()
}

func (r *rolesRepo) RevokeRole(ctx context.Context, userID string, role domain.Role) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role = ?`, userID, string(role))
	return err
}
