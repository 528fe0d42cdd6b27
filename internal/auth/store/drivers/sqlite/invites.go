package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

const inviteColumns = `id, token_hash, email, role, created_by, expires_at, used_at, used_by, created_at`

type invitesRepo struct {
	q queryer
}

func scanInvite(row rowScanner) (domain.Invitation, error) {
	var (
		inv                      domain.Invitation
		email, createdBy, usedBy sql.NullString
		role                     string
		expiresAt, usedAt        sql.NullInt64
		createdAt                int64
	)
	err := row.Scan(&inv.ID, &inv.TokenHash, &email, &role, &createdBy, &expiresAt, &usedAt, &usedBy, &createdAt)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	inv.Email = fromNullString(email)
	inv.Role = domain.Role(role)
	inv.CreatedBy = fromNullString(createdBy)
	inv.ExpiresAt = fromNullNanos(expiresAt)
	inv.UsedAt = fromNullNanos(usedAt)
	inv.UsedBy = fromNullString(usedBy)
	inv.CreatedAt = fromNanos(createdAt)
	return inv, nil
}

func scanInvites(rows *sql.Rows) ([]domain.Invitation, error) {
	defer rows.Close()
	var out []domain.Invitation
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invitesRepo) CreateInvite(ctx context.Context, inv domain.Invitation) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invitations (`+inviteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TokenHash, toNullString(inv.Email), string(inv.Role), toNullString(inv.CreatedBy),
		toNullNanos(inv.ExpiresAt), toNullNanos(inv.UsedAt), toNullString(inv.UsedBy), toNanos(inv.CreatedAt),
	)
	return mapWriteErr(err)
}

func (r *invitesRepo) GetInviteByID(ctx context.Context, id string) (domain.Invitation, error) {
	return scanInvite(r.q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE id = ?`, id))
}

func (r *invitesRepo) GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	return scanInvite(r.q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE token_hash = ?`, hash))
}

func (r *invitesRepo) GetValidInviteByEmail(ctx context.Context, email string, now time.Time) (domain.Invitation, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+inviteColumns+`
		FROM invitations
		WHERE email = ?
		  AND used_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		email, toNanos(now),
	)
	return scanInvite(row)
}

func (r *invitesRepo) ListInvitesByEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inviteColumns+`
		FROM invitations
		WHERE email = ?
		ORDER BY created_at DESC, id DESC`,
		email,
	)
	if err != nil {
		return nil, err
	}
	return scanInvites(rows)
}

func (r *invitesRepo) ListInvites(ctx context.Context, f store.InviteFilter) ([]domain.Invitation, error) {
	var (
		where []string
		args  []any
	)
	now := toNanos(f.Now)
	switch f.Status {
	case domain.InvitationPending:
		where = append(where, `used_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`)
		args = append(args, now)
	case domain.InvitationUsed:
		where = append(where, `used_at IS NOT NULL`)
	case domain.InvitationExpired:
		where = append(where, `used_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`)
		args = append(args, now)
	}
	if f.Email != "" {
		where = append(where, `email = ?`)
		args = append(args, f.Email)
	}
	if f.After != "" {
		where = append(where, `id < ?`)
		args = append(args, f.After)
	}

	query := `SELECT ` + inviteColumns + ` FROM invitations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanInvites(rows)
}

func (r *invitesRepo) ConsumeInvite(ctx context.Context, id, usedBy string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE invitations
		SET used_at = ?, used_by = ?
		WHERE id = ? AND used_at IS NULL`,
		toNanos(now), usedBy, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *invitesRepo) DeleteUnusedInvite(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM invitations WHERE id = ? AND used_at IS NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing deleted: either it never existed or it was consumed.
	var usedAt sql.NullInt64
	err = r.q.QueryRowContext(ctx, `SELECT used_at FROM invitations WHERE id = ?`, id).Scan(&usedAt)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}
