package postgres

import (
	"context"
	"database/sql"
	"fmt"
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
		expiresAt, usedAt        sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.TokenHash, &email, &role, &createdBy, &expiresAt, &usedAt, &usedBy, &inv.CreatedAt)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	inv.Email = fromNullString(email)
	inv.Role = domain.Role(role)
	inv.CreatedBy = fromNullString(createdBy)
	inv.ExpiresAt = fromNullTime(expiresAt)
	inv.UsedAt = fromNullTime(usedAt)
	inv.UsedBy = fromNullString(usedBy)
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

func scanInvites(rows *sql.Rows, err error) ([]domain.Invitation, error) {
	if err != nil {
		return nil, err
	}
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.TokenHash, toNullString(inv.Email), string(inv.Role), toNullString(inv.CreatedBy),
		toNullTime(inv.ExpiresAt), toNullTime(inv.UsedAt), toNullString(inv.UsedBy), inv.CreatedAt.UTC(),
	)
	return mapWriteErr(err)
}

func (r *invitesRepo) GetInviteByID(ctx context.Context, id string) (domain.Invitation, error) {
	return scanInvite(r.q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE id = $1`, id))
}

func (r *invitesRepo) GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	return scanInvite(r.q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invitations WHERE token_hash = $1`, hash))
}

func (r *invitesRepo) GetValidInviteByEmail(ctx context.Context, email string, now time.Time) (domain.Invitation, error) {
	return scanInvite(r.q.QueryRowContext(ctx, `
		SELECT `+inviteColumns+`
		FROM invitations
		WHERE email = $1
		  AND used_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		email, now.UTC(),
	))
}

func (r *invitesRepo) ListInvitesByEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	return scanInvites(r.q.QueryContext(ctx, `
		SELECT `+inviteColumns+`
		FROM invitations
		WHERE email = $1
		ORDER BY created_at DESC, id DESC`,
		email,
	))
}

func (r *invitesRepo) ListInvites(ctx context.Context, f store.InviteFilter) ([]domain.Invitation, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Status {
	case domain.InvitationPending:
		where = append(where, `used_at IS NULL AND (expires_at IS NULL OR expires_at > `+arg(f.Now.UTC())+`)`)
	case domain.InvitationUsed:
		where = append(where, `used_at IS NOT NULL`)
	case domain.InvitationExpired:
		where = append(where, `used_at IS NULL AND expires_at <= `+arg(f.Now.UTC()))
	}
	if f.Email != "" {
		where = append(where, `email = `+arg(f.Email))
	}
	if f.After != "" {
		where = append(where, `id < `+arg(f.After))
	}

	query := `SELECT ` + inviteColumns + ` FROM invitations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id DESC LIMIT ` + arg(f.Limit)

	return scanInvites(r.q.QueryContext(ctx, query, args...))
}

func (r *invitesRepo) ConsumeInvite(ctx context.Context, id, usedBy string, now time.Time) (bool, error) {
	return affectedOne(r.q.ExecContext(ctx, `
		UPDATE invitations
		SET used_at = $1, used_by = $2
		WHERE id = $3 AND used_at IS NULL`,
		now.UTC(), usedBy, id,
	))
}

func (r *invitesRepo) DeleteUnusedInvite(ctx context.Context, id string) error {
	deleted, err := affectedOne(r.q.ExecContext(ctx,
		`DELETE FROM invitations WHERE id = $1 AND used_at IS NULL`, id))
	if err != nil || deleted {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}
