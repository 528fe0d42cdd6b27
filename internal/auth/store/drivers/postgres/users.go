package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

const userColumns = `id, email, display_name, password_hash, federated_provider, federated_id,
	is_federated, avatar_url, mfa_secret, mfa_enabled_at, created_at, updated_at`

type usersRepo struct {
	q queryer
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                                 domain.User
		passwordHash, provider, federated sql.NullString
		mfaSecret                         sql.NullString
		mfaEnabledAt                      sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &passwordHash, &provider, &federated,
		&u.IsFederated, &u.AvatarURL, &mfaSecret, &mfaEnabledAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordHash = fromNullString(passwordHash)
	u.FederatedProvider = fromNullString(provider)
	u.FederatedID = fromNullString(federated)
	u.MFASecret = fromNullString(mfaSecret)
	u.MFAEnabledAt = fromNullTime(mfaEnabledAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Email, u.DisplayName,
		toNullString(u.PasswordHash), toNullString(u.FederatedProvider), toNullString(u.FederatedID),
		u.IsFederated, u.AvatarURL, toNullString(u.MFASecret), toNullTime(u.MFAEnabledAt),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	return mapWriteErr(err)
}

func (r *usersRepo) ClaimFederatedIdentity(
	ctx context.Context,
	userID string,
	fed domain.FederatedIdentity,
	avatarURL string,
	now time.Time,
) (bool, error) {
	return affectedOne(r.q.ExecContext(ctx, `
		UPDATE users
		SET federated_provider = $1,
		    federated_id = $2,
		    is_federated = TRUE,
		    avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
		    updated_at = $4
		WHERE id = $5 AND NOT is_federated`,
		fed.Provider, fed.ExternalID, avatarURL, now.UTC(), userID,
	))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return exactlyOne(r.q.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, now.UTC(), userID))
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID, secret string, now time.Time) error {
	return exactlyOne(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_secret = $1, mfa_enabled_at = NULL, updated_at = $2 WHERE id = $3`,
		secret, now.UTC(), userID))
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, now time.Time) error {
	return exactlyOne(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_enabled_at = $1, updated_at = $1 WHERE id = $2 AND mfa_secret IS NOT NULL`,
		now.UTC(), userID))
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string, now time.Time) error {
	return exactlyOne(r.q.ExecContext(ctx,
		`UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = $1 WHERE id = $2`,
		now.UTC(), userID))
}
