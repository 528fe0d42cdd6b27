package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
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
		mfaEnabledAt                      sql.NullInt64
		createdAt, updatedAt              int64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &passwordHash, &provider, &federated,
		&u.IsFederated, &u.AvatarURL, &mfaSecret, &mfaEnabledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordHash = fromNullString(passwordHash)
	u.FederatedProvider = fromNullString(provider)
	u.FederatedID = fromNullString(federated)
	u.MFASecret = fromNullString(mfaSecret)
	u.MFAEnabledAt = fromNullNanos(mfaEnabledAt)
	u.CreatedAt = fromNanos(createdAt)
	u.UpdatedAt = fromNanos(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName,
		toNullString(u.PasswordHash), toNullString(u.FederatedProvider), toNullString(u.FederatedID),
		boolToInt(u.IsFederated), u.AvatarURL,
		toNullString(u.MFASecret), toNullNanos(u.MFAEnabledAt),
		toNanos(u.CreatedAt), toNanos(u.UpdatedAt),
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
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET federated_provider = ?,
		    federated_id = ?,
		    is_federated = 1,
		    avatar_url = CASE WHEN ? <> '' THEN ? ELSE avatar_url END,
		    updated_at = ?
		WHERE id = ? AND is_federated = 0`,
		fed.Provider, fed.ExternalID, avatarURL, avatarURL, toNanos(now), userID,
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

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return r.exec1(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toNanos(now), userID)
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID, secret string, now time.Time) error {
	return r.exec1(ctx, `UPDATE users SET mfa_secret = ?, mfa_enabled_at = NULL, updated_at = ? WHERE id = ?`,
		secret, toNanos(now), userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, now time.Time) error {
	return r.exec1(ctx, `
		UPDATE users SET mfa_enabled_at = ?, updated_at = ?
		WHERE id = ? AND mfa_secret IS NOT NULL`,
		toNanos(now), toNanos(now), userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string, now time.Time) error {
	return r.exec1(ctx, `UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = ? WHERE id = ?`,
		toNanos(now), userID)
}

// exec1 runs an update that must touch exactly one row.
func (r *usersRepo) exec1(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
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
