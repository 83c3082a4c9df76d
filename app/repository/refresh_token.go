package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
)

const refreshTokenSelectColumns = `id, user_id, token_hash, issued_at, expires_at, revoked_at, ip_address, user_agent`

type RefreshTokenRepository struct {
	db DBTX
}

func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.UserID,
		token.TokenHash,
		token.IssuedAt,
		token.ExpiresAt,
		token.IPAddress,
		token.UserAgent,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

// FindActiveByHashForUpdate locks and returns the active token with the given hash.
// Must run inside a transaction.
func (r *RefreshTokenRepository) FindActiveByHashForUpdate(ctx context.Context, tokenHash string, now time.Time) (*entity.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenSelectColumns + `
		FROM refresh_tokens WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ? FOR UPDATE
	`
	return r.findOne(ctx, query, tokenHash, now)
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenSelectColumns + `
		FROM refresh_tokens WHERE token_hash = ?
	`
	return r.findOne(ctx, query, tokenHash)
}

// Revoke sets revoked_at only if the token is not revoked yet and reports whether it did.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uint64, revokedAt time.Time) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, revokedAt, id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *RefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID uint64, revokedAt time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`
	result, err := r.db.ExecContext(ctx, query, revokedAt, userID, revokedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	token := &entity.RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.IPAddress,
		&token.UserAgent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}
