package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/model"
)

// TokenRepo persists refresh tokens and the two kinds of one-time tokens.
// It owns revocation and usage state; expiry is compared by callers.
type TokenRepo struct{ DB database.DBTX }

func NewTokenRepo(db database.DBTX) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token row and fills in its ID.
func (r *TokenRepo) StoreRefresh(ctx context.Context, t *model.RefreshToken) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at, revoked, created_at) VALUES (?,?,?,0,?)",
		t.UserID, t.Token, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// FindRefresh looks a refresh token up by its exact string.
func (r *TokenRepo) FindRefresh(ctx context.Context, token string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, revoked, created_at FROM refresh_tokens WHERE token=? LIMIT 1",
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

// RevokeRefresh marks a token as revoked. Revoking twice is a no-op.
func (r *TokenRepo) RevokeRefresh(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE id=? AND revoked=0", id)
	return err
}

// RevokeRefreshIfActive is the compare-and-swap half of rotation: it
// succeeds only for the caller that flips revoked from 0 to 1.
func (r *TokenRepo) RevokeRefreshIfActive(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE id=? AND revoked=0", id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return expectOne(res)
}

// RevokeAllForUser revokes all of the user's live refresh tokens and burns
// any unused one-time tokens. It returns the number of refresh tokens revoked.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE user_id=? AND revoked=0", userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	for _, kind := range []model.OneTimeKind{model.PasswordReset, model.EmailVerification} {
		table, err := oneTimeTable(kind)
		if err != nil {
			return 0, err
		}
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE "+table+" SET used=1 WHERE user_id=? AND used=0", userID); err != nil {
			return 0, fmt.Errorf("burn %s tokens: %w", kind, err)
		}
	}
	return n, nil
}

// StoreOneTime inserts a one-time token row of t.Kind and fills in its ID.
func (r *TokenRepo) StoreOneTime(ctx context.Context, t *model.OneTimeToken) error {
	table, err := oneTimeTable(t.Kind)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (user_id, token, expires_at, used, created_at) VALUES (?,?,?,0,?)",
		t.UserID, t.Token, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert %s token: %w", t.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// FindOneTime looks a one-time token up by kind and exact string.
func (r *TokenRepo) FindOneTime(ctx context.Context, kind model.OneTimeKind, token string) (model.OneTimeToken, error) {
	table, err := oneTimeTable(kind)
	if err != nil {
		return model.OneTimeToken{}, err
	}
	t := model.OneTimeToken{Kind: kind}
	err = r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, used, created_at FROM "+table+" WHERE token=? LIMIT 1",
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OneTimeToken{}, ErrNotFound
	}
	if err != nil {
		return model.OneTimeToken{}, fmt.Errorf("find %s token: %w", kind, err)
	}
	return t, nil
}

// MarkUsedIfUnused succeeds only for the caller that flips used from 0 to 1.
// A repeated call leaves the row used and reports ErrAlreadyConsumed.
func (r *TokenRepo) MarkUsedIfUnused(ctx context.Context, kind model.OneTimeKind, id uint64) error {
	table, err := oneTimeTable(kind)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, "UPDATE "+table+" SET used=1 WHERE id=? AND used=0", id)
	if err != nil {
		return fmt.Errorf("mark %s token used: %w", kind, err)
	}
	return expectOne(res)
}

func oneTimeTable(kind model.OneTimeKind) (string, error) {
	switch kind {
	case model.PasswordReset:
		return "password_reset_tokens", nil
	case model.EmailVerification:
		return "email_verification_tokens", nil
	}
	return "", fmt.Errorf("unknown one-time token kind %q", kind)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrAlreadyConsumed
	}
	return nil
}
