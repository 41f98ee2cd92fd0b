package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/model"
)

const userColumns = "id,email,hashed_password,is_active,is_email_verified,is_admin,created_at"

// UserRepo is the user-record store consumed by the auth service.
type UserRepo struct{ DB database.DBTX }

func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{DB: db} }

// Create inserts an active, unverified, non-admin user. Email is stored as
// given; callers decide on normalization.
func (r *UserRepo) Create(ctx context.Context, email, hashedPassword string, now time.Time) (model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, hashed_password, is_active, is_email_verified, is_admin, created_at) VALUES (?,?,1,0,0,?)",
		email, hashedPassword, now)
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:             uint64(id),
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       true,
		CreatedAt:      now,
	}, nil
}

// GetByEmail fetches a user by exact email match.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdatePasswordHash overwrites the stored digest.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uint64, hashedPassword string) error {
	return r.updateOne(ctx, "UPDATE users SET hashed_password=? WHERE id=?", hashedPassword, id)
}

// SetEmailVerified flips is_email_verified on.
func (r *UserRepo) SetEmailVerified(ctx context.Context, id uint64) error {
	return r.updateOne(ctx, "UPDATE users SET is_email_verified=1 WHERE id=?", id)
}

// SetAdmin grants or removes the admin flag.
func (r *UserRepo) SetAdmin(ctx context.Context, id uint64, admin bool) error {
	return r.updateOne(ctx, "UPDATE users SET is_admin=? WHERE id=?", admin, id)
}

// IsAdmin is the predicate used by the admin gate.
func (r *UserRepo) IsAdmin(ctx context.Context, id uint64) (bool, error) {
	var admin bool
	err := r.DB.QueryRowContext(ctx, "SELECT is_admin FROM users WHERE id=? LIMIT 1", id).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return admin, err
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.IsEmailVerified, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// updateOne runs a single-row update; a missing row is ErrNotFound. MySQL
// reports zero affected rows when the value is unchanged, so existence is
// checked separately before giving up.
func (r *UserRepo) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	id := args[len(args)-1]
	var one int
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
