package repository

import (
	"context"
	"database/sql"

	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/model"
)

// Store bundles the repositories over one database and runs the multi-row
// auth transitions inside a single transaction.
type Store struct {
	DB     *sql.DB
	Users  *UserRepo
	Tokens *TokenRepo

	txOpts *sql.TxOptions
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{
		DB:     db,
		Users:  NewUserRepo(db),
		Tokens: NewTokenRepo(db),
		txOpts: database.TxOptions(driver),
	}
}

// InTx runs fn with repositories bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, users *UserRepo, tokens *TokenRepo) error) error {
	return database.WithTx(ctx, s.DB, s.txOpts, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, NewUserRepo(tx), NewTokenRepo(tx))
	})
}

// RotateRefresh revokes the presented token and inserts its successor as one
// unit. If another rotation already revoked oldID the whole transaction is
// rolled back and ErrAlreadyConsumed is returned, so a token never has two
// live successors.
func (s *Store) RotateRefresh(ctx context.Context, oldID uint64, next *model.RefreshToken) error {
	return s.InTx(ctx, func(ctx context.Context, _ *UserRepo, tokens *TokenRepo) error {
		if err := tokens.RevokeRefreshIfActive(ctx, oldID); err != nil {
			return err
		}
		return tokens.StoreRefresh(ctx, next)
	})
}

// ConsumeOneTime marks the token used and applies fn to the user table in the
// same transaction. Only one caller can consume a given token.
func (s *Store) ConsumeOneTime(ctx context.Context, t model.OneTimeToken, fn func(ctx context.Context, users *UserRepo) error) error {
	return s.InTx(ctx, func(ctx context.Context, users *UserRepo, tokens *TokenRepo) error {
		if err := tokens.MarkUsedIfUnused(ctx, t.Kind, t.ID); err != nil {
			return err
		}
		return fn(ctx, users)
	})
}

// RevokeAllForUser revokes every outstanding token of the user atomically.
func (s *Store) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(ctx context.Context, _ *UserRepo, tokens *TokenRepo) error {
		var err error
		n, err = tokens.RevokeAllForUser(ctx, userID)
		return err
	})
	return n, err
}
