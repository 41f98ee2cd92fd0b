// Package service holds the auth flow orchestrator: signup, login, refresh
// rotation, logout and the two one-time token flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/selenly/selenly-api/internal/model"
	"github.com/selenly/selenly-api/internal/repository"
	"github.com/selenly/selenly-api/internal/utils"
)

// maxMintAttempts bounds retries after a token string collided with a
// stored one.
const maxMintAttempts = 3

// MailNotifier delivers freshly issued one-time tokens to their owner.
// Delivery is best effort; failures are logged and never reach the client.
type MailNotifier interface {
	NotifyOneTimeToken(ctx context.Context, kind model.OneTimeKind, email, token string, expiresAt time.Time) error
}

// Options configures an AuthService.
type Options struct {
	BcryptCost int
	ResetTTL   time.Duration
	VerifyTTL  time.Duration

	Now      func() time.Time // defaults to time.Now
	Logger   *slog.Logger     // defaults to slog.Default()
	Notifier MailNotifier     // optional

	// NewOneTimeToken generates reset and verification tokens. Defaults to
	// utils.NewOneTimeToken.
	NewOneTimeToken func() (string, error)
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService orchestrates the credential verifier, token codec, one-time
// token generator and token store. It keeps no mutable state of its own;
// all coordination goes through store transactions.
type AuthService struct {
	store *repository.Store
	codec *utils.TokenCodec
	opts  Options
	log   *slog.Logger

	// bcrypt digest compared against when the email is unknown, so both
	// login failure paths cost the same.
	dummyHash string
}

// NewAuthService wires the orchestrator.
func NewAuthService(store *repository.Store, codec *utils.TokenCodec, opts Options) (*AuthService, error) {
	if opts.ResetTTL <= 0 || opts.VerifyTTL <= 0 {
		return nil, errors.New("auth service: one-time token TTLs must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewOneTimeToken == nil {
		opts.NewOneTimeToken = utils.NewOneTimeToken
	}
	dummy, err := utils.HashPassword("selenly-timing-equalizer", opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	return &AuthService{
		store:     store,
		codec:     codec,
		opts:      opts,
		log:       opts.Logger,
		dummyHash: dummy,
	}, nil
}

func (s *AuthService) now() time.Time { return s.opts.Now().UTC() }

// Signup creates an active, unverified, non-admin user. The email is used
// exactly as given.
func (s *AuthService) Signup(ctx context.Context, email, password string) (model.User, error) {
	_, err := s.store.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return model.User{}, ErrEmailTaken
	case !errors.Is(err, repository.ErrNotFound):
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.Users.Create(ctx, email, hash, s.now())
	if errors.Is(err, repository.ErrEmailExists) {
		// lost a race with a concurrent signup
		return model.User{}, ErrEmailTaken
	}
	if err != nil {
		return model.User{}, err
	}
	s.log.InfoContext(ctx, "user signed up", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown email,
// wrong password and inactive account are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := s.store.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(s.dummyHash, password)
		s.log.WarnContext(ctx, "login rejected", "reason", "unknown email")
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	if !utils.VerifyPassword(u.HashedPassword, password) {
		if utils.IsMalformedHash(u.HashedPassword) {
			s.log.ErrorContext(ctx, "stored password digest is malformed", "user_id", u.ID)
		}
		s.log.WarnContext(ctx, "login rejected", "reason", "wrong password", "user_id", u.ID)
		return TokenPair{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.log.WarnContext(ctx, "login rejected", "reason", "inactive", "user_id", u.ID)
		return TokenPair{}, ErrInvalidCredentials
	}

	return s.mintPair(ctx, u.ID, func(rt *model.RefreshToken) error {
		return s.store.Tokens.StoreRefresh(ctx, rt)
	})
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked and its successor stored in one transaction, so of several
// concurrent exchanges of the same token exactly one succeeds.
func (s *AuthService) Refresh(ctx context.Context, token string) (TokenPair, error) {
	sub, err := s.codec.Decode(token, utils.RefreshKind)
	if err != nil {
		s.log.WarnContext(ctx, "refresh rejected", "reason", err)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	rec, err := s.store.Tokens.FindRefresh(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WarnContext(ctx, "refresh rejected", "reason", "unknown token", "user_id", sub)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrExpiredOrRevoked, ErrTokenRevoked)
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rec.UserID != sub {
		s.log.ErrorContext(ctx, "refresh token subject mismatch", "token_id", rec.ID, "user_id", rec.UserID, "sub", sub)
		return TokenPair{}, ErrInvalidToken
	}
	if rec.Revoked {
		s.log.WarnContext(ctx, "refresh rejected", "reason", "revoked", "token_id", rec.ID, "user_id", sub)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrExpiredOrRevoked, ErrTokenRevoked)
	}
	if !rec.Active(s.now()) {
		s.log.WarnContext(ctx, "refresh rejected", "reason", "expired", "token_id", rec.ID, "user_id", sub)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrExpiredOrRevoked, utils.ErrTokenExpired)
	}

	pair, err := s.mintPair(ctx, sub, func(next *model.RefreshToken) error {
		return s.store.RotateRefresh(ctx, rec.ID, next)
	})
	if errors.Is(err, repository.ErrAlreadyConsumed) {
		s.log.WarnContext(ctx, "refresh rejected", "reason", "concurrent rotation", "token_id", rec.ID, "user_id", sub)
		return TokenPair{}, fmt.Errorf("%w: %w", ErrExpiredOrRevoked, ErrTokenRevoked)
	}
	return pair, err
}

// Logout revokes the presented refresh token. Unknown and already revoked
// tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	rec, err := s.store.Tokens.FindRefresh(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if err := s.store.Tokens.RevokeRefresh(ctx, rec.ID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token for email. It returns "" and no
// error when the email is unknown.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.requestOneTime(ctx, model.PasswordReset, email, s.opts.ResetTTL)
}

// ResetPassword consumes a reset token and replaces the owner's password.
// Other outstanding reset tokens of the user stay valid.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	rec, err := s.usableOneTime(ctx, model.PasswordReset, token)
	if err != nil {
		return err
	}
	// hash before opening the transaction; bcrypt is slow
	hash, err := utils.HashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.store.ConsumeOneTime(ctx, rec, func(ctx context.Context, users *repository.UserRepo) error {
		return users.UpdatePasswordHash(ctx, rec.UserID, hash)
	})
	if err != nil {
		return s.consumeFailed(ctx, rec, err)
	}
	s.log.InfoContext(ctx, "password reset", "user_id", rec.UserID)
	return nil
}

// RequestVerification issues an email verification token for email. It
// returns "" and no error when the email is unknown.
func (s *AuthService) RequestVerification(ctx context.Context, email string) (string, error) {
	return s.requestOneTime(ctx, model.EmailVerification, email, s.opts.VerifyTTL)
}

// VerifyEmail consumes a verification token and marks the owner verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	rec, err := s.usableOneTime(ctx, model.EmailVerification, token)
	if err != nil {
		return err
	}
	err = s.store.ConsumeOneTime(ctx, rec, func(ctx context.Context, users *repository.UserRepo) error {
		return users.SetEmailVerified(ctx, rec.UserID)
	})
	if err != nil {
		return s.consumeFailed(ctx, rec, err)
	}
	s.log.InfoContext(ctx, "email verified", "user_id", rec.UserID)
	return nil
}

// CurrentUser loads the user an access token was issued to.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrUserNotFound)
	}
	return u, err
}

// RevokeSessions revokes every refresh token and unused one-time token of
// the user. It is never called implicitly.
func (s *AuthService) RevokeSessions(ctx context.Context, userID uint64) (int64, error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	n, err := s.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.InfoContext(ctx, "sessions revoked", "user_id", userID, "refresh_tokens", n)
	return n, nil
}

// mintPair issues an access/refresh pair for userID and hands the refresh
// record to persist. A token string collision is retried with fresh tokens.
func (s *AuthService) mintPair(ctx context.Context, userID uint64, persist func(*model.RefreshToken) error) (TokenPair, error) {
	for attempt := 1; ; attempt++ {
		access, err := s.codec.IssueAccess(userID)
		if err != nil {
			return TokenPair{}, err
		}
		refresh, err := s.codec.IssueRefresh(userID)
		if err != nil {
			return TokenPair{}, err
		}

		rec := model.RefreshToken{
			UserID:    userID,
			Token:     refresh.Token,
			ExpiresAt: refresh.Exp,
			CreatedAt: s.now(),
		}
		err = persist(&rec)
		if errors.Is(err, repository.ErrDuplicateToken) && attempt < maxMintAttempts {
			s.log.ErrorContext(ctx, "refresh token collision, reissuing", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
		}
		return TokenPair{
			AccessToken:      access.Token,
			AccessExpiresAt:  access.Exp,
			RefreshToken:     refresh.Token,
			RefreshExpiresAt: refresh.Exp,
		}, nil
	}
}

func (s *AuthService) requestOneTime(ctx context.Context, kind model.OneTimeKind, email string, ttl time.Duration) (string, error) {
	u, err := s.store.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.InfoContext(ctx, "one-time token not issued", "kind", kind, "reason", "unknown email")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	now := s.now()
	var rec model.OneTimeToken
	for attempt := 1; ; attempt++ {
		tok, err := s.opts.NewOneTimeToken()
		if err != nil {
			return "", fmt.Errorf("generate %s token: %w", kind, err)
		}
		rec = model.OneTimeToken{
			Kind:      kind,
			UserID:    u.ID,
			Token:     tok,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		err = s.store.Tokens.StoreOneTime(ctx, &rec)
		if errors.Is(err, repository.ErrDuplicateToken) && attempt < maxMintAttempts {
			s.log.ErrorContext(ctx, "one-time token collision, regenerating", "kind", kind, "attempt", attempt)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store %s token: %w", kind, err)
		}
		break
	}

	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.NotifyOneTimeToken(ctx, kind, u.Email, rec.Token, rec.ExpiresAt); err != nil {
			s.log.ErrorContext(ctx, "one-time token mail not queued", "kind", kind, "user_id", u.ID, "err", err)
		}
	}
	s.log.InfoContext(ctx, "one-time token issued", "kind", kind, "user_id", u.ID)
	return rec.Token, nil
}

// usableOneTime loads a one-time token and checks it can still be consumed.
func (s *AuthService) usableOneTime(ctx context.Context, kind model.OneTimeKind, token string) (model.OneTimeToken, error) {
	rec, err := s.store.Tokens.FindOneTime(ctx, kind, token)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WarnContext(ctx, "one-time token rejected", "kind", kind, "reason", "unknown")
		return model.OneTimeToken{}, fmt.Errorf("%w: %w", ErrOneTimeTokenInvalid, repository.ErrNotFound)
	}
	if err != nil {
		return model.OneTimeToken{}, fmt.Errorf("lookup %s token: %w", kind, err)
	}
	if rec.Used {
		s.log.WarnContext(ctx, "one-time token rejected", "kind", kind, "reason", "used", "user_id", rec.UserID)
		return model.OneTimeToken{}, fmt.Errorf("%w: %w", ErrOneTimeTokenInvalid, ErrTokenUsed)
	}
	if !rec.Usable(s.now()) {
		s.log.WarnContext(ctx, "one-time token rejected", "kind", kind, "reason", "expired", "user_id", rec.UserID)
		return model.OneTimeToken{}, fmt.Errorf("%w: %w", ErrOneTimeTokenInvalid, utils.ErrTokenExpired)
	}
	return rec, nil
}

func (s *AuthService) consumeFailed(ctx context.Context, rec model.OneTimeToken, err error) error {
	switch {
	case errors.Is(err, repository.ErrAlreadyConsumed):
		s.log.WarnContext(ctx, "one-time token rejected", "kind", rec.Kind, "reason", "consumed concurrently", "user_id", rec.UserID)
		return fmt.Errorf("%w: %w", ErrOneTimeTokenInvalid, ErrTokenUsed)
	case errors.Is(err, repository.ErrNotFound):
		// owner row is gone
		return fmt.Errorf("%w: %w", ErrOneTimeTokenInvalid, ErrUserNotFound)
	}
	return fmt.Errorf("consume %s token: %w", rec.Kind, err)
}
