package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table. Rows are
// never deleted: rotation and logout only flip Revoked.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	Token     string    // refresh_tokens.token, the signed JWT exactly as issued
	ExpiresAt time.Time // refresh_tokens.expires_at
	Revoked   bool      // refresh_tokens.revoked
	CreatedAt time.Time // refresh_tokens.created_at
}

// Active reports whether the record may still be exchanged at now.
func (r RefreshToken) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// OneTimeKind distinguishes the two opaque single-use token flavours.
type OneTimeKind string

const (
	PasswordReset     OneTimeKind = "password_reset"
	EmailVerification OneTimeKind = "email_verification"
)

// OneTimeToken models a row of `password_reset_tokens` or
// `email_verification_tokens`. A token goes from unused to used exactly once.
type OneTimeToken struct {
	ID        uint64
	Kind      OneTimeKind
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Usable reports whether the token can still be confirmed at now. The expiry
// instant itself is already too late.
func (o OneTimeToken) Usable(now time.Time) bool {
	return !o.Used && now.Before(o.ExpiresAt)
}
