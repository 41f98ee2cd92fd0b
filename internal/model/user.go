package model

import "time"

// User represents an account as stored in the `users` table. The auth core
// reads the identity fields and flags and only ever writes HashedPassword
// (on reset) and IsEmailVerified (on verification).
//
// Fields:
//
//	ID              – primary key identifier of the user.
//	Email           – unique email address, stored and compared exactly as given.
//	HashedPassword  – bcrypt digest of the password.
//	IsActive        – whether the account may log in.
//	IsEmailVerified – set once an email verification token is confirmed.
//	IsAdmin         – grants access to admin-only endpoints.
//	CreatedAt       – timestamp of creation.
type User struct {
	ID              uint64    // users.id
	Email           string    // users.email
	HashedPassword  string    // users.hashed_password
	IsActive        bool      // users.is_active
	IsEmailVerified bool      // users.is_email_verified
	IsAdmin         bool      // users.is_admin
	CreatedAt       time.Time // users.created_at
}
