// Package queue carries one-time token mails over RabbitMQ: the API
// publishes a MailEvent per issued token and the mail worker consumes them.
package queue

import "time"

// DefaultMailQueue is used when no queue name is configured.
const DefaultMailQueue = "auth.mail"

// MailEvent is published whenever a password reset or email verification
// token is issued. It holds everything the worker needs to deliver the mail
// without querying the database.
type MailEvent struct {
	Kind      string    `json:"kind"` // password_reset | email_verification
	UserEmail string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}
