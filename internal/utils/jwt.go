package utils // package utils provides token issuing, one-time token generation and password hashing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind is the value of the "type" claim carried by every bearer token.
type TokenKind string

const (
	AccessKind  TokenKind = "access"
	RefreshKind TokenKind = "refresh"
)

// Decode failures. Callers treat all three as "unauthenticated"; the
// distinction exists for logs and tests.
var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenWrongType = errors.New("token of wrong type")
)

// Claims is the JWT payload: sub, exp, iat, jti, iss plus the token type.
type Claims struct {
	Type TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// CodecConfig holds the signing material and lifetimes. Access and refresh
// tokens are signed with different secrets.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now defaults to time.Now.
	Now func() time.Time
	// ID produces the jti claim. Defaults to a random UUID.
	ID func() string
}

// IssuedToken is a signed bearer token along with its expiry.
type IssuedToken struct {
	Token string
	Exp   time.Time
}

// TokenCodec issues and decodes HS256 bearer tokens.
type TokenCodec struct {
	cfg CodecConfig
}

// NewTokenCodec validates cfg and returns a codec. The config is copied, so
// later changes by the caller have no effect.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token codec: signing secrets must be set")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token codec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token codec: TTLs must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ID == nil {
		cfg.ID = uuid.NewString
	}
	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	return &TokenCodec{cfg: cfg}, nil
}

// IssueAccess mints a short-lived access token for subject.
func (c *TokenCodec) IssueAccess(subject uint64) (IssuedToken, error) {
	return c.issue(AccessKind, subject)
}

// IssueRefresh mints a refresh token for subject.
func (c *TokenCodec) IssueRefresh(subject uint64) (IssuedToken, error) {
	return c.issue(RefreshKind, subject)
}

func (c *TokenCodec) issue(kind TokenKind, subject uint64) (IssuedToken, error) {
	// exp and iat are whole seconds on the wire; keep Exp identical to what
	// a later Decode will see.
	now := c.cfg.Now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl(kind))

	claims := Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(subject, 10),
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        c.cfg.ID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(kind))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return IssuedToken{Token: signed, Exp: exp}, nil
}

// Decode verifies the signature and expiry of token and checks that it is of
// kind want. It returns the subject on success.
//
// The verification key is chosen by the token's own type claim, so an
// authentic token of the other kind verifies and is then reported as
// ErrTokenWrongType rather than as a bad signature.
func (c *TokenCodec) Decode(token string, want TokenKind) (uint64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		cl, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrTokenInvalid
		}
		key := c.secret(cl.Type)
		if key == nil {
			return nil, fmt.Errorf("%w: unknown type %q", ErrTokenInvalid, cl.Type)
		}
		return key, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return 0, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return 0, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Type != want {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrTokenWrongType, claims.Type, want)
	}
	sub, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || sub == 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrTokenInvalid, claims.Subject)
	}
	return sub, nil
}

// AccessTTL is the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

func (c *TokenCodec) ttl(kind TokenKind) time.Duration {
	if kind == RefreshKind {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

func (c *TokenCodec) secret(kind TokenKind) []byte {
	switch kind {
	case AccessKind:
		return c.cfg.AccessSecret
	case RefreshKind:
		return c.cfg.RefreshSecret
	}
	return nil
}
