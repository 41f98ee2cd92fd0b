package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Placeholder secrets used when nothing is configured. They are only safe for
// local development; InsecureDefaults reports when they are still in use.
const (
	DefaultJWTSecret        = "dev-change-me"
	DefaultJWTRefreshSecret = "dev-refresh-change-me"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. A Config is built once at startup and passed by
// value into the components that need it; nothing reads the environment
// after Load returns.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"dev"`      // application environment (dev, test, prod)
	Port        string `env:"APP_PORT" envDefault:"8000"`    // HTTP port to listen on
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite or mysql
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:selenly.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"`

	JWTSecret        string `env:"JWT_SECRET" envDefault:"dev-change-me"`                 // signs access tokens
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET" envDefault:"dev-refresh-change-me"` // signs refresh tokens
	AccessTTLMin     int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`           // access token TTL in minutes
	RefreshTTLDays   int    `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"7"`              // refresh token TTL in days

	ResetTTL  time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	VerifyTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"` // bcrypt cost factor

	// ExposeOneTimeTokens echoes reset/verification tokens in the response
	// body. Leave it off outside local development.
	ExposeOneTimeTokens bool `env:"EXPOSE_ONE_TIME_TOKENS" envDefault:"false"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	RabbitMQURL string `env:"RABBITMQ_URL"` // empty disables mail publishing
	MailQueue   string `env:"MAIL_QUEUE" envDefault:"auth.mail"`
	MailLogDir  string `env:"MAIL_LOG_DIR" envDefault:"logs"`
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

// Validate checks the invariants the auth core relies on.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set"))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.AccessTTLMin <= 0 {
		errs = append(errs, fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES: %d", c.AccessTTLMin))
	}
	if c.RefreshTTLDays <= 0 {
		errs = append(errs, fmt.Errorf("invalid REFRESH_TOKEN_EXPIRE_DAYS: %d", c.RefreshTTLDays))
	}
	if c.ResetTTL <= 0 || c.VerifyTTL <= 0 {
		errs = append(errs, errors.New("one-time token TTLs must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("invalid BCRYPT_COST: %d", c.BcryptCost))
	}
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER: %q", c.DBDriver))
	}
	return errors.Join(errs...)
}

// InsecureDefaults lists the variables still holding development placeholders.
func (c Config) InsecureDefaults() []string {
	var out []string
	if c.JWTSecret == DefaultJWTSecret {
		out = append(out, "JWT_SECRET")
	}
	if c.JWTRefreshSecret == DefaultJWTRefreshSecret {
		out = append(out, "JWT_REFRESH_SECRET")
	}
	return out
}

// Parse decodes the current environment into a validated Config.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads an optional .env file, then the environment, and returns the
// Config. Invalid configuration is fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}
