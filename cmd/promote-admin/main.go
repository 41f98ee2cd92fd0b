// Command promote-admin grants the admin flag to the account named by
// ADMIN_EMAIL. Pass -revoke to take it away again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/selenly/selenly-api/internal/config"
	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/repository"
)

func main() {
	revoke := flag.Bool("revoke", false, "clear the admin flag instead of setting it")
	flag.Parse()

	cfg := config.Load()
	log := config.NewLogger(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := run(ctx, cfg.DBDriver, cfg.DatabaseURL, os.Getenv("ADMIN_EMAIL"), !*revoke, log)
	cancel()
	if err != nil {
		log.Error("promote-admin failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, driver, dsn, email string, admin bool, log *slog.Logger) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("ADMIN_EMAIL is required")
	}

	db, err := database.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	users := repository.NewStore(db, driver).Users
	u, err := users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("no user with email %q", email)
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := users.SetAdmin(ctx, u.ID, admin); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	log.Info("admin flag updated", "user_id", u.ID, "email", u.Email, "admin", admin)
	return nil
}
