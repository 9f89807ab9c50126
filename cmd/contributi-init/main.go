package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"contributi/internal/config"
	"contributi/internal/core"
	"contributi/internal/log"
	"contributi/internal/storage"
)

// contributi-init creates the database and seeds the first member. Run it
// once per deployment; the printed API token is shown only here.
func main() {
	_ = godotenv.Load()

	cfgLog := log.DefaultConfig()
	cfgLog.Component = log.ComponentSeed
	logger := log.New(cfgLog)
	log.SetDefault(logger)

	var (
		name     = flag.String("name", "Admin User", "member display name")
		email    = flag.String("email", "admin@example.com", "member email")
		rolesArg = flag.String("roles", "admin", "comma-separated roles (member, treasurer, admin)")
	)
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	roles, err := parseRoles(*rolesArg)
	if err != nil {
		logger.Error("Invalid roles", "error", err)
		os.Exit(1)
	}

	// Opening the repository runs migrations.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	token, err := generateToken()
	if err != nil {
		logger.Error("Failed to generate API token", "error", err)
		os.Exit(1)
	}

	member, err := repo.CreateMember(context.Background(), *name, *email, token, roles)
	if err != nil {
		logger.Error("Failed to create member", "error", err, "email", *email)
		os.Exit(1)
	}

	logger.Info("Member created",
		"id", member.ID,
		"name", member.Name,
		"email", member.Email,
		"roles", *rolesArg)

	// The token is printed to stdout once and never stored in plain sight
	// anywhere else.
	fmt.Printf("API token for %s: %s\n", member.Email, token)
}

func parseRoles(raw string) ([]core.Role, error) {
	var roles []core.Role
	for _, part := range strings.Split(raw, ",") {
		role := core.Role(strings.TrimSpace(part))
		if role == "" {
			continue
		}
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return roles, nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
