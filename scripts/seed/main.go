package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/internal/platform/db"
	"github.com/teamdesk/identity/internal/rbac"
	"github.com/teamdesk/identity/internal/shared"
	"github.com/teamdesk/identity/migrations"
)

func main() {
	dsn := mustEnv("PG_DSN")
	adminEmail := mustEnv("SEED_ADMIN_EMAIL")
	adminPassword := mustEnv("SEED_ADMIN_PASSWORD")
	adminUsername := os.Getenv("SEED_ADMIN_USERNAME")
	if adminUsername == "" {
		adminUsername = "admin"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, dsn, db.PoolOptions{PingTimeout: 5 * time.Second})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	for _, name := range applied {
		fmt.Println("  applied", name)
	}

	audit := shared.NewAuditLogger(pool)

	fmt.Println("→ Seeding roles and permissions...")
	rbacService := rbac.NewService(rbac.NewRepository(pool), audit, nil)
	if err := rbacService.Bootstrap(ctx, shared.DefaultGrants()); err != nil {
		log.Fatalf("seed rbac: %v", err)
	}

	fmt.Println("→ Seeding administrator...")
	hasher, err := auth.NewHasher(0)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	authService := auth.NewService(auth.NewRepository(pool), hasher, nil, auth.Options{Audit: audit})
	_, err = authService.Register(ctx, auth.RegisterInput{
		Username: adminUsername,
		Email:    adminEmail,
		Password: adminPassword,
		RoleName: shared.RoleAdmin,
	})
	switch {
	case errors.Is(err, shared.ErrConflict):
		fmt.Println("  administrator already present, skipped")
	case err != nil:
		log.Fatalf("seed administrator: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func mustEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		log.Fatalf("%s must be set", key)
	}
	return value
}
