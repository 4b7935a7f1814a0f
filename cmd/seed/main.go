// seed registers a tenant owner for local development. Idempotent: an existing principal
// with the same email is left untouched.
package main

import (
	"context"
	"errors"
	"log"

	"github.com/spf13/pflag"

	"trust-access-layer/backend/internal/config"
	"trust-access-layer/backend/internal/db"
	identityservice "trust-access-layer/backend/internal/identity/service"
	"trust-access-layer/backend/internal/lockout"
	"trust-access-layer/backend/internal/revocation"
	revocationrepo "trust-access-layer/backend/internal/revocation/repository"
	"trust-access-layer/backend/internal/security"
	sessionrepo "trust-access-layer/backend/internal/session/repository"
	sessionservice "trust-access-layer/backend/internal/session/service"
	userdomain "trust-access-layer/backend/internal/user/domain"
	userrepo "trust-access-layer/backend/internal/user/repository"
)

func main() {
	tenantID := pflag.String("tenant", "dev-tenant-001", "Tenant id")
	email := pflag.String("email", "owner@example.com", "Owner email")
	password := pflag.String("password", "Dev-Passw0rd!!", "Owner password")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	store := revocation.NewStore(revocationrepo.NewPostgresRepository(pool), nil, nil)
	sessions := sessionservice.NewRegistry(sessionrepo.NewPostgresRepository(pool), store, nil, nil)
	signer, pub, err := security.GenerateEphemeralKeyPair()
	if err != nil {
		log.Fatalf("keys: %v", err)
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	auth := identityservice.NewAuthService(users,
		lockout.NewPolicy(users, cfg.LockoutThreshold, cfg.LockoutCooldownDuration()),
		sessions, store, security.NewHasher(cfg.BcryptCost), tokens, nil)

	u, err := auth.Register(ctx, *tenantID, *email, *password, userdomain.RoleOwner)
	if errors.Is(err, identityservice.ErrEmailAlreadyRegistered) {
		log.Printf("seed already applied (%s exists in %s); skipping", *email, *tenantID)
		return
	}
	if err != nil {
		log.Fatalf("register owner: %v", err)
	}
	log.Printf("seeded owner %s (%s) in tenant %s", u.Email, u.ID, u.TenantID)
}
