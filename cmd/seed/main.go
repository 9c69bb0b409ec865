// seed inserts the baseline permission matrix, the built-in roles, and an
// initial admin login for local development.
// Idempotent: skips everything if admin@example.com already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"accessplane/internal/config"
	"accessplane/internal/db"
	permissiondomain "accessplane/internal/permission/domain"
	permissionrepository "accessplane/internal/permission/repository"
	roledomain "accessplane/internal/role/domain"
	rolerepository "accessplane/internal/role/repository"
	"accessplane/internal/security"
	userdomain "accessplane/internal/user/domain"
	userrepository "accessplane/internal/user/repository"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin123!"
)

var resources = []string{"users", "roles", "permissions", "audit-logs"}

var actions = []permissiondomain.Action{
	permissiondomain.ActionCreate,
	permissiondomain.ActionRead,
	permissiondomain.ActionUpdate,
	permissiondomain.ActionDelete,
	permissiondomain.ActionManage,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	userRepo := userrepository.NewPostgresRepository(conn)
	roleRepo := rolerepository.NewPostgresRepository(conn)
	permRepo := permissionrepository.NewPostgresRepository(conn)

	existing, err := userRepo.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (admin@example.com exists). Skipping.")
		os.Exit(0)
	}

	now := time.Now().UTC()

	// Full resource x action matrix.
	permIDs := make(map[string]string)
	for _, resource := range resources {
		for _, action := range actions {
			name := permissiondomain.Format(resource, string(action))
			p := &permissiondomain.Permission{
				ID:          uuid.NewString(),
				Name:        name,
				Resource:    resource,
				Action:      action,
				Description: fmt.Sprintf("Allows %s on %s", action, resource),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := permRepo.Create(ctx, p); err != nil {
				log.Fatalf("create permission %s: %v", name, err)
			}
			permIDs[name] = p.ID
		}
	}

	adminRole := &roledomain.Role{
		ID:          uuid.NewString(),
		Name:        "admin",
		Description: "Full access to every resource",
		IsSystem:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, id := range permIDs {
		adminRole.PermissionIDs = append(adminRole.PermissionIDs, id)
	}
	if err := roleRepo.Create(ctx, adminRole); err != nil {
		log.Fatalf("create admin role: %v", err)
	}

	managerRole := &roledomain.Role{
		ID:          uuid.NewString(),
		Name:        "manager",
		Description: "Manages users and reads everything else",
		PermissionIDs: []string{
			permIDs["users:manage"],
			permIDs["roles:read"],
			permIDs["permissions:read"],
			permIDs["audit-logs:read"],
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := roleRepo.Create(ctx, managerRole); err != nil {
		log.Fatalf("create manager role: %v", err)
	}

	viewerRole := &roledomain.Role{
		ID:          uuid.NewString(),
		Name:        "viewer",
		Description: "Read-only access",
		PermissionIDs: []string{
			permIDs["users:read"],
			permIDs["roles:read"],
			permIDs["permissions:read"],
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := roleRepo.Create(ctx, viewerRole); err != nil {
		log.Fatalf("create viewer role: %v", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(adminPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	admin := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        adminEmail,
		PasswordHash: passwordHash,
		FirstName:    "Admin",
		LastName:     "User",
		RoleID:       adminRole.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		log.Fatalf("create admin user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s / %s\n", adminEmail, adminPassword)
}
