package scylla

import (
	"context"
	"time"

	"admin-service/internal/models"
)

// AdminRepository defines the durable admin account operations
type AdminRepository interface {
	CreateAdmin(ctx context.Context, admin *models.AdminUser) error
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
	UpdateRole(ctx context.Context, username string, role models.Role) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	SetActive(ctx context.Context, username string, active bool) error
	ListAdmins(ctx context.Context, limit int) ([]*models.AdminUser, error)

	HealthCheck(ctx context.Context) error
}
