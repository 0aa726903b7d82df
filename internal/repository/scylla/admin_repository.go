package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-service/internal/models"
	"admin-service/internal/util"
)

var ErrAdminNotFound = gocql.ErrNotFound

type adminRepository struct {
	client *ScyllaClient
}

func NewAdminRepository(client *ScyllaClient) AdminRepository {
	return &adminRepository{client: client}
}

func (r *adminRepository) CreateAdmin(ctx context.Context, admin *models.AdminUser) error {
	if admin.AdminID == "" {
		admin.AdminID = uuid.New().String()
	}

	now := time.Now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	if err := r.client.Prepared.CreateAdmin.WithContext(ctx).Bind(
		admin.Username, admin.AdminID, admin.Role.String(), admin.PasswordHash,
		admin.IsActive, admin.FailedAttempts, admin.CreatedBy,
		admin.CreatedAt, admin.UpdatedAt, admin.LastLoginAt).Exec(); err != nil {
		util.Error("Failed to create admin",
			zap.String("username", admin.Username),
			zap.Error(err))
		return fmt.Errorf("failed to create admin: %w", err)
	}

	util.Info("Admin created",
		zap.String("username", admin.Username),
		zap.String("admin_id", admin.AdminID),
		zap.String("role", admin.Role.String()))
	return nil
}

func (r *adminRepository) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	admin := &models.AdminUser{}
	var role string

	err := r.client.Prepared.GetAdminByUsername.WithContext(ctx).Bind(username).Scan(
		&admin.Username, &admin.AdminID, &role, &admin.PasswordHash,
		&admin.IsActive, &admin.FailedAttempts, &admin.CreatedBy,
		&admin.CreatedAt, &admin.UpdatedAt, &admin.LastLoginAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrAdminNotFound
		}
		util.Error("Failed to get admin by username",
			zap.String("username", username),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get admin by username: %w", err)
	}

	admin.Role = models.ParseRole(role)
	return admin, nil
}

func (r *adminRepository) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	if err := r.client.Prepared.UpdateAdminLastLogin.WithContext(ctx).
		Bind(at, time.Now().UTC(), username).Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *adminRepository) UpdateRole(ctx context.Context, username string, role models.Role) error {
	if err := r.client.Prepared.UpdateAdminRole.WithContext(ctx).
		Bind(role.String(), time.Now().UTC(), username).Exec(); err != nil {
		return fmt.Errorf("failed to update admin role: %w", err)
	}
	util.Info("Admin role updated",
		zap.String("username", username),
		zap.String("role", role.String()))
	return nil
}

func (r *adminRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	if err := r.client.Prepared.UpdateAdminPassword.WithContext(ctx).
		Bind(passwordHash, time.Now().UTC(), username).Exec(); err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	return nil
}

func (r *adminRepository) SetActive(ctx context.Context, username string, active bool) error {
	if err := r.client.Prepared.SetAdminActive.WithContext(ctx).
		Bind(active, time.Now().UTC(), username).Exec(); err != nil {
		return fmt.Errorf("failed to set admin active flag: %w", err)
	}
	util.Info("Admin active flag updated",
		zap.String("username", username),
		zap.Bool("active", active))
	return nil
}

func (r *adminRepository) ListAdmins(ctx context.Context, limit int) ([]*models.AdminUser, error) {
	iter := r.client.Session.Query(`
		SELECT username, admin_id, role, password_hash, is_active,
			failed_attempts, created_by, created_at, updated_at, last_login_at
		FROM admins LIMIT ?`, limit).WithContext(ctx).Iter()

	var admins []*models.AdminUser
	for {
		admin := &models.AdminUser{}
		var role string
		if !iter.Scan(&admin.Username, &admin.AdminID, &role, &admin.PasswordHash,
			&admin.IsActive, &admin.FailedAttempts, &admin.CreatedBy,
			&admin.CreatedAt, &admin.UpdatedAt, &admin.LastLoginAt) {
			break
		}
		admin.Role = models.ParseRole(role)
		admins = append(admins, admin)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}

func (r *adminRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
