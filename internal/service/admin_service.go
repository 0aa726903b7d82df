package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-service/internal/hashing"
	"admin-service/internal/models"
	"admin-service/internal/repository/scylla"
	"admin-service/internal/util"
)

var (
	ErrAdminNotFound = errors.New("admin not found")
	ErrInvalidRole   = errors.New("invalid role")
	ErrWeakPassword  = errors.New("password does not meet minimum length")
)

const minPasswordLength = 12

// AdminService manages admin accounts. All mutating operations are gated
// to the super-admin role at the handler layer; the service additionally
// invalidates live sessions when an account is deactivated.
type AdminService struct {
	adminRepo scylla.AdminRepository
	sessions  *SessionService
	hasher    *hashing.Hasher
	logger    *zap.Logger
}

func NewAdminService(adminRepo scylla.AdminRepository, sessions *SessionService, hasher *hashing.Hasher, logger *zap.Logger) *AdminService {
	return &AdminService{
		adminRepo: adminRepo,
		sessions:  sessions,
		hasher:    hasher,
		logger:    logger,
	}
}

// CreateAdminInput carries the new-account form.
type CreateAdminInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *AdminService) CreateAdmin(ctx context.Context, input CreateAdminInput, createdBy string) (*models.AdminUser, error) {
	if input.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if util.ContainsSuspicious(input.Username) {
		return nil, ErrSuspiciousInput
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	role := models.ParseRole(input.Role)
	if role == models.RoleNone {
		return nil, ErrInvalidRole
	}

	if _, err := s.adminRepo.GetAdminByUsername(ctx, input.Username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", ErrInvalidInput)
	} else if !errors.Is(err, scylla.ErrAdminNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := s.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	admin := &models.AdminUser{
		AdminID:      uuid.New().String(),
		Username:     util.SanitizeInput(input.Username),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.adminRepo.CreateAdmin(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("Admin account created",
		util.String("admin_id", admin.AdminID),
		util.String("username", admin.Username),
		util.String("role", role.String()),
		util.String("created_by", createdBy))

	return admin, nil
}

func (s *AdminService) ChangePassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	if _, err := s.getAdmin(ctx, username); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.adminRepo.UpdatePassword(ctx, username, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Admin password changed", util.String("username", username))
	return nil
}

func (s *AdminService) UpdateRole(ctx context.Context, username, roleName string) error {
	role := models.ParseRole(roleName)
	if role == models.RoleNone {
		return ErrInvalidRole
	}

	admin, err := s.getAdmin(ctx, username)
	if err != nil {
		return err
	}

	if err := s.adminRepo.UpdateRole(ctx, username, role); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	// A narrowed role must not outlive the change in an open session.
	if !role.AdminCapable() {
		s.sessions.InvalidateAdmin(ctx, admin.AdminID)
	}

	s.logger.Info("Admin role updated",
		util.String("username", username),
		util.String("role", role.String()))
	return nil
}

// SetActive enables or disables an account. Deactivation clears every
// live session the admin holds, without LOGOUT events.
func (s *AdminService) SetActive(ctx context.Context, username string, active bool) error {
	admin, err := s.getAdmin(ctx, username)
	if err != nil {
		return err
	}

	if err := s.adminRepo.SetActive(ctx, username, active); err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}

	if !active {
		s.sessions.InvalidateAdmin(ctx, admin.AdminID)
	}

	s.logger.Info("Admin active flag changed",
		util.String("username", username),
		util.Bool("active", active))
	return nil
}

func (s *AdminService) ListAdmins(ctx context.Context, limit int) ([]*models.AdminUser, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	admins, err := s.adminRepo.ListAdmins(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}

func (s *AdminService) getAdmin(ctx context.Context, username string) (*models.AdminUser, error) {
	admin, err := s.adminRepo.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, scylla.ErrAdminNotFound) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return admin, nil
}
