package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admin-service/internal/models"
)

type adminFixture struct {
	*sessionFixture
	admins *AdminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := newSessionFixture(t)
	admins := NewAdminService(f.repo, f.service, f.hasher, zap.NewNop())
	return &adminFixture{sessionFixture: f, admins: admins}
}

func TestAdminService_CreateAdmin(t *testing.T) {
	f := newAdminFixture(t)

	admin, err := f.admins.CreateAdmin(context.Background(), CreateAdminInput{
		Username: "ops.lead",
		Password: "long-enough-password",
		Role:     "Admin",
	}, "admin-root")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.IsActive)
	assert.Equal(t, "admin-root", admin.CreatedBy)

	// The stored hash verifies against the chosen password
	stored, err := f.repo.GetAdminByUsername(context.Background(), "ops.lead")
	require.NoError(t, err)
	ok, err := f.hasher.VerifyPassword("long-enough-password", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdminService_CreateAdminValidation(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "taken", "right-password-here", models.RoleAdmin, true)

	cases := []struct {
		name  string
		input CreateAdminInput
		want  error
	}{
		{"missing username", CreateAdminInput{Password: "long-enough-password", Role: "Admin"}, ErrInvalidInput},
		{"suspicious username", CreateAdminInput{Username: "<img onerror=x>", Password: "long-enough-password", Role: "Admin"}, ErrSuspiciousInput},
		{"short password", CreateAdminInput{Username: "ops", Password: "short", Role: "Admin"}, ErrWeakPassword},
		{"unknown role", CreateAdminInput{Username: "ops", Password: "long-enough-password", Role: "Owner"}, ErrInvalidRole},
		{"username taken", CreateAdminInput{Username: "taken", Password: "long-enough-password", Role: "Admin"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.admins.CreateAdmin(context.Background(), tc.input, "admin-root")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAdminService_ChangePassword(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "ops", "old-password-here", models.RoleAdmin, true)

	require.NoError(t, f.admins.ChangePassword(context.Background(), "ops", "new-password-here"))

	_, err := f.service.Login(context.Background(), "ops", "old-password-here", "10.0.0.5:4123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(context.Background(), "ops", "new-password-here", "10.0.0.5:4123")
	assert.NoError(t, err)
}

func TestAdminService_ChangePasswordValidation(t *testing.T) {
	f := newAdminFixture(t)

	assert.ErrorIs(t, f.admins.ChangePassword(context.Background(), "ops", "short"), ErrWeakPassword)
	assert.ErrorIs(t, f.admins.ChangePassword(context.Background(), "ghost", "long-enough-password"), ErrAdminNotFound)
}

func TestAdminService_NarrowedRoleEndsOpenSessions(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)
	require.True(t, f.store.has(sess.Token))

	require.NoError(t, f.admins.UpdateRole(context.Background(), "ops", "ViewMode"))

	// The open session is gone, and silently: role changes are not logouts
	assert.False(t, f.store.has(sess.Token))
	_, _, tracked := f.service.MonitorState(sess.Token)
	assert.False(t, tracked)
	assert.Empty(t, f.producer.recorded())
}

func TestAdminService_WidenedRoleKeepsSessions(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	require.NoError(t, f.admins.UpdateRole(context.Background(), "ops", "SuperAdmin"))
	assert.True(t, f.store.has(sess.Token))
}

func TestAdminService_UpdateRoleRejectsUnknownRole(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	assert.ErrorIs(t, f.admins.UpdateRole(context.Background(), "ops", "Owner"), ErrInvalidRole)
}

func TestAdminService_DeactivateEndsSessionsAndBlocksLogin(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	require.NoError(t, f.admins.SetActive(context.Background(), "ops", false))

	assert.False(t, f.store.has(sess.Token))
	assert.Empty(t, f.producer.recorded())

	_, err = f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	assert.ErrorIs(t, err, ErrAdminInactive)

	// Re-enabling restores access without touching the password
	require.NoError(t, f.admins.SetActive(context.Background(), "ops", true))
	_, err = f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	assert.NoError(t, err)
}

func TestAdminService_ListAdminsClampsLimit(t *testing.T) {
	f := newAdminFixture(t)
	f.seedAdmin(t, "a", "right-password-here", models.RoleAdmin, true)
	f.seedAdmin(t, "b", "right-password-here", models.RoleViewMode, true)

	admins, err := f.admins.ListAdmins(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	admins, err = f.admins.ListAdmins(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}
