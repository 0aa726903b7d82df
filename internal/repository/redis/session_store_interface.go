package redis

import (
	"context"
	"errors"
	"time"

	"admin-service/internal/models"
)

// ErrSessionNotFound is returned when a presented token has no record in
// the store. A miss is the authoritative invalidation signal: callers clear
// local state and redirect, and never emit a LOGOUT event for it.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the authoritative admin session state. Implemented on
// Redis in production; tests substitute an in-memory fake.
type SessionStore interface {
	// Create writes a new session record with the given TTL and registers
	// it in the per-admin session set.
	Create(ctx context.Context, session *models.AdminSession, ttl time.Duration) error

	// Get resolves a token to its session, or ErrSessionNotFound.
	Get(ctx context.Context, token string) (*models.AdminSession, error)

	// Save rewrites an existing session record, preserving its TTL.
	Save(ctx context.Context, session *models.AdminSession) error

	// Touch updates the session's last-activity timestamp.
	Touch(ctx context.Context, token string, at time.Time) error

	// MarkLoginLogged flips the once-per-session LOGIN flag. Returns true
	// only for the caller that wins the flip.
	MarkLoginLogged(ctx context.Context, token string) (bool, error)

	// Delete removes the session record and its per-admin set membership.
	Delete(ctx context.Context, token string) error

	// DeleteAllForAdmin removes every session belonging to an admin.
	DeleteAllForAdmin(ctx context.Context, adminID string) error
}
