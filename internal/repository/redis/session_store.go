package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"admin-service/internal/client"
	"admin-service/internal/models"
	"admin-service/internal/util"
)

const (
	sessionPrefix       = "admin_session:"
	adminSessionsPrefix = "admin_sessions:"
	loginLoggedPrefix   = "login_logged:"
)

// SessionCache is the Redis-backed SessionStore.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

var _ SessionStore = (*SessionCache)(nil)

func (c *SessionCache) Create(ctx context.Context, session *models.AdminSession, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := c.client.Pipeline()
	sessionKey := sessionPrefix + session.Token
	pipe.Set(ctx, sessionKey, string(data), ttl)
	adminKey := adminSessionsPrefix + session.AdminID
	pipe.SAdd(ctx, adminKey, session.Token)
	pipe.Expire(ctx, adminKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to create session",
			zap.String("admin_id", session.AdminID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Debug("Session created",
		zap.String("admin_id", session.AdminID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) Get(ctx context.Context, token string) (*models.AdminSession, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionPrefix + token
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if strings.Contains(err.Error(), "key not found") {
			return nil, ErrSessionNotFound
		}
		util.Error("Failed to get session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.AdminSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		util.Error("Failed to unmarshal session", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (c *SessionCache) Save(ctx context.Context, session *models.AdminSession) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionPrefix + session.Token

	ttl, err := c.client.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return ErrSessionNotFound
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, key, string(data), ttl); err != nil {
		util.Error("Failed to save session",
			zap.String("admin_id", session.AdminID),
			zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (c *SessionCache) Touch(ctx context.Context, token string, at time.Time) error {
	session, err := c.Get(ctx, token)
	if err != nil {
		return err
	}
	session.LastActivity = at
	return c.Save(ctx, session)
}

func (c *SessionCache) MarkLoginLogged(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionPrefix + token
	ttl, err := c.client.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return false, ErrSessionNotFound
	}

	// SetNX makes the LOGIN emission single-flight across concurrent
	// dashboard loads.
	won, err := c.client.SetNX(ctx, loginLoggedPrefix+token, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("failed to mark login logged: %w", err)
	}
	if won {
		if session, err := c.Get(ctx, token); err == nil {
			session.LoginLogged = true
			_ = c.Save(ctx, session)
		}
	}
	return won, nil
}

func (c *SessionCache) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := c.Get(ctx, token)
	if err != nil && err != ErrSessionNotFound {
		return err
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, sessionPrefix+token)
	pipe.Del(ctx, loginLoggedPrefix+token)
	if session != nil {
		pipe.SRem(ctx, adminSessionsPrefix+session.AdminID, token)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to delete session", zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session != nil {
		util.Info("Session deleted", zap.String("admin_id", session.AdminID))
	}
	return nil
}

func (c *SessionCache) DeleteAllForAdmin(ctx context.Context, adminID string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	adminKey := adminSessionsPrefix + adminID
	tokens, err := c.client.SMembers(ctx, adminKey)
	if err != nil {
		return fmt.Errorf("failed to list admin sessions: %w", err)
	}

	pipe := c.client.Pipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionPrefix+token)
		pipe.Del(ctx, loginLoggedPrefix+token)
	}
	pipe.Del(ctx, adminKey)

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to delete all admin sessions",
			zap.String("admin_id", adminID),
			zap.Int("session_count", len(tokens)),
			zap.Error(err))
		return fmt.Errorf("failed to delete all admin sessions: %w", err)
	}

	util.Info("All admin sessions deleted",
		zap.String("admin_id", adminID),
		zap.Int("session_count", len(tokens)))
	return nil
}
