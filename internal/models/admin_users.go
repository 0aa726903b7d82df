package models

import (
	"time"
)

type AdminUser struct {
	AdminID        string     `db:"admin_id" json:"admin_id"`
	Username       string     `db:"username" json:"username"`
	Role           Role       `db:"role" json:"role"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	LastLoginAt    *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}
