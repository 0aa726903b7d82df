package models

import (
	"net"
	"time"
)

// AdminSession is the authoritative session record held in Redis, keyed by
// the opaque token handed to the browser. CurrentPage/PageEnteredAt carry
// the state needed to attribute page-view durations server-side.
type AdminSession struct {
	Token         string    `json:"token"`
	AdminID       string    `json:"admin_id"`
	Username      string    `json:"username"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	ExpiresAt     time.Time `json:"expires_at"`
	IPAddress     net.IP    `json:"ip_address,omitempty"`
	LoginLogged   bool      `json:"login_logged"`
	CurrentPage   string    `json:"current_page,omitempty"`
	PageEnteredAt time.Time `json:"page_entered_at,omitempty"`
}
