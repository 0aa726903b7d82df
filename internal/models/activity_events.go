package models

import "time"

// Activity action constants
const (
	ActionLogin         = "LOGIN"
	ActionLogout        = "LOGOUT"
	ActionPageViewStart = "PAGE_VIEW_START"
	ActionPageViewEnd   = "PAGE_VIEW_END"
)

// ActivityEvent is an audit record of an admin transition. Events are
// emitted once, best-effort; there is no retry and no local persistence.
type ActivityEvent struct {
	EventBucket int       `json:"event_bucket"`
	AdminID     string    `json:"admin_id"`
	Action      string    `json:"action"`
	Page        string    `json:"page,omitempty"`
	Details     string    `json:"details,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
