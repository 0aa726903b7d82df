package models

import "time"

// Lead statuses follow the back-office pipeline: captured on a landing
// page, worked by an admin, then closed out.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusEnrolled  = "enrolled"
	LeadStatusRejected  = "rejected"
)

// Lead is a marketing-form submission. The phone number is stored hashed
// for lookup and envelope-encrypted for retrieval; the plaintext never
// touches Scylla or Elasticsearch.
type Lead struct {
	LeadBucket     int        `db:"lead_bucket" json:"lead_bucket"`
	LeadID         string     `db:"lead_id" json:"lead_id"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	PhoneHash      string     `db:"phone_hash" json:"-"`
	PhoneEncrypted []byte     `db:"phone_encrypted" json:"-"`
	PhoneKeyID     string     `db:"phone_key_id" json:"-"`
	Course         string     `db:"course" json:"course"`
	City           string     `db:"city" json:"city"`
	Source         string     `db:"source" json:"source"`
	Message        string     `db:"message" json:"message"`
	Status         string     `db:"status" json:"status"`
	AssignedTo     string     `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	ContactedAt    *time.Time `db:"contacted_at" json:"contacted_at,omitempty"`
}

// LeadRef addresses a single lead row for batch operations.
type LeadRef struct {
	LeadBucket int    `json:"lead_bucket"`
	LeadID     string `json:"lead_id"`
}

// ValidLeadStatus reports whether s is a known pipeline status.
func ValidLeadStatus(s string) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusEnrolled, LeadStatusRejected:
		return true
	}
	return false
}
