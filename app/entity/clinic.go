package entity

import "time"

// Collaborator entities owned by the wider CRM. This service only reads
// them for ownership checks and the payer-facing view, except for the
// session paid flag which it sets on a paid callback.

const (
	RoleTherapist = "therapist"
	RoleAdmin     = "admin"
)

type Therapist struct {
	ID          uint64
	DisplayName string
	LogoURL     *string
}

type Client struct {
	ID          uint64
	TherapistID uint64
	FullName    string
	Email       string
	Phone       string
}

type Session struct {
	ID          uint64
	ClientID    uint64
	ScheduledAt time.Time
	Paid        bool
	PaidAt      *time.Time
}
