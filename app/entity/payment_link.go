package entity

import "time"

const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusExpired  = "expired"
	StatusCanceled = "canceled"
)

// PaymentLink is a single payment intent from creation to terminal
// resolution. The public handle is PaymentLinkID; the numeric ID is
// internal to the database.
type PaymentLink struct {
	ID uint64

	PaymentLinkID string

	TherapistID uint64
	ClientID    uint64
	SessionID   *uint64

	AmountCents int64
	Currency    string

	Status        string
	Provider      string
	PaymentMethod *string
	CheckoutURL   *string

	ProviderTxnID *string
	CallbackJSON  *string

	Description string
	ExpiresAt   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusPaid, StatusFailed, StatusExpired, StatusCanceled:
		return true
	default:
		return false
	}
}

// ExpiredBy reports whether a still-pending link must be treated as
// expired at the given instant, regardless of what is persisted.
func (p *PaymentLink) ExpiredBy(now time.Time) bool {
	return p.Status == StatusPending && now.After(p.ExpiresAt)
}
