package entity

import "time"

type PaymentEvent struct {
	ID uint64

	PaymentLinkID string

	EventType string

	OldStatus *string
	NewStatus string

	ProviderTxnID *string
	PayloadJSON   *string

	CreatedAt time.Time
}
