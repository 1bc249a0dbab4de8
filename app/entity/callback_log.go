package entity

import "time"

const (
	CallbackLogProcessed int32 = 10
	CallbackLogRejected  int32 = 20
)

// CallbackLog records every inbound provider callback, processed or
// rejected, for the security audit trail. PayloadJSON is stored as
// received; redaction happens only at the logging layer.
type CallbackLog struct {
	ID uint64

	PaymentLinkID *string

	Provider    string
	SourceIP    string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}
