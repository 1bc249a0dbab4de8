package provider

import (
	"context"
	"net/url"
)

const (
	MethodCredit = "credit"
	MethodBit    = "bit"
	MethodGPay   = "gpay"
	MethodAPay   = "apay"
	MethodAll    = "all"
)

// CheckoutInput is a read-only view of a pending payment link.
// CreateCheckout implementations must not mutate anything; they are
// pure redirect-URL builders.
type CheckoutInput struct {
	PaymentLinkID string
	AmountCents   int64
	Currency      string
	Description   string
	PaymentMethod string

	ClientName  string
	ClientEmail string
	ClientPhone string

	SuccessURL string
	FailURL    string
	NotifyURL  string
}

type CheckoutOutput struct {
	RedirectURL string
}

// CallbackRequest carries the raw inbound provider callback. Form is
// the parsed body; Body is kept verbatim for persistence.
type CallbackRequest struct {
	Body     []byte
	Form     url.Values
	SourceIP string
}

// CallbackResult is the normalized outcome of callback verification.
// Verification failures are reported with OK=false and a Reason meant
// for logs only, never for the HTTP response body.
type CallbackResult struct {
	OK            bool
	PaymentLinkID string
	Status        string
	ProviderTxnID string
	Metadata      map[string]string
	Reason        string
}

type Provider interface {
	Name() string
	Supports(method string) bool
	CreateCheckout(ctx context.Context, input *CheckoutInput) (*CheckoutOutput, error)
	VerifyCallback(ctx context.Context, req *CallbackRequest) *CallbackResult
}

func rejected(reason string) *CallbackResult {
	return &CallbackResult{OK: false, Reason: reason}
}

func knownMethod(method string) bool {
	switch method {
	case MethodCredit, MethodBit, MethodGPay, MethodAPay, MethodAll:
		return true
	default:
		return false
	}
}
