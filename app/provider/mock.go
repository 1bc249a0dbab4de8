package provider

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

const mockName = "mock"

// MockProvider is the simulated gateway used in tests and as the
// registry fallback. Callback outcomes are deterministic by default:
// the payload's "status" field wins, otherwise the callback is treated
// as paid. Randomized outcomes are opt-in via WithRandomOutcome and
// never wired in production.
type MockProvider struct {
	outcome func() string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// WithRandomOutcome makes callbacks without an explicit status succeed
// roughly 80% of the time, for soak-style testing.
func (p *MockProvider) WithRandomOutcome(rng *rand.Rand) *MockProvider {
	p.outcome = func() string {
		if rng.Float64() < 0.8 {
			return "paid"
		}
		return "failed"
	}
	return p
}

func (p *MockProvider) Name() string {
	return mockName
}

func (p *MockProvider) Supports(method string) bool {
	return knownMethod(method)
}

func (p *MockProvider) CreateCheckout(_ context.Context, input *CheckoutInput) (*CheckoutOutput, error) {
	if input == nil || strings.TrimSpace(input.PaymentLinkID) == "" {
		return nil, fmt.Errorf("payment link id is required")
	}

	values := url.Values{}
	values.Set("payment_link_id", input.PaymentLinkID)
	values.Set("sum", fmt.Sprintf("%d.%02d", input.AmountCents/100, input.AmountCents%100))
	values.Set("currency", input.Currency)
	if input.PaymentMethod != "" {
		values.Set("method", input.PaymentMethod)
	}

	return &CheckoutOutput{
		RedirectURL: "https://checkout.mock.local/pay?" + values.Encode(),
	}, nil
}

func (p *MockProvider) VerifyCallback(_ context.Context, req *CallbackRequest) *CallbackResult {
	if req == nil {
		return rejected("empty callback request")
	}

	form := req.Form
	if form == nil {
		parsed, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return rejected("callback body is not form-encoded")
		}
		form = parsed
	}

	paymentLinkID := strings.TrimSpace(form.Get("paymentLinkId"))
	if paymentLinkID == "" {
		return rejected("missing paymentLinkId")
	}

	status := strings.TrimSpace(form.Get("status"))
	switch status {
	case "paid", "failed":
	case "":
		if p.outcome != nil {
			status = p.outcome()
		} else {
			status = "paid"
		}
	default:
		return rejected("unknown status " + status)
	}

	txnID := strings.TrimSpace(form.Get("txn_id"))
	if txnID == "" {
		txnID = "mock-" + paymentLinkID
	}

	metadata := make(map[string]string, len(form))
	for key := range form {
		metadata[key] = form.Get(key)
	}

	return &CallbackResult{
		OK:            true,
		PaymentLinkID: paymentLinkID,
		Status:        status,
		ProviderTxnID: txnID,
		Metadata:      metadata,
	}
}
