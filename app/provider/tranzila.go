package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const tranzilaName = "tranzila"

type TranzilaConfig struct {
	Terminal         string
	Secret           string
	BaseURL          string
	SuccessURL       string
	FailURL          string
	NotifyURL        string
	Language         string
	VerifySignatures bool
}

type TranzilaProvider struct {
	cfg TranzilaConfig
}

func NewTranzilaProvider(cfg TranzilaConfig) (*TranzilaProvider, error) {
	if strings.TrimSpace(cfg.Terminal) == "" {
		return nil, errors.New("tranzila terminal is not configured")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://direct.tranzila.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "il"
	}
	return &TranzilaProvider{cfg: cfg}, nil
}

func (p *TranzilaProvider) Name() string {
	return tranzilaName
}

func (p *TranzilaProvider) Supports(method string) bool {
	return knownMethod(method)
}

func (p *TranzilaProvider) CreateCheckout(_ context.Context, input *CheckoutInput) (*CheckoutOutput, error) {
	if input == nil || strings.TrimSpace(input.PaymentLinkID) == "" {
		return nil, errors.New("payment link id is required")
	}

	params := map[string]string{
		"sum":                 fmt.Sprintf("%d.%02d", input.AmountCents/100, input.AmountCents%100),
		"currency":            tranzilaCurrencyCode(input.Currency),
		"terminal":            p.cfg.Terminal,
		"payment_link_id":     input.PaymentLinkID,
		"lang":                p.cfg.Language,
		"success_url_address": firstNonEmpty(input.SuccessURL, p.cfg.SuccessURL),
		"fail_url_address":    firstNonEmpty(input.FailURL, p.cfg.FailURL),
		"notify_url_address":  firstNonEmpty(input.NotifyURL, p.cfg.NotifyURL),
	}
	if input.Description != "" {
		params["pdesc"] = input.Description
	}
	if input.ClientName != "" {
		params["contact"] = input.ClientName
	}
	if input.ClientEmail != "" {
		params["email"] = input.ClientEmail
	}
	if input.ClientPhone != "" {
		params["phone"] = input.ClientPhone
	}
	switch input.PaymentMethod {
	case MethodBit:
		params["bit_pay"] = "1"
	case MethodGPay:
		params["google_pay"] = "1"
	case MethodAPay:
		params["apple_pay"] = "1"
	}

	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			delete(params, key)
		}
	}

	if p.cfg.Secret != "" {
		params["signature"] = signTranzilaParams(params, p.cfg.Secret)
	}

	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}

	redirect := p.cfg.BaseURL + "/" + url.PathEscape(p.cfg.Terminal) + "/iframenew.php?" + values.Encode()
	return &CheckoutOutput{RedirectURL: redirect}, nil
}

func (p *TranzilaProvider) VerifyCallback(_ context.Context, req *CallbackRequest) *CallbackResult {
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

	fields := make(map[string]string, len(form))
	for key := range form {
		fields[key] = form.Get(key)
	}

	if p.cfg.VerifySignatures && p.cfg.Secret != "" {
		if signature, ok := fields["signature"]; ok {
			unsigned := make(map[string]string, len(fields))
			for key, value := range fields {
				if key == "signature" {
					continue
				}
				unsigned[key] = value
			}
			expected := signTranzilaParams(unsigned, p.cfg.Secret)
			if !hmac.Equal([]byte(expected), []byte(signature)) {
				return rejected("signature mismatch")
			}
		}
	}

	confirmationCode := strings.TrimSpace(fields["confirmationCode"])
	paymentLinkID := strings.TrimSpace(fields["paymentLinkId"])
	if confirmationCode == "" || paymentLinkID == "" {
		return rejected("missing confirmationCode or paymentLinkId")
	}

	// The gateway reports success in either field; observed behavior
	// treats them as interchangeable, so both are accepted.
	response := strings.TrimSpace(fields["response"])
	status := "failed"
	if response == "000" || confirmationCode == "000" {
		status = "paid"
	}

	txnID := strings.TrimSpace(fields["index"])
	if txnID == "" {
		txnID = confirmationCode
	}

	return &CallbackResult{
		OK:            true,
		PaymentLinkID: paymentLinkID,
		Status:        status,
		ProviderTxnID: txnID,
		Metadata:      fields,
	}
}

// signTranzilaParams computes the canonical signature: key=value pairs
// in ascending key order, joined by "&", signature field excluded,
// HMAC-SHA256 keyed by the shared secret, hex-encoded. The receiving
// side must reconstruct this exact string for verification to interop.
func signTranzilaParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func tranzilaCurrencyCode(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "ILS", "":
		return "1"
	case "USD":
		return "2"
	case "EUR":
		return "978"
	default:
		return "1"
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
