package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
)

func newTestTranzila(t *testing.T, cfg TranzilaConfig) *TranzilaProvider {
	t.Helper()
	if cfg.Terminal == "" {
		cfg.Terminal = "testterm"
	}
	p, err := NewTranzilaProvider(cfg)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return p
}

func TestNewTranzilaProviderRequiresTerminal(t *testing.T) {
	if _, err := NewTranzilaProvider(TranzilaConfig{}); err == nil {
		t.Fatal("expected error for missing terminal")
	}
}

func TestSignTranzilaParamsCanonicalOrder(t *testing.T) {
	params := map[string]string{
		"sum":        "10.00",
		"terminal":   "T1",
		"TranzilaTK": "abc",
	}

	mac := hmac.New(sha256.New, []byte("s"))
	_, _ = mac.Write([]byte("TranzilaTK=abc&sum=10.00&terminal=T1"))
	expected := hex.EncodeToString(mac.Sum(nil))

	if got := signTranzilaParams(params, "s"); got != expected {
		t.Fatalf("canonical signature mismatch: got %s want %s", got, expected)
	}
}

func TestSignTranzilaParamsExcludesSignatureField(t *testing.T) {
	params := map[string]string{"sum": "10.00", "terminal": "T1"}
	signed := signTranzilaParams(params, "s")

	params["signature"] = signed
	if signTranzilaParams(params, "s") != signed {
		t.Fatal("signature field must be excluded from the canonical string")
	}
}

func TestCreateCheckoutBuildsRedirectURL(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "clinic1", Secret: "s3cret", SuccessURL: "https://crm.example/ok", FailURL: "https://crm.example/fail", NotifyURL: "https://crm.example/cb"})

	out, err := p.CreateCheckout(context.Background(), &CheckoutInput{
		PaymentLinkID: "4be0c3f0-0000-0000-0000-000000000001",
		AmountCents:   15050,
		Currency:      "ILS",
		Description:   "therapy session",
		ClientName:    "Dana Levi",
		ClientEmail:   "dana@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(out.RedirectURL, "https://direct.tranzila.com/clinic1/iframenew.php?") {
		t.Fatalf("unexpected redirect prefix: %s", out.RedirectURL)
	}

	parsed, err := url.Parse(out.RedirectURL)
	if err != nil {
		t.Fatalf("redirect URL does not parse: %v", err)
	}
	query := parsed.Query()
	if query.Get("sum") != "150.50" {
		t.Fatalf("unexpected sum: %s", query.Get("sum"))
	}
	if query.Get("currency") != "1" {
		t.Fatalf("unexpected currency code: %s", query.Get("currency"))
	}
	if query.Get("payment_link_id") != "4be0c3f0-0000-0000-0000-000000000001" {
		t.Fatal("payment link id missing from redirect URL")
	}
	if query.Get("signature") == "" {
		t.Fatal("expected a signature parameter when a secret is configured")
	}
	if query.Get("notify_url_address") != "https://crm.example/cb" {
		t.Fatalf("unexpected notify URL: %s", query.Get("notify_url_address"))
	}
}

func TestCreateCheckoutWithoutSecretHasNoSignature(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "clinic1"})

	out, err := p.CreateCheckout(context.Background(), &CheckoutInput{PaymentLinkID: "link-1", AmountCents: 1000, Currency: "ILS"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out.RedirectURL, "signature=") {
		t.Fatal("expected no signature without a secret")
	}
}

func signedCallbackBody(t *testing.T, secret string, fields map[string]string) []byte {
	t.Helper()
	fields["signature"] = signTranzilaParams(fields, secret)
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	return []byte(values.Encode())
}

func TestVerifyCallbackAcceptsValidSignature(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "T1", Secret: "s3cret", VerifySignatures: true})

	body := signedCallbackBody(t, "s3cret", map[string]string{
		"paymentLinkId":    "link-1",
		"confirmationCode": "0012345",
		"response":         "000",
		"index":            "778899",
		"sum":              "150.00",
	})

	result := p.VerifyCallback(context.Background(), &CallbackRequest{Body: body})
	if !result.OK {
		t.Fatalf("expected callback to verify, got reason %q", result.Reason)
	}
	if result.Status != "paid" {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.PaymentLinkID != "link-1" {
		t.Fatalf("unexpected payment link id: %s", result.PaymentLinkID)
	}
	if result.ProviderTxnID != "778899" {
		t.Fatalf("unexpected provider txn id: %s", result.ProviderTxnID)
	}
}

func TestVerifyCallbackRejectsTamperedSignature(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "T1", Secret: "s3cret", VerifySignatures: true})

	fields := map[string]string{
		"paymentLinkId":    "link-1",
		"confirmationCode": "0012345",
		"response":         "000",
	}
	fields["signature"] = signTranzilaParams(fields, "s3cret")

	// Flip one byte of the hex signature.
	sig := []byte(fields["signature"])
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	fields["signature"] = string(sig)

	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}

	result := p.VerifyCallback(context.Background(), &CallbackRequest{Body: []byte(values.Encode())})
	if result.OK {
		t.Fatal("expected tampered signature to be rejected")
	}
}

func TestVerifyCallbackRequiresMandatoryFields(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "T1"})

	missingConfirmation := url.Values{}
	missingConfirmation.Set("paymentLinkId", "link-1")
	missingConfirmation.Set("response", "000")
	if result := p.VerifyCallback(context.Background(), &CallbackRequest{Form: missingConfirmation}); result.OK {
		t.Fatal("expected rejection without confirmationCode")
	}

	missingLink := url.Values{}
	missingLink.Set("confirmationCode", "0012345")
	missingLink.Set("response", "000")
	if result := p.VerifyCallback(context.Background(), &CallbackRequest{Form: missingLink}); result.OK {
		t.Fatal("expected rejection without paymentLinkId")
	}
}

func TestVerifyCallbackResponseCodeQuirk(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "T1"})

	// Success is recognized in either field.
	byConfirmation := url.Values{}
	byConfirmation.Set("paymentLinkId", "link-1")
	byConfirmation.Set("confirmationCode", "000")
	byConfirmation.Set("response", "999")
	result := p.VerifyCallback(context.Background(), &CallbackRequest{Form: byConfirmation})
	if !result.OK || result.Status != "paid" {
		t.Fatalf("expected paid via confirmationCode, got ok=%v status=%s", result.OK, result.Status)
	}

	declined := url.Values{}
	declined.Set("paymentLinkId", "link-1")
	declined.Set("confirmationCode", "0012345")
	declined.Set("response", "004")
	result = p.VerifyCallback(context.Background(), &CallbackRequest{Form: declined})
	if !result.OK || result.Status != "failed" {
		t.Fatalf("expected failed for declined response, got ok=%v status=%s", result.OK, result.Status)
	}
}

func TestVerifyCallbackGarbageBody(t *testing.T) {
	p := newTestTranzila(t, TranzilaConfig{Terminal: "T1"})
	result := p.VerifyCallback(context.Background(), &CallbackRequest{Body: []byte("%zz=;")})
	if result.OK {
		t.Fatal("expected rejection of an unparseable body")
	}
}
