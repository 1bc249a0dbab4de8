package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/provider"
)

func mockCallback(paymentLinkID, status, txnID string) *provider.CallbackRequest {
	form := url.Values{}
	form.Set("paymentLinkId", paymentLinkID)
	if status != "" {
		form.Set("status", status)
	}
	if txnID != "" {
		form.Set("txn_id", txnID)
	}
	return &provider.CallbackRequest{Form: form, Body: []byte(form.Encode()), SourceIP: "203.0.113.7"}
}

func TestHandleProviderCallbackResolvesPendingLink(t *testing.T) {
	f := newServiceFixture(nil)
	f.seedPendingLink("link-1", time.Now().UTC().Add(time.Hour))

	err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "paid", "txn-1"))
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}

	stored, _ := f.linkRepo.FindByLinkID(context.Background(), "link-1")
	if stored.Status != entity.StatusPaid {
		t.Fatalf("expected paid status, got %s", stored.Status)
	}
	if stored.ProviderTxnID == nil || *stored.ProviderTxnID != "txn-1" {
		t.Fatal("expected the provider txn id to be stored")
	}
	if stored.CallbackJSON == nil || !strings.Contains(*stored.CallbackJSON, "txn-1") {
		t.Fatal("expected the callback payload to be stored")
	}

	if len(f.eventRepo.events) != 1 || f.eventRepo.events[0].EventType != "provider_callback" {
		t.Fatalf("expected a provider_callback event, got %+v", f.eventRepo.events)
	}
	if len(f.callbackLogRepo.logs) != 1 || f.callbackLogRepo.logs[0].Status != entity.CallbackLogProcessed {
		t.Fatalf("expected a processed callback log, got %+v", f.callbackLogRepo.logs)
	}

	session := f.sessionRepo.sessions[5]
	if !session.Paid || session.PaidAt == nil {
		t.Fatal("expected the linked session to be marked paid")
	}
}

func TestHandleProviderCallbackFailedOutcome(t *testing.T) {
	f := newServiceFixture(nil)
	f.seedPendingLink("link-1", time.Now().UTC().Add(time.Hour))

	err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "failed", "txn-1"))
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}

	stored, _ := f.linkRepo.FindByLinkID(context.Background(), "link-1")
	if stored.Status != entity.StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if f.sessionRepo.sessions[5].Paid {
		t.Fatal("expected the session to stay unpaid")
	}
}

func TestHandleProviderCallbackReplayIsIdempotent(t *testing.T) {
	f := newServiceFixture(nil)
	f.seedPendingLink("link-1", time.Now().UTC().Add(time.Hour))

	if err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "paid", "txn-1")); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	// Replay with a different txn id: the stored id must not change.
	if err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "paid", "txn-2")); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	stored, _ := f.linkRepo.FindByLinkID(context.Background(), "link-1")
	if stored.Status != entity.StatusPaid {
		t.Fatalf("expected paid status, got %s", stored.Status)
	}
	if stored.ProviderTxnID == nil || *stored.ProviderTxnID != "txn-1" {
		t.Fatalf("expected the original txn id to survive the replay, got %v", stored.ProviderTxnID)
	}
	if stored.CallbackJSON == nil || !strings.Contains(*stored.CallbackJSON, "txn-2") {
		t.Fatal("expected the replay payload to refresh the stored callback")
	}

	if len(f.eventRepo.events) != 1 {
		t.Fatalf("expected a single resolution event, got %d", len(f.eventRepo.events))
	}
	if len(f.callbackLogRepo.logs) != 2 {
		t.Fatalf("expected both callbacks logged, got %d", len(f.callbackLogRepo.logs))
	}
	if !f.sessionRepo.sessions[5].Paid {
		t.Fatal("expected the session to stay paid")
	}
}

func TestHandleProviderCallbackDivergingOutcomeNeverRegresses(t *testing.T) {
	f := newServiceFixture(nil)
	f.seedPendingLink("link-1", time.Now().UTC().Add(time.Hour))

	if err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "paid", "txn-1")); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	// A later failed callback must not downgrade a paid link, and must
	// still be acknowledged so the gateway stops retrying.
	if err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "failed", "txn-1")); err != nil {
		t.Fatalf("diverging callback should be acknowledged, got %v", err)
	}

	stored, _ := f.linkRepo.FindByLinkID(context.Background(), "link-1")
	if stored.Status != entity.StatusPaid {
		t.Fatalf("expected the paid status to survive, got %s", stored.Status)
	}

	last := f.callbackLogRepo.logs[len(f.callbackLogRepo.logs)-1]
	if last.Status != entity.CallbackLogProcessed || last.Error == nil {
		t.Fatalf("expected a processed log carrying the divergence, got %+v", last)
	}
}

func TestHandleProviderCallbackRejectsInvalidPayload(t *testing.T) {
	f := newServiceFixture(nil)
	f.seedPendingLink("link-1", time.Now().UTC().Add(time.Hour))

	err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("link-1", "refunded", ""))
	if !errors.Is(err, ErrCallbackRejected) {
		t.Fatalf("expected ErrCallbackRejected, got %v", err)
	}

	stored, _ := f.linkRepo.FindByLinkID(context.Background(), "link-1")
	if stored.Status != entity.StatusPending {
		t.Fatalf("expected the link untouched, got %s", stored.Status)
	}
	if len(f.callbackLogRepo.logs) != 1 || f.callbackLogRepo.logs[0].Status != entity.CallbackLogRejected {
		t.Fatalf("expected a rejected callback log, got %+v", f.callbackLogRepo.logs)
	}
}

func TestHandleProviderCallbackUnknownProvider(t *testing.T) {
	f := newServiceFixture(nil)

	err := f.svc.HandleProviderCallback(context.Background(), "stripe", mockCallback("link-1", "paid", ""))
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestHandleProviderCallbackUnknownLink(t *testing.T) {
	f := newServiceFixture(nil)

	err := f.svc.HandleProviderCallback(context.Background(), "mock", mockCallback("ghost", "paid", ""))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Callbacks never originate records.
	if len(f.linkRepo.links) != 0 {
		t.Fatal("expected no link to be created")
	}
	if len(f.callbackLogRepo.logs) != 1 || f.callbackLogRepo.logs[0].Status != entity.CallbackLogRejected {
		t.Fatalf("expected a rejected callback log, got %+v", f.callbackLogRepo.logs)
	}
}

func TestRedactMetadataMasksSensitiveFields(t *testing.T) {
	redacted := redactMetadata(map[string]string{
		"signature": "deadbeef",
		"ccno":      "4580000000000000",
		"sum":       "150.00",
	})
	if redacted["signature"] != "[redacted]" || redacted["ccno"] != "[redacted]" {
		t.Fatalf("expected sensitive fields masked, got %+v", redacted)
	}
	if redacted["sum"] != "150.00" {
		t.Fatalf("expected non-sensitive fields untouched, got %+v", redacted)
	}
}
