package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/provider"
)

// redactedFields never reach the logs; the stored callback payload is
// kept verbatim.
var redactedFields = map[string]bool{
	"signature":  true,
	"ccno":       true,
	"mycvv":      true,
	"expdate":    true,
	"TranzilaTK": true,
}

// HandleProviderCallback verifies and applies a provider-initiated
// callback. Valid replays are a success no-op so the gateway stops
// retrying; verification failures never touch persisted state.
func (s *PaymentLinkService) HandleProviderCallback(ctx context.Context, providerName string, req *provider.CallbackRequest) error {
	providerClient, err := s.providers.ByName(providerName)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProviderUnsupported, providerName)
	}

	result := providerClient.VerifyCallback(ctx, req)
	if result == nil || !result.OK {
		reason := "callback verification failed"
		if result != nil && result.Reason != "" {
			reason = result.Reason
		}
		s.logger.WithFields(logrus.Fields{
			"provider":  providerName,
			"source_ip": req.SourceIP,
			"reason":    reason,
		}).Warn("Rejected provider callback")
		s.recordCallbackLog(ctx, nil, providerName, req, entity.CallbackLogRejected, &reason)
		return ErrCallbackRejected
	}

	link, err := s.linkRepo.FindByLinkID(ctx, result.PaymentLinkID)
	if err != nil {
		return err
	}
	if link == nil {
		// Callbacks never originate records.
		reason := "payment link not found"
		s.recordCallbackLog(ctx, &result.PaymentLinkID, providerName, req, entity.CallbackLogRejected, &reason)
		return fmt.Errorf("%w: payment link", ErrNotFound)
	}

	callbackJSON := marshalMetadata(result.Metadata)
	now := time.Now().UTC()

	if link.Status == entity.StatusPending {
		transitioned, err := s.linkRepo.MarkResolved(ctx, link.PaymentLinkID, result.Status, result.ProviderTxnID, callbackJSON, now)
		if err != nil {
			return err
		}
		if transitioned {
			oldStatus := link.Status
			txnID := result.ProviderTxnID
			s.recordEvent(ctx, link.PaymentLinkID, "provider_callback", &oldStatus, result.Status, &txnID, &callbackJSON)
			s.recordCallbackLog(ctx, &link.PaymentLinkID, providerName, req, entity.CallbackLogProcessed, nil)

			if result.Status == entity.StatusPaid && link.SessionID != nil {
				if err := s.sessionRepo.MarkPaid(ctx, *link.SessionID, now); err != nil {
					s.logger.WithError(err).WithField("session_id", *link.SessionID).Warn("Failed to mark session paid")
				}
			}
			s.logger.WithFields(logrus.Fields{
				"payment_link_id": link.PaymentLinkID,
				"provider":        providerName,
				"status":          result.Status,
				"metadata":        redactMetadata(result.Metadata),
			}).Info("Payment link resolved")
			return nil
		}

		// Raced by a cancel, the sweep, or a concurrent callback; trust
		// the store and fall through to replay handling.
		current, err := s.linkRepo.FindByLinkID(ctx, link.PaymentLinkID)
		if err != nil {
			return err
		}
		if current != nil {
			link = current
		}
	}

	if link.Status == result.Status {
		// Idempotent replay: refresh callback data, keep the status.
		if _, err := s.linkRepo.RefreshCallback(ctx, link.PaymentLinkID, link.Status, callbackJSON, now); err != nil {
			return err
		}
		s.recordCallbackLog(ctx, &link.PaymentLinkID, providerName, req, entity.CallbackLogProcessed, nil)
		return nil
	}

	// Terminal record, diverging outcome. Never regress; answer success
	// so the gateway stops retrying, but keep the divergence on record.
	s.logger.WithFields(logrus.Fields{
		"payment_link_id": link.PaymentLinkID,
		"provider":        providerName,
		"current_status":  link.Status,
		"callback_status": result.Status,
	}).Warn("Callback outcome diverges from terminal status")
	divergence := fmt.Sprintf("terminal status %s, callback reported %s", link.Status, result.Status)
	s.recordCallbackLog(ctx, &link.PaymentLinkID, providerName, req, entity.CallbackLogProcessed, &divergence)
	return nil
}

func (s *PaymentLinkService) recordCallbackLog(ctx context.Context, paymentLinkID *string, providerName string, req *provider.CallbackRequest, status int32, reason *string) {
	payload := ""
	sourceIP := ""
	if req != nil {
		payload = string(req.Body)
		sourceIP = req.SourceIP
	}
	err := s.callbackLogRepo.Create(ctx, &entity.CallbackLog{
		PaymentLinkID: paymentLinkID,
		Provider:      providerName,
		SourceIP:      sourceIP,
		PayloadJSON:   payload,
		Status:        status,
		Error:         reason,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to persist callback log")
	}
}

func marshalMetadata(metadata map[string]string) string {
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func redactMetadata(metadata map[string]string) map[string]string {
	redacted := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if redactedFields[key] {
			redacted[key] = "[redacted]"
			continue
		}
		redacted[key] = value
	}
	return redacted
}
