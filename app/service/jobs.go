package service

import (
	"context"
	"time"
)

// RunExpireSweep bulk-expires stale pending links. A single
// conditional UPDATE, safe to run concurrently with callback
// processing. Terminal records persist for audit; nothing is deleted.
func (s *PaymentLinkService) RunExpireSweep(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := s.linkRepo.ExpireSweep(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("Expired stale payment links")
	}
	return nil
}
