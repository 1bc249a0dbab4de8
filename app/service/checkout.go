package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicore/ms-go-paylinks/app/entity"
)

type startCheckoutRequest interface {
	GetPaymentLinkId() string
	GetPaymentMethod() string
}

// StartCheckout resolves the checkout URL for a payment link. The URL
// is cached: re-starting with the same method returns it unchanged,
// and only a method change triggers a provider round trip.
func (s *PaymentLinkService) StartCheckout(ctx context.Context, req startCheckoutRequest) (string, error) {
	link, err := s.linkRepo.FindByLinkID(ctx, req.GetPaymentLinkId())
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", fmt.Errorf("%w: payment link", ErrNotFound)
	}

	now := time.Now().UTC()
	if link.ExpiredBy(now) {
		if err := s.lazyExpire(ctx, link, now); err != nil {
			return "", err
		}
	}
	if link.Status == entity.StatusExpired {
		return "", ErrLinkExpired
	}
	if link.Status != entity.StatusPending {
		return "", fmt.Errorf("%w: payment link is %s", ErrInvalidStatus, link.Status)
	}

	method := strings.TrimSpace(req.GetPaymentMethod())
	if method == "" && link.PaymentMethod != nil {
		method = *link.PaymentMethod
	}

	sameMethod := (method == "" && link.PaymentMethod == nil) ||
		(link.PaymentMethod != nil && method == *link.PaymentMethod)
	if link.CheckoutURL != nil && *link.CheckoutURL != "" && sameMethod {
		return *link.CheckoutURL, nil
	}

	// Regenerate through the provider that created the link; silently
	// switching providers mid-flight would invalidate the callback.
	linkProvider, err := s.providers.ByName(link.Provider)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderUnsupported, link.Provider)
	}
	if method != "" && !linkProvider.Supports(method) {
		return "", fmt.Errorf("%w: payment method %s is not supported", ErrValidation, method)
	}

	client, err := s.clientRepo.FindByID(ctx, link.ClientID)
	if err != nil {
		return "", err
	}

	if method != "" {
		link.PaymentMethod = &method
	}
	checkout, err := linkProvider.CreateCheckout(ctx, s.checkoutInput(link, client))
	if err != nil {
		s.logger.WithError(err).WithField("payment_link_id", link.PaymentLinkID).Error("Provider checkout regeneration failed")
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if err := s.linkRepo.UpdateCheckout(ctx, link.PaymentLinkID, link.PaymentMethod, checkout.RedirectURL, now); err != nil {
		return "", err
	}

	return checkout.RedirectURL, nil
}
