package mapper

import (
	"fmt"
	"time"

	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/service"
	"github.com/clinicore/ms-go-paylinks/app/types"
)

func LinkViewToResponse(view *service.LinkView) *types.PaymentLinkView {
	if view == nil || view.Link == nil {
		return nil
	}
	link := view.Link

	response := &types.PaymentLinkView{
		PaymentLinkId: link.PaymentLinkID,
		Amount:        CentsToDecimal(link.AmountCents),
		Currency:      link.Currency,
		Description:   link.Description,
		Status:        link.Status,
		ExpiresAt:     link.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if view.Therapist != nil {
		response.TherapistName = view.Therapist.DisplayName
		if view.Therapist.LogoURL != nil {
			response.TherapistLogoUrl = *view.Therapist.LogoURL
		}
	}
	if view.Client != nil {
		response.ClientName = view.Client.FullName
	}
	if view.Session != nil {
		response.Session = &types.SessionView{
			SessionId:   view.Session.ID,
			ScheduledAt: view.Session.ScheduledAt.UTC().Format(time.RFC3339),
			Paid:        view.Session.Paid,
		}
	}

	return response
}

func CreatedLinkToResponse(created *service.CreatedLink) *types.CreatePaymentLinkResponse {
	if created == nil || created.Link == nil {
		return nil
	}
	return &types.CreatePaymentLinkResponse{
		PaymentLinkId: created.Link.PaymentLinkID,
		PaymentLink:   created.PaymentLink,
		CheckoutUrl:   created.CheckoutURL,
		ExpiresAt:     created.Link.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func LinkToStatusResponse(link *entity.PaymentLink) *types.PaymentLinkStatusResponse {
	if link == nil {
		return nil
	}
	return &types.PaymentLinkStatusResponse{
		PaymentLinkId: link.PaymentLinkID,
		Status:        link.Status,
	}
}

func CentsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
