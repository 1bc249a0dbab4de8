package controller

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/ms-go-paylinks/app/auth"
	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/factory"
	"github.com/clinicore/ms-go-paylinks/app/mapper"
	"github.com/clinicore/ms-go-paylinks/app/provider"
	"github.com/clinicore/ms-go-paylinks/app/service"
	"github.com/clinicore/ms-go-paylinks/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentLinkService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentLinkService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("paylinks-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{
		Status:   "ok",
		Provider: c.paymentService.ActiveProviderName(),
	})
}

func (c *PaymentController) CreatePaymentLink(ctx echo.Context) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusUnauthorized, "unauthorized", "authentication required")
	}

	req, err := types.NewCreatePaymentLinkRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", err.Error())
	}

	created, err := c.paymentService.CreateLink(ctx.Request().Context(), actor, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return c.writeError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, service.ErrNotFound):
			return c.writeError(ctx, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, service.ErrForbidden):
			return c.writeError(ctx, http.StatusForbidden, "forbidden", err.Error())
		case errors.Is(err, service.ErrExternalService):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Checkout creation failed")
			return c.writeError(ctx, http.StatusBadGateway, "provider_error", "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment link failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, mapper.CreatedLinkToResponse(created))
}

// GetPaymentLink serves the public payer view. Expired links answer
// 410 and resolved links 400, in both cases with the view body so the
// payer page can explain the state.
func (c *PaymentController) GetPaymentLink(ctx echo.Context) error {
	paymentLinkID := strings.TrimSpace(ctx.Param("paymentLinkId"))
	if paymentLinkID == "" {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", "payment link id is required")
	}

	view, err := c.paymentService.GetLinkView(ctx.Request().Context(), paymentLinkID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "not_found", "payment link not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment link failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
	}

	response := mapper.LinkViewToResponse(view)
	switch view.Link.Status {
	case entity.StatusPending:
		return ctx.JSON(http.StatusOK, response)
	case entity.StatusExpired:
		return ctx.JSON(http.StatusGone, response)
	default:
		return ctx.JSON(http.StatusBadRequest, response)
	}
}

func (c *PaymentController) StartCheckout(ctx echo.Context) error {
	req, err := types.NewStartCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", err.Error())
	}

	checkoutURL, err := c.paymentService.StartCheckout(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.writeError(ctx, http.StatusNotFound, "not_found", "payment link not found")
		case errors.Is(err, service.ErrLinkExpired):
			return c.writeError(ctx, http.StatusGone, "link_expired", "payment link expired")
		case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, "invalid_status", err.Error())
		case errors.Is(err, service.ErrExternalService):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Checkout regeneration failed")
			return c.writeError(ctx, http.StatusBadGateway, "provider_error", "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Start checkout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.StartCheckoutResponse{CheckoutUrl: checkoutURL})
}

// HandleProviderCallback always answers 200 for processed callbacks,
// replays included, so the gateway stops retrying. Rejections get a
// generic 400 with no internals.
func (c *PaymentController) HandleProviderCallback(ctx echo.Context) error {
	providerName := strings.TrimSpace(ctx.Param("provider"))

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "callback_rejected", "invalid callback")
	}

	callbackReq := &provider.CallbackRequest{
		Body:     body,
		SourceIP: ctx.RealIP(),
	}
	contentType := ctx.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		if form, err := url.ParseQuery(string(body)); err == nil {
			callbackReq.Form = form
		}
	}

	err = c.paymentService.HandleProviderCallback(ctx.Request().Context(), providerName, callbackReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrCallbackRejected):
			return c.writeError(ctx, http.StatusBadRequest, "callback_rejected", "invalid callback")
		case errors.Is(err, service.ErrNotFound):
			return c.writeError(ctx, http.StatusNotFound, "not_found", "payment link not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Provider callback failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.CallbackAckResponse{OK: true})
}

func (c *PaymentController) CancelPaymentLink(ctx echo.Context) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusUnauthorized, "unauthorized", "authentication required")
	}

	req, err := types.NewCancelPaymentLinkRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "validation_error", err.Error())
	}

	link, err := c.paymentService.CancelLink(ctx.Request().Context(), actor, req.PaymentLinkId)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.writeError(ctx, http.StatusNotFound, "not_found", "payment link not found")
		case errors.Is(err, service.ErrForbidden):
			return c.writeError(ctx, http.StatusForbidden, "forbidden", err.Error())
		case errors.Is(err, service.ErrInvalidStatus):
			return c.writeError(ctx, http.StatusBadRequest, "invalid_status", err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Cancel payment link failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal_error", "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.LinkToStatusResponse(link))
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, code, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Code: code, Error: message})
}
