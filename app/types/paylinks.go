package types

import (
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxDescriptionLength = 500

var knownPaymentMethods = map[string]bool{
	"credit": true,
	"bit":    true,
	"gpay":   true,
	"apay":   true,
	"all":    true,
}

type CreatePaymentLinkRequest struct {
	ClientId      uint64 `json:"client_id"`
	SessionId     uint64 `json:"session_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	PaymentMethod string `json:"payment_method"`

	amountCents int64
}

func NewCreatePaymentLinkRequestFromContext(ctx echo.Context) (*CreatePaymentLinkRequest, error) {
	var body CreatePaymentLinkRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Amount = strings.TrimSpace(body.Amount)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Description = strings.TrimSpace(body.Description)
	body.PaymentMethod = strings.ToLower(strings.TrimSpace(body.PaymentMethod))

	return &body, nil
}

func (r *CreatePaymentLinkRequest) Validate() error {
	if r.ClientId == 0 {
		return errors.New("client_id is required")
	}
	if r.Amount == "" {
		return errors.New("amount is required")
	}
	amount, err := strconv.ParseFloat(r.Amount, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return errors.New("amount must be a decimal number")
	}
	if amount <= 0 {
		return errors.New("amount must be > 0")
	}
	r.amountCents = int64(math.Round(amount * 100))
	if r.Currency != "" && len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if len(r.Description) > maxDescriptionLength {
		return errors.New("description is too long")
	}
	if r.PaymentMethod != "" && !knownPaymentMethods[r.PaymentMethod] {
		return errors.New("payment_method must be credit, bit, gpay, apay, or all")
	}
	return nil
}

func (r *CreatePaymentLinkRequest) GetClientId() uint64      { return r.ClientId }
func (r *CreatePaymentLinkRequest) GetSessionId() uint64     { return r.SessionId }
func (r *CreatePaymentLinkRequest) GetAmountCents() int64    { return r.amountCents }
func (r *CreatePaymentLinkRequest) GetCurrency() string      { return r.Currency }
func (r *CreatePaymentLinkRequest) GetDescription() string   { return r.Description }
func (r *CreatePaymentLinkRequest) GetPaymentMethod() string { return r.PaymentMethod }

type StartCheckoutRequest struct {
	PaymentLinkId string `json:"payment_link_id"`
	PaymentMethod string `json:"payment_method"`
}

func NewStartCheckoutRequestFromContext(ctx echo.Context) (*StartCheckoutRequest, error) {
	var body StartCheckoutRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.PaymentLinkId = strings.TrimSpace(body.PaymentLinkId)
	body.PaymentMethod = strings.ToLower(strings.TrimSpace(body.PaymentMethod))
	return &body, nil
}

func (r *StartCheckoutRequest) Validate() error {
	if r.PaymentLinkId == "" {
		return errors.New("payment_link_id is required")
	}
	if r.PaymentMethod != "" && !knownPaymentMethods[r.PaymentMethod] {
		return errors.New("payment_method must be credit, bit, gpay, apay, or all")
	}
	return nil
}

func (r *StartCheckoutRequest) GetPaymentLinkId() string { return r.PaymentLinkId }
func (r *StartCheckoutRequest) GetPaymentMethod() string { return r.PaymentMethod }

type CancelPaymentLinkRequest struct {
	PaymentLinkId string `json:"payment_link_id"`
}

func NewCancelPaymentLinkRequestFromContext(ctx echo.Context) (*CancelPaymentLinkRequest, error) {
	var body CancelPaymentLinkRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.PaymentLinkId = strings.TrimSpace(body.PaymentLinkId)
	return &body, nil
}

func (r *CancelPaymentLinkRequest) Validate() error {
	if r.PaymentLinkId == "" {
		return errors.New("payment_link_id is required")
	}
	return nil
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

type CallbackAckResponse struct {
	OK bool `json:"ok"`
}

type CreatePaymentLinkResponse struct {
	PaymentLinkId string `json:"payment_link_id"`
	PaymentLink   string `json:"payment_link"`
	CheckoutUrl   string `json:"checkout_url"`
	ExpiresAt     string `json:"expires_at"`
}

type StartCheckoutResponse struct {
	CheckoutUrl string `json:"checkout_url"`
}

type PaymentLinkStatusResponse struct {
	PaymentLinkId string `json:"payment_link_id"`
	Status        string `json:"status"`
}

type SessionView struct {
	SessionId   uint64 `json:"session_id"`
	ScheduledAt string `json:"scheduled_at"`
	Paid        bool   `json:"paid"`
}

type PaymentLinkView struct {
	PaymentLinkId    string       `json:"payment_link_id"`
	TherapistName    string       `json:"therapist_name"`
	TherapistLogoUrl string       `json:"therapist_logo_url,omitempty"`
	ClientName       string       `json:"client_name"`
	Amount           string       `json:"amount"`
	Currency         string       `json:"currency"`
	Description      string       `json:"description,omitempty"`
	Status           string       `json:"status"`
	ExpiresAt        string       `json:"expires_at"`
	Session          *SessionView `json:"session,omitempty"`
}
