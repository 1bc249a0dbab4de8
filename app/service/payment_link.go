package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/ms-go-paylinks/app/entity"
	"github.com/clinicore/ms-go-paylinks/app/factory"
	"github.com/clinicore/ms-go-paylinks/app/provider"
	"github.com/clinicore/ms-go-paylinks/config"
)

type createLinkRequest interface {
	GetClientId() uint64
	GetSessionId() uint64
	GetAmountCents() int64
	GetCurrency() string
	GetDescription() string
	GetPaymentMethod() string
}

// Actor is the authenticated caller as produced by the auth gate.
type Actor struct {
	TherapistID uint64
	Role        string
}

func (a Actor) CanManage(therapistID uint64) bool {
	return a.Role == entity.RoleAdmin || a.TherapistID == therapistID
}

type paymentLinkRepository interface {
	Create(ctx context.Context, link *entity.PaymentLink) error
	FindByLinkID(ctx context.Context, paymentLinkID string) (*entity.PaymentLink, error)
	UpdateCheckout(ctx context.Context, paymentLinkID string, method *string, checkoutURL string, now time.Time) error
	MarkResolved(ctx context.Context, paymentLinkID, newStatus, providerTxnID, callbackJSON string, now time.Time) (bool, error)
	RefreshCallback(ctx context.Context, paymentLinkID, currentStatus, callbackJSON string, now time.Time) (bool, error)
	MarkCanceled(ctx context.Context, paymentLinkID string, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, paymentLinkID string, now time.Time) (bool, error)
	ExpireSweep(ctx context.Context, now time.Time) (int64, error)
}

type therapistRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Therapist, error)
}

type clientRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Client, error)
}

type sessionRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Session, error)
	MarkPaid(ctx context.Context, id uint64, paidAt time.Time) error
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type callbackLogRepository interface {
	Create(ctx context.Context, log *entity.CallbackLog) error
}

type PaymentLinkService struct {
	linkRepo        paymentLinkRepository
	therapistRepo   therapistRepository
	clientRepo      clientRepository
	sessionRepo     sessionRepository
	eventRepo       paymentEventRepository
	callbackLogRepo callbackLogRepository
	providers       *provider.Registry
	cfg             config.PaymentsConfig
	logger          logrus.FieldLogger
}

func NewPaymentLinkService(
	linkRepo paymentLinkRepository,
	therapistRepo therapistRepository,
	clientRepo clientRepository,
	sessionRepo sessionRepository,
	eventRepo paymentEventRepository,
	callbackLogRepo callbackLogRepository,
	providers *provider.Registry,
	cfg config.PaymentsConfig,
) *PaymentLinkService {
	return &PaymentLinkService{
		linkRepo:        linkRepo,
		therapistRepo:   therapistRepo,
		clientRepo:      clientRepo,
		sessionRepo:     sessionRepo,
		eventRepo:       eventRepo,
		callbackLogRepo: callbackLogRepo,
		providers:       providers,
		cfg:             cfg,
		logger:          factory.NewModuleLogger("paylinks-service"),
	}
}

// ActiveProviderName reports which provider checkout creation will use,
// fallback included.
func (s *PaymentLinkService) ActiveProviderName() string {
	return s.providers.Active(s.cfg.ActiveProvider).Name()
}

type CreatedLink struct {
	Link        *entity.PaymentLink
	PaymentLink string
	CheckoutURL string
}

func (s *PaymentLinkService) CreateLink(ctx context.Context, actor Actor, req createLinkRequest) (*CreatedLink, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency()))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if !s.currencySupported(currency) {
		return nil, fmt.Errorf("%w: currency %s is not supported", ErrValidation, currency)
	}
	if req.GetAmountCents() < s.cfg.MinAmountCents || req.GetAmountCents() > s.cfg.MaxAmountCents {
		return nil, fmt.Errorf("%w: amount out of range", ErrValidation)
	}

	client, err := s.clientRepo.FindByID(ctx, req.GetClientId())
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client", ErrNotFound)
	}
	if !actor.CanManage(client.TherapistID) {
		return nil, fmt.Errorf("%w: client belongs to another therapist", ErrForbidden)
	}

	var sessionID *uint64
	if req.GetSessionId() > 0 {
		session, err := s.sessionRepo.FindByID(ctx, req.GetSessionId())
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, fmt.Errorf("%w: session", ErrNotFound)
		}
		if session.ClientID != client.ID {
			return nil, fmt.Errorf("%w: session does not belong to client", ErrValidation)
		}
		id := session.ID
		sessionID = &id
	}

	activeProvider := s.providers.Active(s.cfg.ActiveProvider)

	var method *string
	if m := strings.TrimSpace(req.GetPaymentMethod()); m != "" {
		if !activeProvider.Supports(m) {
			return nil, fmt.Errorf("%w: payment method %s is not supported", ErrValidation, m)
		}
		method = &m
	}

	now := time.Now().UTC()
	link := &entity.PaymentLink{
		PaymentLinkID: uuid.NewString(),
		TherapistID:   client.TherapistID,
		ClientID:      client.ID,
		SessionID:     sessionID,
		AmountCents:   req.GetAmountCents(),
		Currency:      currency,
		Status:        entity.StatusPending,
		Provider:      activeProvider.Name(),
		PaymentMethod: method,
		Description:   strings.TrimSpace(req.GetDescription()),
		ExpiresAt:     now.Add(s.cfg.LinkTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The checkout URL embeds the assigned link id, so the record must
	// be durable before the provider call.
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}

	checkout, err := activeProvider.CreateCheckout(ctx, s.checkoutInput(link, client))
	if err != nil {
		s.logger.WithError(err).WithField("payment_link_id", link.PaymentLinkID).Error("Provider checkout creation failed")
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if err := s.linkRepo.UpdateCheckout(ctx, link.PaymentLinkID, method, checkout.RedirectURL, now); err != nil {
		return nil, err
	}
	link.CheckoutURL = &checkout.RedirectURL

	s.recordEvent(ctx, link.PaymentLinkID, "link_created", nil, entity.StatusPending, nil, nil)

	return &CreatedLink{
		Link:        link,
		PaymentLink: s.cfg.PublicBaseURL + "/pay/" + link.PaymentLinkID,
		CheckoutURL: checkout.RedirectURL,
	}, nil
}

// LinkView is the payer-facing read model for a payment link.
type LinkView struct {
	Link      *entity.PaymentLink
	Therapist *entity.Therapist
	Client    *entity.Client
	Session   *entity.Session
}

// GetLinkView loads the payer view. A pending link past its expiry is
// reported (and persisted) as expired even before the sweep runs.
func (s *PaymentLinkService) GetLinkView(ctx context.Context, paymentLinkID string) (*LinkView, error) {
	link, err := s.linkRepo.FindByLinkID(ctx, paymentLinkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("%w: payment link", ErrNotFound)
	}

	now := time.Now().UTC()
	if link.ExpiredBy(now) {
		if err := s.lazyExpire(ctx, link, now); err != nil {
			return nil, err
		}
	}

	therapist, err := s.therapistRepo.FindByID(ctx, link.TherapistID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRepo.FindByID(ctx, link.ClientID)
	if err != nil {
		return nil, err
	}

	view := &LinkView{Link: link, Therapist: therapist, Client: client}
	if link.SessionID != nil {
		session, err := s.sessionRepo.FindByID(ctx, *link.SessionID)
		if err != nil {
			return nil, err
		}
		view.Session = session
	}

	return view, nil
}

func (s *PaymentLinkService) CancelLink(ctx context.Context, actor Actor, paymentLinkID string) (*entity.PaymentLink, error) {
	link, err := s.linkRepo.FindByLinkID(ctx, paymentLinkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("%w: payment link", ErrNotFound)
	}
	if !actor.CanManage(link.TherapistID) {
		return nil, fmt.Errorf("%w: payment link belongs to another therapist", ErrForbidden)
	}
	if link.Status != entity.StatusPending {
		return nil, fmt.Errorf("%w: payment link is %s", ErrInvalidStatus, link.Status)
	}

	now := time.Now().UTC()
	transitioned, err := s.linkRepo.MarkCanceled(ctx, paymentLinkID, now)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Lost the race against a callback or the sweep.
		current, err := s.linkRepo.FindByLinkID(ctx, paymentLinkID)
		if err != nil {
			return nil, err
		}
		status := "unknown"
		if current != nil {
			status = current.Status
		}
		return nil, fmt.Errorf("%w: payment link is %s", ErrInvalidStatus, status)
	}

	oldStatus := link.Status
	link.Status = entity.StatusCanceled
	link.UpdatedAt = now
	s.recordEvent(ctx, paymentLinkID, "link_canceled", &oldStatus, entity.StatusCanceled, nil, nil)

	return link, nil
}

func (s *PaymentLinkService) lazyExpire(ctx context.Context, link *entity.PaymentLink, now time.Time) error {
	transitioned, err := s.linkRepo.MarkExpired(ctx, link.PaymentLinkID, now)
	if err != nil {
		return err
	}
	if transitioned {
		oldStatus := link.Status
		s.recordEvent(ctx, link.PaymentLinkID, "link_expired", &oldStatus, entity.StatusExpired, nil, nil)
		link.Status = entity.StatusExpired
		link.UpdatedAt = now
		return nil
	}

	// Something else resolved the link first; trust the store.
	current, err := s.linkRepo.FindByLinkID(ctx, link.PaymentLinkID)
	if err != nil {
		return err
	}
	if current != nil {
		*link = *current
	}
	return nil
}

func (s *PaymentLinkService) checkoutInput(link *entity.PaymentLink, client *entity.Client) *provider.CheckoutInput {
	input := &provider.CheckoutInput{
		PaymentLinkID: link.PaymentLinkID,
		AmountCents:   link.AmountCents,
		Currency:      link.Currency,
		Description:   link.Description,
	}
	if link.PaymentMethod != nil {
		input.PaymentMethod = *link.PaymentMethod
	}
	if client != nil {
		input.ClientName = client.FullName
		input.ClientEmail = client.Email
		input.ClientPhone = client.Phone
	}
	return input
}

func (s *PaymentLinkService) recordEvent(ctx context.Context, paymentLinkID, eventType string, oldStatus *string, newStatus string, providerTxnID, payloadJSON *string) {
	err := s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentLinkID: paymentLinkID,
		EventType:     eventType,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		ProviderTxnID: providerTxnID,
		PayloadJSON:   payloadJSON,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("payment_link_id", paymentLinkID).Warn("Failed to record payment event")
	}
}

func (s *PaymentLinkService) currencySupported(currency string) bool {
	for _, supported := range s.cfg.SupportedCurrencies {
		if supported == currency {
			return true
		}
	}
	return false
}
