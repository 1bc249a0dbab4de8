package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/clinicore/ms-go-paylinks/app/entity"
)

var (
	ErrPaymentLinkNotFound      = errors.New("payment link not found")
	ErrPaymentLinkAlreadyExists = errors.New("payment link already exists")
)

const paymentLinkColumns = `id, payment_link_id, therapist_id, client_id, session_id,
		amount_cents, currency, status, provider, payment_method, checkout_url,
		provider_txn_id, callback_json, description, expires_at, created_at, updated_at`

type PaymentLinkRepository struct {
	db DBTX
}

func NewPaymentLinkRepository(db DBTX) *PaymentLinkRepository {
	return &PaymentLinkRepository{db: db}
}

func (r *PaymentLinkRepository) Create(ctx context.Context, link *entity.PaymentLink) error {
	query := `
		INSERT INTO payment_links (
			payment_link_id, therapist_id, client_id, session_id,
			amount_cents, currency, status, provider, payment_method, checkout_url,
			provider_txn_id, callback_json, description, expires_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		link.PaymentLinkID,
		link.TherapistID,
		link.ClientID,
		nullableUint64Value(link.SessionID),
		link.AmountCents,
		link.Currency,
		link.Status,
		link.Provider,
		nullableStringValue(link.PaymentMethod),
		nullableStringValue(link.CheckoutURL),
		nullableStringValue(link.ProviderTxnID),
		nullableStringValue(link.CallbackJSON),
		link.Description,
		link.ExpiresAt,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentLinkAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = uint64(id)
	return nil
}

func (r *PaymentLinkRepository) FindByLinkID(ctx context.Context, paymentLinkID string) (*entity.PaymentLink, error) {
	query := `
		SELECT ` + paymentLinkColumns + `
		FROM payment_links
		WHERE payment_link_id = ?
		LIMIT 1
	`

	link := &entity.PaymentLink{}
	if err := scanPaymentLink(r.db.QueryRowContext(ctx, query, paymentLinkID), link); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return link, nil
}

// UpdateCheckout persists a provider checkout URL and the chosen
// payment method. The pending guard keeps a terminal record's checkout
// immutable even if a stale request races the callback.
func (r *PaymentLinkRepository) UpdateCheckout(ctx context.Context, paymentLinkID string, method *string, checkoutURL string, now time.Time) error {
	query := `
		UPDATE payment_links
		SET payment_method = ?, checkout_url = ?, updated_at = ?
		WHERE payment_link_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, nullableStringValue(method), checkoutURL, now, paymentLinkID, entity.StatusPending)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentLinkNotFound
	}
	return nil
}

// MarkResolved attempts the pending -> paid|failed transition. The
// status guard makes callback replays and racing cancels lose cleanly:
// the returned bool reports whether this call performed the
// transition. provider_txn_id is only ever written once.
func (r *PaymentLinkRepository) MarkResolved(ctx context.Context, paymentLinkID, newStatus, providerTxnID, callbackJSON string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_links
		SET status = ?, provider_txn_id = COALESCE(provider_txn_id, ?), callback_json = ?, updated_at = ?
		WHERE payment_link_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, providerTxnID, callbackJSON, now, paymentLinkID, entity.StatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RefreshCallback re-applies callback data on an idempotent replay
// without touching the already-terminal status.
func (r *PaymentLinkRepository) RefreshCallback(ctx context.Context, paymentLinkID, currentStatus, callbackJSON string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_links
		SET callback_json = ?, updated_at = ?
		WHERE payment_link_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, callbackJSON, now, paymentLinkID, currentStatus)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentLinkRepository) MarkCanceled(ctx context.Context, paymentLinkID string, now time.Time) (bool, error) {
	return r.transitionFromPending(ctx, paymentLinkID, entity.StatusCanceled, now)
}

func (r *PaymentLinkRepository) MarkExpired(ctx context.Context, paymentLinkID string, now time.Time) (bool, error) {
	return r.transitionFromPending(ctx, paymentLinkID, entity.StatusExpired, now)
}

func (r *PaymentLinkRepository) transitionFromPending(ctx context.Context, paymentLinkID, newStatus string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_links
		SET status = ?, updated_at = ?
		WHERE payment_link_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, now, paymentLinkID, entity.StatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExpireSweep bulk-transitions stale pending links to expired. A
// single conditional UPDATE, so a link paid between read and write
// can never be swept.
func (r *PaymentLinkRepository) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE payment_links
		SET status = ?, updated_at = ?
		WHERE status = ? AND expires_at < ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.StatusExpired, now, entity.StatusPending, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentLink(scan rowScanner, link *entity.PaymentLink) error {
	var sessionID sql.NullInt64
	var paymentMethod sql.NullString
	var checkoutURL sql.NullString
	var providerTxnID sql.NullString
	var callbackJSON sql.NullString

	err := scan.Scan(
		&link.ID,
		&link.PaymentLinkID,
		&link.TherapistID,
		&link.ClientID,
		&sessionID,
		&link.AmountCents,
		&link.Currency,
		&link.Status,
		&link.Provider,
		&paymentMethod,
		&checkoutURL,
		&providerTxnID,
		&callbackJSON,
		&link.Description,
		&link.ExpiresAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return err
	}

	link.SessionID = uint64PtrFromNull(sessionID)
	link.PaymentMethod = stringPtrFromNull(paymentMethod)
	link.CheckoutURL = stringPtrFromNull(checkoutURL)
	link.ProviderTxnID = stringPtrFromNull(providerTxnID)
	link.CallbackJSON = stringPtrFromNull(callbackJSON)

	return nil
}
