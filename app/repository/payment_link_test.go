package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"

	"github.com/clinicore/ms-go-paylinks/app/entity"
)

func newLinkRepoMock(t *testing.T) (*PaymentLinkRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPaymentLinkRepository(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateInsertsLinkAndAssignsID(t *testing.T) {
	repo, mock := newLinkRepoMock(t)

	now := time.Now().UTC()
	sessionID := uint64(5)
	link := &entity.PaymentLink{
		PaymentLinkID: "link-1",
		TherapistID:   10,
		ClientID:      1,
		SessionID:     &sessionID,
		AmountCents:   15000,
		Currency:      "ILS",
		Status:        entity.StatusPending,
		Provider:      "tranzila",
		Description:   "therapy session",
		ExpiresAt:     now.Add(time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_links")).
		WithArgs(
			"link-1", uint64(10), uint64(1), sessionID,
			int64(15000), "ILS", entity.StatusPending, "tranzila", nil, nil,
			nil, nil, "therapy session", link.ExpiresAt, now, now,
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	if err := repo.Create(context.Background(), link); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if link.ID != 7 {
		t.Fatalf("expected assigned id 7, got %d", link.ID)
	}
	expectationsMet(t, mock)
}

func TestCreateDuplicateLinkID(t *testing.T) {
	repo, mock := newLinkRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_links")).
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), &entity.PaymentLink{PaymentLinkID: "link-1"})
	if !errors.Is(err, ErrPaymentLinkAlreadyExists) {
		t.Fatalf("expected ErrPaymentLinkAlreadyExists, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestFindByLinkIDScansNullableColumns(t *testing.T) {
	repo, mock := newLinkRepoMock(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "payment_link_id", "therapist_id", "client_id", "session_id",
		"amount_cents", "currency", "status", "provider", "payment_method", "checkout_url",
		"provider_txn_id", "callback_json", "description", "expires_at", "created_at", "updated_at",
	}).AddRow(
		7, "link-1", 10, 1, nil,
		15000, "ILS", entity.StatusPaid, "tranzila", "credit", "https://pay.example/x",
		"txn-1", `{"sum":"150.00"}`, "therapy session", now.Add(time.Hour), now, now,
	)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("link-1").
		WillReturnRows(rows)

	link, err := repo.FindByLinkID(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if link == nil {
		t.Fatal("expected a link")
	}
	if link.SessionID != nil {
		t.Fatal("expected nil session id")
	}
	if link.PaymentMethod == nil || *link.PaymentMethod != "credit" {
		t.Fatalf("unexpected payment method: %v", link.PaymentMethod)
	}
	if link.ProviderTxnID == nil || *link.ProviderTxnID != "txn-1" {
		t.Fatalf("unexpected provider txn id: %v", link.ProviderTxnID)
	}
	expectationsMet(t, mock)
}

func TestFindByLinkIDNotFoundReturnsNil(t *testing.T) {
	repo, mock := newLinkRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	link, err := repo.FindByLinkID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != nil {
		t.Fatal("expected nil for a missing link")
	}
	expectationsMet(t, mock)
}

func TestUpdateCheckoutGuardsPendingStatus(t *testing.T) {
	repo, mock := newLinkRepoMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_links SET payment_method = ?, checkout_url = ?, updated_at = ? WHERE payment_link_id = ? AND status = ?")).
		WithArgs(nil, "https://pay.example/x", now, "link-1", entity.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCheckout(context.Background(), "link-1", nil, "https://pay.example/x", now)
	if !errors.Is(err, ErrPaymentLinkNotFound) {
		t.Fatalf("expected ErrPaymentLinkNotFound for a non-pending link, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestMarkResolvedTransitionsOnlyPending(t *testing.T) {
	repo, mock := newLinkRepoMock(t)
	now := time.Now().UTC()

	query := regexp.QuoteMeta("UPDATE payment_links SET status = ?, provider_txn_id = COALESCE(provider_txn_id, ?), callback_json = ?, updated_at = ? WHERE payment_link_id = ? AND status = ?")

	mock.ExpectExec(query).
		WithArgs(entity.StatusPaid, "txn-1", "{}", now, "link-1", entity.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transitioned, err := repo.MarkResolved(context.Background(), "link-1", entity.StatusPaid, "txn-1", "{}", now)
	if err != nil {
		t.Fatalf("mark resolved failed: %v", err)
	}
	if !transitioned {
		t.Fatal("expected the transition to be reported")
	}

	// Replay: the guard matches no rows.
	mock.ExpectExec(query).
		WithArgs(entity.StatusPaid, "txn-1", "{}", now, "link-1", entity.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err = repo.MarkResolved(context.Background(), "link-1", entity.StatusPaid, "txn-1", "{}", now)
	if err != nil {
		t.Fatalf("replayed mark resolved failed: %v", err)
	}
	if transitioned {
		t.Fatal("expected the replay to lose the guard")
	}
	expectationsMet(t, mock)
}

func TestMarkCanceledUsesPendingGuard(t *testing.T) {
	repo, mock := newLinkRepoMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_links SET status = ?, updated_at = ? WHERE payment_link_id = ? AND status = ?")).
		WithArgs(entity.StatusCanceled, now, "link-1", entity.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transitioned, err := repo.MarkCanceled(context.Background(), "link-1", now)
	if err != nil {
		t.Fatalf("mark canceled failed: %v", err)
	}
	if !transitioned {
		t.Fatal("expected the transition to be reported")
	}
	expectationsMet(t, mock)
}

func TestExpireSweepCountsExpiredRows(t *testing.T) {
	repo, mock := newLinkRepoMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_links SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ?")).
		WithArgs(entity.StatusExpired, now, entity.StatusPending, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	expired, err := repo.ExpireSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("expire sweep failed: %v", err)
	}
	if expired != 3 {
		t.Fatalf("expected 3 expired links, got %d", expired)
	}
	expectationsMet(t, mock)
}
