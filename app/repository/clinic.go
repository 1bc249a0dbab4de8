package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clinicore/ms-go-paylinks/app/entity"
)

// Read-mostly repositories over the CRM collaborator tables. The only
// write this service performs outside payment_links is the session
// paid flag.

type TherapistRepository struct {
	db DBTX
}

func NewTherapistRepository(db DBTX) *TherapistRepository {
	return &TherapistRepository{db: db}
}

func (r *TherapistRepository) FindByID(ctx context.Context, id uint64) (*entity.Therapist, error) {
	query := `SELECT id, display_name, logo_url FROM therapists WHERE id = ? LIMIT 1`

	therapist := &entity.Therapist{}
	var logoURL sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&therapist.ID, &therapist.DisplayName, &logoURL)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	therapist.LogoURL = stringPtrFromNull(logoURL)

	return therapist, nil
}

type ClientRepository struct {
	db DBTX
}

func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) FindByID(ctx context.Context, id uint64) (*entity.Client, error) {
	query := `SELECT id, therapist_id, full_name, email, phone FROM clients WHERE id = ? LIMIT 1`

	client := &entity.Client{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.TherapistID,
		&client.FullName,
		&client.Email,
		&client.Phone,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return client, nil
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) FindByID(ctx context.Context, id uint64) (*entity.Session, error) {
	query := `SELECT id, client_id, scheduled_at, paid, paid_at FROM sessions WHERE id = ? LIMIT 1`

	session := &entity.Session{}
	var paidAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.ClientID,
		&session.ScheduledAt,
		&session.Paid,
		&paidAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	session.PaidAt = timePtrFromNull(paidAt)

	return session, nil
}

func (r *SessionRepository) MarkPaid(ctx context.Context, id uint64, paidAt time.Time) error {
	query := `UPDATE sessions SET paid = 1, paid_at = ? WHERE id = ? AND paid = 0`

	_, err := r.db.ExecContext(ctx, query, paidAt, id)
	return err
}
