package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/dbx"
	"github.com/devsoc/devsoc-backend/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `p.id, p.user_id, p.transaction_id, p.screenshot_url, p.screenshot_storage_id,
	p.event_slug, p.event_title, p.amount, p.status, p.created_at, p.verified_at, p.verified_by`

// Create inserts a payment and fills in its generated ID.
func (r *PostgresRepository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	query :=
		`INSERT INTO payments (user_id, transaction_id, screenshot_url, screenshot_storage_id, event_slug, event_title, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		payment.UserID, payment.TransactionID, payment.ScreenshotURL, payment.ScreenshotStorageID,
		payment.EventSlug, payment.EventTitle, payment.Amount, string(payment.Status), payment.CreatedAt).Scan(&payment.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return payment, nil
}

func (r *PostgresRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_id = $1)`, transactionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments p WHERE p.id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// AttachProof stores the uploaded screenshot location on the payment.
func (r *PostgresRepository) AttachProof(ctx context.Context, id, url, storageID string) error {
	query := `UPDATE payments SET screenshot_url = $2, screenshot_storage_id = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, url, storageID)
}

// UpdateStatus sets the verification status. A nil verifiedAt clears the column.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, verifiedAt *time.Time, verifiedBy string) error {
	query := `UPDATE payments SET status = $2, verified_at = $3, verified_by = $4 WHERE id = $1`

	var at sql.NullTime
	if verifiedAt != nil {
		at = sql.NullTime{Time: *verifiedAt, Valid: true}
	}
	by := sql.NullString{String: verifiedBy, Valid: verifiedBy != ""}

	return r.execOne(ctx, query, id, string(status), at, by)
}

// Delete removes the payment. Deleting a missing payment is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByEvent(ctx context.Context, eventSlug string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments p WHERE p.event_slug = $1 ORDER BY p.created_at`

	rows, err := r.db.QueryContext(ctx, query, eventSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to select payments: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByStatusWithUsers returns payments in the given status joined with
// their owners, oldest first.
func (r *PostgresRepository) ListByStatusWithUsers(ctx context.Context, status models.PaymentStatus) ([]*models.PaymentWithUser, error) {
	query := `SELECT ` + paymentColumns + `,
		u.id, u.name, u.roll, u.phone, u.email, u.department, u.year, u.questions,
		u.event_slug, u.event_title, u.registered_at
		FROM payments p
		JOIN users u ON u.id = p.user_id
		WHERE p.status = $1
		ORDER BY p.created_at
		`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select payments: %w", err)
	}
	defer rows.Close()

	var result []*models.PaymentWithUser
	for rows.Next() {
		var (
			p          models.Payment
			u          models.User
			status     string
			verifiedAt sql.NullTime
			verifiedBy sql.NullString
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.TransactionID, &p.ScreenshotURL, &p.ScreenshotStorageID,
			&p.EventSlug, &p.EventTitle, &p.Amount, &status, &p.CreatedAt, &verifiedAt, &verifiedBy,
			&u.ID, &u.Name, &u.Roll, &u.Phone, &u.Email, &u.Department, &u.Year, &u.Questions,
			&u.EventSlug, &u.EventTitle, &u.RegisteredAt)
		if err != nil {
			return nil, err
		}
		fillNullable(&p, status, verifiedAt, verifiedBy)
		u.PaymentID = p.ID
		result = append(result, &models.PaymentWithUser{Payment: p, User: &u})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*models.Payment, error) {
	var (
		p          models.Payment
		status     string
		verifiedAt sql.NullTime
		verifiedBy sql.NullString
	)
	err := s.Scan(&p.ID, &p.UserID, &p.TransactionID, &p.ScreenshotURL, &p.ScreenshotStorageID,
		&p.EventSlug, &p.EventTitle, &p.Amount, &status, &p.CreatedAt, &verifiedAt, &verifiedBy)
	if err != nil {
		return nil, err
	}
	fillNullable(&p, status, verifiedAt, verifiedBy)
	return &p, nil
}

func fillNullable(p *models.Payment, status string, verifiedAt sql.NullTime, verifiedBy sql.NullString) {
	p.Status = models.PaymentStatus(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	p.VerifiedBy = verifiedBy.String
}
