package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/dbx"
	"github.com/devsoc/devsoc-backend/internal/server/models"
)

// PostgresRepository implements registrant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, roll, phone, email, department, year, questions, event_slug, event_title, payment_id, registered_at`

// Create inserts the user and fills in the generated ID.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (name, roll, phone, email, department, year, questions, event_slug, event_title, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Name, user.Roll, user.Phone, user.Email, user.Department, user.Year,
		user.Questions, user.EventSlug, user.EventTitle, user.RegisteredAt).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// SetPaymentID links the user to its payment row.
func (r *PostgresRepository) SetPaymentID(ctx context.Context, userID, paymentID string) error {
	query := `UPDATE users SET payment_id = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, userID, paymentID)
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

// Delete removes the user. Deleting a missing user is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByEmailAndEvent looks a user up by normalized email within one event.
func (r *PostgresRepository) GetByEmailAndEvent(ctx context.Context, email, eventSlug string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE email = $1 AND event_slug = $2
		 `

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email, eventSlug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// ListByEvent returns every registrant of an event, oldest first.
func (r *PostgresRepository) ListByEvent(ctx context.Context, eventSlug string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE event_slug = $1
		 ORDER BY registered_at
		 `

	rows, err := r.db.QueryContext(ctx, query, eventSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u         models.User
		paymentID sql.NullString
	)
	err := s.Scan(&u.ID, &u.Name, &u.Roll, &u.Phone, &u.Email, &u.Department, &u.Year,
		&u.Questions, &u.EventSlug, &u.EventTitle, &paymentID, &u.RegisteredAt)
	if err != nil {
		return nil, err
	}
	u.PaymentID = paymentID.String
	return &u, nil
}
