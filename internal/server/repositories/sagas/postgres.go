package sagas

import (
	"context"
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

func (r *PostgresRepository) Create(ctx context.Context, rec *models.SagaRecord) (*models.SagaRecord, error) {
	query :=
		`INSERT INTO registration_sagas (user_id, payment_id, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, rec.UserID, rec.PaymentID, string(rec.State), rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	rec.UpdatedAt = rec.CreatedAt
	return rec, nil
}

// MarkUploaded records the asset id once the proof is on the asset host.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, id, assetID string) error {
	query := `UPDATE registration_sagas SET state = $2, asset_id = $3, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, string(models.SagaUploaded), assetID)
}

// RecordFailure stores the last compensation error. A non-empty assetID
// marks the proof as still on the asset host.
func (r *PostgresRepository) RecordFailure(ctx context.Context, id, assetID, msg string) error {
	query :=
		`UPDATE registration_sagas
		 SET last_error = $2,
		     asset_id = CASE WHEN $3 = '' THEN asset_id ELSE $3 END,
		     state = CASE WHEN $3 = '' THEN state ELSE $4 END,
		     updated_at = now()
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, msg, assetID, string(models.SagaUploaded))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registration_sagas WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByPaymentID(ctx context.Context, paymentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registration_sagas WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListStale returns unfinished sagas last touched before the cutoff.
func (r *PostgresRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.SagaRecord, error) {
	query :=
		`SELECT id, user_id, payment_id, asset_id, state, last_error, created_at, updated_at
		 FROM registration_sagas
		 WHERE updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sagas: %w", err)
	}
	defer rows.Close()

	var result []*models.SagaRecord
	for rows.Next() {
		var (
			rec   models.SagaRecord
			state string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.PaymentID, &rec.AssetID, &state,
			&rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.State = models.SagaState(state)
		result = append(result, &rec)
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
