package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	query := `SELECT key, value, description, updated_at, updated_by FROM settings WHERE key = $1`

	s, err := scanSetting(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Setting, error) {
	query := `SELECT key, value, description, updated_at, updated_by FROM settings ORDER BY key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select settings: %w", err)
	}
	defer rows.Close()

	var result []*models.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts or replaces a setting and reports whether the row is new.
// xmax is zero only for freshly inserted tuples.
func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Setting) (bool, error) {
	query :=
		`INSERT INTO settings (key, value, description, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value,
		     description = EXCLUDED.description,
		     updated_at = EXCLUDED.updated_at,
		     updated_by = EXCLUDED.updated_by
		 RETURNING (xmax = 0)
		 `

	var created bool
	err := r.db.QueryRowContext(ctx, query,
		s.Key, s.Value, nullString(s.Description), s.UpdatedAt, nullString(s.UpdatedBy)).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
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

func scanSetting(sc scanner) (*models.Setting, error) {
	var (
		s           models.Setting
		description sql.NullString
		updatedBy   sql.NullString
	)
	if err := sc.Scan(&s.Key, &s.Value, &description, &s.UpdatedAt, &updatedBy); err != nil {
		return nil, err
	}
	s.Description = description.String
	s.UpdatedBy = updatedBy.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
