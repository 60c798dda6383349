package settings

import (
	"context"

	"github.com/devsoc/devsoc-backend/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	List(ctx context.Context) ([]*models.Setting, error)
	Upsert(ctx context.Context, s *models.Setting) (created bool, err error)
	Delete(ctx context.Context, key string) error
}
