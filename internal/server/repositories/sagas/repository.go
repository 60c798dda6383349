// Package sagas persists the registration saga journal.
package sagas

import (
	"context"
	"time"

	"github.com/devsoc/devsoc-backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.SagaRecord) (*models.SagaRecord, error)
	MarkUploaded(ctx context.Context, id, assetID string) error
	RecordFailure(ctx context.Context, id, assetID, msg string) error
	Delete(ctx context.Context, id string) error
	DeleteByPaymentID(ctx context.Context, paymentID string) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.SagaRecord, error)
}
