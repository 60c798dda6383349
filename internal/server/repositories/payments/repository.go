package payments

import (
	"context"
	"time"

	"github.com/devsoc/devsoc-backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	AttachProof(ctx context.Context, id, url, storageID string) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, verifiedAt *time.Time, verifiedBy string) error
	Delete(ctx context.Context, id string) error
	ListByEvent(ctx context.Context, eventSlug string) ([]*models.Payment, error)
	ListByStatusWithUsers(ctx context.Context, status models.PaymentStatus) ([]*models.PaymentWithUser, error)
}
