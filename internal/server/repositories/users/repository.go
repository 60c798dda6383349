package users

import (
	"context"

	"github.com/devsoc/devsoc-backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	SetPaymentID(ctx context.Context, userID, paymentID string) error
	Delete(ctx context.Context, id string) error
	GetByEmailAndEvent(ctx context.Context, email, eventSlug string) (*models.User, error)
	ListByEvent(ctx context.Context, eventSlug string) ([]*models.User, error)
}
