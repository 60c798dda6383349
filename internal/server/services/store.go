package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/dbx"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/events"
	"github.com/devsoc/devsoc-backend/internal/server/models"
	"github.com/devsoc/devsoc-backend/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

const (
	constraintUserEmailEvent = "users_email_event_slug_key"
	constraintTransactionID  = "payments_transaction_id_key"
)

// PendingRegistrationInput holds already validated registrant data.
type PendingRegistrationInput struct {
	Name          string
	Roll          string
	Phone         string
	Email         string
	Department    string
	Year          string
	Questions     string
	EventSlug     string
	EventTitle    string
	TransactionID string
	Amount        decimal.Decimal
}

// PendingRegistration identifies the rows created for one attempt.
type PendingRegistration struct {
	UserID    string
	PaymentID string
	SagaID    string
}

type EmailCheck struct {
	IsRegistered     bool       `json:"isRegistered"`
	RegistrationDate *time.Time `json:"registrationDate,omitempty"`
}

// RegistrationStore owns the users and payments tables. Multi-row writes
// run in a single transaction.
type RegistrationStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   events.Publisher
	log         logging.Logger
	now         func() time.Time
}

func NewRegistrationStore(db *sql.DB, m repomanager.RepositoryManager, publisher events.Publisher, log logging.Logger) *RegistrationStore {
	return &RegistrationStore{
		db:          db,
		repomanager: m,
		publisher:   publisher,
		log:         log.With("module", "store"),
		now:         time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func duplicateRegistration(email string) error {
	return common.NewUserError(common.ErrDuplicateRegistration, fmt.Sprintf(
		"You have already registered for this event with the email %s. Each email can only register once per event.", email))
}

func duplicateTransaction(txID string) error {
	return common.NewUserError(common.ErrDuplicateTransaction, fmt.Sprintf(
		"This transaction ID (%s) has already been used. Please verify your transaction ID or use a different one.", txID))
}

// classifyInsert maps unique violations raised by concurrent inserts to
// the same errors the pre-checks return.
func classifyInsert(err error, email, txID string) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		switch constraint {
		case constraintUserEmailEvent:
			return duplicateRegistration(email)
		case constraintTransactionID:
			return duplicateTransaction(txID)
		}
	}
	return err
}

// CreatePendingRegistration checks for duplicates and creates the user,
// its pending payment and the saga journal row atomically.
func (s *RegistrationStore) CreatePendingRegistration(ctx context.Context, in PendingRegistrationInput) (*PendingRegistration, error) {
	email := normalizeEmail(in.Email)
	now := s.now().UTC()

	var out PendingRegistration

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repomanager.Users(tx)
		paymentsRepo := s.repomanager.Payments(tx)
		sagasRepo := s.repomanager.Sagas(tx)

		_, err := usersRepo.GetByEmailAndEvent(ctx, email, in.EventSlug)
		switch {
		case err == nil:
			return duplicateRegistration(email)
		case !errors.Is(err, common.ErrorNotFound):
			return fmt.Errorf("error checking registration: %w", err)
		}

		exists, err := paymentsRepo.ExistsByTransactionID(ctx, in.TransactionID)
		if err != nil {
			return fmt.Errorf("error checking transaction: %w", err)
		}
		if exists {
			return duplicateTransaction(in.TransactionID)
		}

		user, err := usersRepo.Create(ctx, &models.User{
			Name:         in.Name,
			Roll:         in.Roll,
			Phone:        in.Phone,
			Email:        email,
			Department:   in.Department,
			Year:         in.Year,
			Questions:    in.Questions,
			EventSlug:    in.EventSlug,
			EventTitle:   in.EventTitle,
			RegisteredAt: now,
		})
		if err != nil {
			return classifyInsert(err, email, in.TransactionID)
		}

		payment, err := paymentsRepo.Create(ctx, &models.Payment{
			UserID:        user.ID,
			TransactionID: in.TransactionID,
			EventSlug:     in.EventSlug,
			EventTitle:    in.EventTitle,
			Amount:        in.Amount,
			Status:        models.PaymentPending,
			CreatedAt:     now,
		})
		if err != nil {
			return classifyInsert(err, email, in.TransactionID)
		}

		if err := usersRepo.SetPaymentID(ctx, user.ID, payment.ID); err != nil {
			return fmt.Errorf("error linking payment: %w", err)
		}

		rec, err := sagasRepo.Create(ctx, &models.SagaRecord{
			UserID:    user.ID,
			PaymentID: payment.ID,
			State:     models.SagaCreated,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("error journaling registration: %w", err)
		}

		out = PendingRegistration{UserID: user.ID, PaymentID: payment.ID, SagaID: rec.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// AttachPaymentProof records the uploaded screenshot on the payment and
// closes its saga journal entry in the same transaction.
func (s *RegistrationStore) AttachPaymentProof(ctx context.Context, paymentID, url, storageID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := s.repomanager.Payments(tx).AttachProof(ctx, paymentID, url, storageID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NewUserError(common.ErrPaymentNotFound, "Payment record not found")
			}
			return err
		}
		return s.repomanager.Sagas(tx).DeleteByPaymentID(ctx, paymentID)
	})
}

// DeleteRegistration removes the payment, the user and any saga journal
// row for them. Rows that are already gone are ignored.
func (s *RegistrationStore) DeleteRegistration(ctx context.Context, userID, paymentID string) error {
	return s.deleteRegistration(ctx, userID, paymentID, true)
}

func (s *RegistrationStore) deleteRegistration(ctx context.Context, userID, paymentID string, dropJournal bool) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Payments(tx).Delete(ctx, paymentID); err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).Delete(ctx, userID); err != nil {
			return err
		}
		if !dropJournal {
			return nil
		}
		return s.repomanager.Sagas(tx).DeleteByPaymentID(ctx, paymentID)
	})
}

func (s *RegistrationStore) markUploaded(ctx context.Context, sagaID, assetID string) error {
	return s.repomanager.Sagas(s.db).MarkUploaded(ctx, sagaID, assetID)
}

// recordSagaFailure journals cause. assetID is the proof left on the asset
// host, if any.
func (s *RegistrationStore) recordSagaFailure(ctx context.Context, sagaID, assetID string, cause error) error {
	return s.repomanager.Sagas(s.db).RecordFailure(ctx, sagaID, assetID, cause.Error())
}

func (s *RegistrationStore) GetEventRegistrations(ctx context.Context, eventSlug string) ([]*models.Registration, error) {
	users, err := s.repomanager.Users(s.db).ListByEvent(ctx, eventSlug)
	if err != nil {
		return nil, err
	}
	payments, err := s.repomanager.Payments(s.db).ListByEvent(ctx, eventSlug)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Payment, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
	}

	result := make([]*models.Registration, 0, len(users))
	for _, u := range users {
		r := &models.Registration{User: *u}
		if u.PaymentID != "" {
			r.Payment = byID[u.PaymentID]
		}
		result = append(result, r)
	}
	return result, nil
}

// GetUserRegistration returns nil, nil when the email is not registered
// for the event.
func (s *RegistrationStore) GetUserRegistration(ctx context.Context, email, eventSlug string) (*models.Registration, error) {
	user, err := s.repomanager.Users(s.db).GetByEmailAndEvent(ctx, normalizeEmail(email), eventSlug)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}

	r := &models.Registration{User: *user}
	if user.PaymentID != "" {
		p, err := s.repomanager.Payments(s.db).GetByID(ctx, user.PaymentID)
		switch {
		case err == nil:
			r.Payment = p
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}
	}
	return r, nil
}

func (s *RegistrationStore) CheckEmailRegistration(ctx context.Context, email, eventSlug string) (*EmailCheck, error) {
	if len(email) < 5 {
		return &EmailCheck{}, nil
	}

	user, err := s.repomanager.Users(s.db).GetByEmailAndEvent(ctx, normalizeEmail(email), eventSlug)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &EmailCheck{}, nil
		}
		return nil, err
	}

	at := user.RegisteredAt
	return &EmailCheck{IsRegistered: true, RegistrationDate: &at}, nil
}

// UpdatePaymentStatus moves a payment to status. Only verified payments
// carry a verification time.
func (s *RegistrationStore) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, verifiedBy string) (string, error) {
	if !status.Valid() {
		return "", common.NewUserError(common.ErrValidation, fmt.Sprintf("Invalid payment status '%s'", status))
	}

	var verifiedAt *time.Time
	if status == models.PaymentVerified {
		now := s.now().UTC()
		verifiedAt = &now
	}

	repo := s.repomanager.Payments(s.db)
	if err := repo.UpdateStatus(ctx, paymentID, status, verifiedAt, verifiedBy); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.NewUserError(common.ErrPaymentNotFound, "Payment not found")
		}
		return "", err
	}

	if p, err := repo.GetByID(ctx, paymentID); err == nil {
		s.publish(ctx, events.Event{
			Type:       events.TypePaymentStatusChanged,
			EventSlug:  p.EventSlug,
			UserID:     p.UserID,
			PaymentID:  p.ID,
			Status:     string(status),
			ActedBy:    verifiedBy,
			OccurredAt: s.now().UTC(),
		})
	}

	return fmt.Sprintf("Payment %s successfully", status), nil
}

func (s *RegistrationStore) GetPendingPayments(ctx context.Context) ([]*models.PaymentWithUser, error) {
	return s.repomanager.Payments(s.db).ListByStatusWithUsers(ctx, models.PaymentPending)
}

func (s *RegistrationStore) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn(ctx, "event not published", "type", e.Type, "error", err)
	}
}
