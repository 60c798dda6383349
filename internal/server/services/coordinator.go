package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/saga"
	"github.com/devsoc/devsoc-backend/internal/server/assets"
	"github.com/devsoc/devsoc-backend/internal/server/events"
	"github.com/devsoc/devsoc-backend/internal/server/models"
)

const (
	defaultUploadTimeout = 5 * time.Minute
	registrationFolder   = "event-registrations"
	successMessage       = "Registration successful! Your payment is pending verification."
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ProofUpload is the payment screenshot to store with a registration.
type ProofUpload struct {
	FileName    string
	Body        io.Reader
	Size        int64
	ContentType string
}

type RegisterInput struct {
	PendingRegistrationInput
	Proof ProofUpload
}

type RegisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Coordinator runs the registration saga: pending rows, proof upload and
// linking the proof to the payment. A failed attempt leaves no rows and no
// uploaded object behind.
type Coordinator struct {
	store         *RegistrationStore
	assets        assets.Host
	publisher     events.Publisher
	log           logging.Logger
	now           func() time.Time
	uploadTimeout time.Duration
}

func NewCoordinator(store *RegistrationStore, host assets.Host, publisher events.Publisher, log logging.Logger) *Coordinator {
	return &Coordinator{
		store:         store,
		assets:        host,
		publisher:     publisher,
		log:           log.With("module", "coordinator"),
		now:           time.Now,
		uploadTimeout: defaultUploadTimeout,
	}
}

// SetUploadTimeout bounds the proof upload. It must stay below the
// reconciler's stale threshold so a slow upload is never swept while the
// request is still running.
func (c *Coordinator) SetUploadTimeout(d time.Duration) {
	if d > 0 {
		c.uploadTimeout = d
	}
}

// StorageName builds the object name for an uploaded proof.
func StorageName(at time.Time, fileName string) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), whitespaceRun.ReplaceAllString(fileName, "-"))
}

func (c *Coordinator) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if !c.assets.Configured() {
		return nil, common.ErrConfiguration
	}

	in.Email = normalizeEmail(in.Email)
	log := c.log.With("event_slug", in.EventSlug)

	var (
		pending      *PendingRegistration
		asset        *assets.Asset
		assetOrphan  bool
		journalAlive bool
	)

	s := saga.New("register", log).
		AddStep(saga.Step{
			Name: "create-pending",
			Do: func(ctx context.Context) error {
				p, err := c.store.CreatePendingRegistration(ctx, in.PendingRegistrationInput)
				if err != nil {
					return err
				}
				pending = p
				journalAlive = true
				return nil
			},
			Compensate: func(ctx context.Context) error {
				// Keep the journal row while an uploaded object still needs removal.
				if err := c.store.deleteRegistration(ctx, pending.UserID, pending.PaymentID, !assetOrphan); err != nil {
					return err
				}
				journalAlive = assetOrphan
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "upload-proof",
			Do: func(ctx context.Context) error {
				uctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
				defer cancel()

				a, err := c.assets.Upload(uctx, assets.UploadInput{
					Folder:      registrationFolder + "/" + in.EventSlug,
					Name:        StorageName(c.now(), in.Proof.FileName),
					Body:        in.Proof.Body,
					Size:        in.Proof.Size,
					ContentType: in.Proof.ContentType,
					Tags: map[string]string{
						"category": "event-registration",
						"event":    in.EventSlug,
					},
				})
				if err != nil {
					return fmt.Errorf("%w: %w", common.ErrAssetHost, err)
				}
				asset = a
				if err := c.store.markUploaded(ctx, pending.SagaID, a.ID); err != nil {
					log.Warn(ctx, "saga journal not updated", "saga_id", pending.SagaID, "error", err)
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if err := c.assets.Delete(ctx, asset.ID); err != nil {
					assetOrphan = true
					return err
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "link-proof",
			Do: func(ctx context.Context) error {
				return c.store.AttachPaymentProof(ctx, pending.PaymentID, asset.URL, asset.ID)
			},
		})

	if err := s.Execute(ctx); err != nil {
		var se *saga.Error
		if errors.As(err, &se) && se.Compensation != nil && journalAlive {
			var orphanID string
			if assetOrphan {
				orphanID = asset.ID
			}
			if jerr := c.store.recordSagaFailure(context.WithoutCancel(ctx), pending.SagaID, orphanID, se.Compensation); jerr != nil {
				log.Error(ctx, "saga failure not journaled", "saga_id", pending.SagaID, "error", jerr)
			}
		}
		log.Warn(ctx, "registration failed", "error", err)
		return nil, err
	}

	log.Info(ctx, "registration stored", "user_id", pending.UserID, "payment_id", pending.PaymentID)

	if err := c.publisher.Publish(ctx, events.Event{
		Type:       events.TypeRegistrationCreated,
		EventSlug:  in.EventSlug,
		UserID:     pending.UserID,
		PaymentID:  pending.PaymentID,
		Email:      in.Email,
		Status:     string(models.PaymentPending),
		OccurredAt: c.now().UTC(),
	}); err != nil {
		log.Warn(ctx, "event not published", "type", events.TypeRegistrationCreated, "error", err)
	}

	return &RegisterResult{Success: true, Message: successMessage}, nil
}
