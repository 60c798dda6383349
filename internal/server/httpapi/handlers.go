package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/models"
	"github.com/devsoc/devsoc-backend/internal/server/ratelimit"
	"github.com/devsoc/devsoc-backend/internal/server/services"
	"github.com/devsoc/devsoc-backend/internal/server/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	sniffLen        = 512
	formOverhead    = 1 << 20
	defaultVerifier = "admin"
)

type Registrar interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
}

type RegistrationReader interface {
	CheckEmailRegistration(ctx context.Context, email, eventSlug string) (*services.EmailCheck, error)
	GetEventRegistrations(ctx context.Context, eventSlug string) ([]*models.Registration, error)
	GetUserRegistration(ctx context.Context, email, eventSlug string) (*models.Registration, error)
	GetPendingPayments(ctx context.Context) ([]*models.PaymentWithUser, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, verifiedBy string) (string, error)
}

type SettingsManager interface {
	Get(ctx context.Context, key string) (*services.SettingView, error)
	List(ctx context.Context) ([]*services.SettingView, error)
	Upsert(ctx context.Context, key, value, description, updatedBy string) (string, error)
	Delete(ctx context.Context, key string) (string, error)
	PaymentSettings(ctx context.Context, eventSlug string) (any, error)
	CommunityLinks(ctx context.Context) (any, error)
}

type Handler struct {
	registrar     Registrar
	registrations RegistrationReader
	settings      SettingsManager
	limiter       ratelimit.Limiter
	validator     *validation.Validator
	adminSecret   string
	logger        logging.Logger
}

func (h *Handler) RegisterEvent(c *gin.Context) {
	ctx := c.Request.Context()

	allowed, err := h.limiter.Allow(ctx, clientIP(c))
	if err != nil {
		h.logger.Error(ctx, "rate limiter failed", "error", err)
		abortWith(c, http.StatusInternalServerError, msgGeneric)
		return
	}
	if !allowed {
		abortWith(c, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, validation.MaxProofSize+formOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			abortWith(c, http.StatusBadRequest, "File size must be less than 5MB. Please compress your image and try again.")
		case errors.Is(err, http.ErrMissingFile):
			abortWith(c, http.StatusBadRequest, "No file provided")
		default:
			abortWith(c, http.StatusBadRequest, "Invalid form data")
		}
		return
	}

	form := &validation.RegistrationForm{
		Name:          c.PostForm("name"),
		Roll:          c.PostForm("roll"),
		Phone:         c.PostForm("phone"),
		Email:         c.PostForm("email"),
		Department:    c.PostForm("department"),
		Year:          c.PostForm("year"),
		Questions:     c.PostForm("questions"),
		EventSlug:     c.PostForm("eventSlug"),
		EventTitle:    c.PostForm("eventTitle"),
		TransactionID: c.PostForm("transactionId"),
	}
	if raw := strings.TrimSpace(c.PostForm("amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			abortWith(c, http.StatusBadRequest, "Amount must be a number")
			return
		}
		form.Amount = amount
	}

	if err := h.validator.Registration(form); err != nil {
		status, msg := registrationError(err)
		abortWith(c, status, msg)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error(ctx, "failed to open uploaded file", "error", err)
		abortWith(c, http.StatusInternalServerError, msgGeneric)
		return
	}
	defer file.Close()

	head, err := readHead(file)
	if err != nil {
		h.logger.Error(ctx, "failed to read uploaded file", "error", err)
		abortWith(c, http.StatusInternalServerError, msgGeneric)
		return
	}

	contentType, err := h.validator.Proof(&validation.ProofFile{
		Name:         fileHeader.Filename,
		Size:         fileHeader.Size,
		DeclaredType: fileHeader.Header.Get("Content-Type"),
		Head:         head,
	})
	if err != nil {
		status, msg := registrationError(err)
		abortWith(c, status, msg)
		return
	}

	result, err := h.registrar.Register(ctx, services.RegisterInput{
		PendingRegistrationInput: services.PendingRegistrationInput{
			Name:          form.Name,
			Roll:          form.Roll,
			Phone:         form.Phone,
			Email:         form.Email,
			Department:    form.Department,
			Year:          form.Year,
			Questions:     form.Questions,
			EventSlug:     form.EventSlug,
			EventTitle:    form.EventTitle,
			TransactionID: form.TransactionID,
			Amount:        form.Amount,
		},
		Proof: services.ProofUpload{
			FileName:    validation.SanitizeFileName(fileHeader.Filename),
			Body:        file,
			Size:        fileHeader.Size,
			ContentType: contentType,
		},
	})
	if err != nil {
		status, msg := registrationError(err)
		abortWith(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, result)
}

// readHead reads the first bytes for sniffing and rewinds the file.
func readHead(f multipart.File) ([]byte, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return head[:n], nil
}

func (h *Handler) CheckRegistration(c *gin.Context) {
	eventSlug := c.Query("eventSlug")
	if eventSlug == "" {
		abortWith(c, http.StatusBadRequest, "Event slug is required")
		return
	}

	res, err := h.registrations.CheckEmailRegistration(c.Request.Context(), c.Query("email"), eventSlug)
	if err != nil {
		h.fail(c, err, "Failed to check registration")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PaymentSettings(c *gin.Context) {
	v, err := h.settings.PaymentSettings(c.Request.Context(), c.Query("eventSlug"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve payment settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": v})
}

func (h *Handler) CommunityLinks(c *gin.Context) {
	v, err := h.settings.CommunityLinks(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to retrieve community links")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": v})
}

func (h *Handler) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()

	if key := c.Query("key"); key != "" {
		setting, err := h.settings.Get(ctx, key)
		if err != nil {
			h.fail(c, err, "Failed to retrieve settings")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": setting})
		return
	}

	all, err := h.settings.List(ctx)
	if err != nil {
		h.fail(c, err, "Failed to retrieve settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": all})
}

type upsertSettingRequest struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
}

func (h *Handler) UpsertSetting(c *gin.Context) {
	var req upsertSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Key == "" {
		abortWith(c, http.StatusBadRequest, "Setting key is required")
		return
	}
	if len(req.Value) == 0 {
		abortWith(c, http.StatusBadRequest, "Setting value is required")
		return
	}

	// Strings are stored as-is, anything else as its JSON text.
	value := string(req.Value)
	var s string
	if err := json.Unmarshal(req.Value, &s); err == nil {
		value = s
	}

	msg, err := h.settings.Upsert(c.Request.Context(), req.Key, value, req.Description, c.GetString(adminActorKey))
	if err != nil {
		h.fail(c, err, "Failed to update setting")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) DeleteSetting(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		abortWith(c, http.StatusBadRequest, "Setting key is required")
		return
	}

	msg, err := h.settings.Delete(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err, "Failed to delete setting")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) EventRegistrations(c *gin.Context) {
	eventSlug := c.Query("eventSlug")
	if eventSlug == "" {
		abortWith(c, http.StatusBadRequest, "Event slug is required")
		return
	}

	regs, err := h.registrations.GetEventRegistrations(c.Request.Context(), eventSlug)
	if err != nil {
		h.fail(c, err, "Failed to retrieve registrations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": regs})
}

func (h *Handler) LookupRegistration(c *gin.Context) {
	email, eventSlug := c.Query("email"), c.Query("eventSlug")
	if email == "" || eventSlug == "" {
		abortWith(c, http.StatusBadRequest, "Email and event slug are required")
		return
	}

	reg, err := h.registrations.GetUserRegistration(c.Request.Context(), email, eventSlug)
	if err != nil {
		h.fail(c, err, "Failed to retrieve registration")
		return
	}
	if reg == nil {
		abortWith(c, http.StatusNotFound, "Registration not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": reg})
}

func (h *Handler) PendingPayments(c *gin.Context) {
	payments, err := h.registrations.GetPendingPayments(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to retrieve pending payments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": payments})
}

type paymentStatusRequest struct {
	Status     string `json:"status"`
	VerifiedBy string `json:"verifiedBy"`
}

func (h *Handler) UpdatePaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status == "" {
		abortWith(c, http.StatusBadRequest, "Status is required")
		return
	}
	if req.VerifiedBy == "" {
		req.VerifiedBy = defaultVerifier
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWith(c, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	msg, err := h.registrations.UpdatePaymentStatus(c.Request.Context(), id.String(), models.PaymentStatus(req.Status), req.VerifiedBy)
	if err != nil {
		h.fail(c, err, "Failed to update payment status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	status, msg := adminError(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), fallback, "error", err)
	}
	abortWith(c, status, msg)
}
