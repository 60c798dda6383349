package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/devsoc/devsoc-backend/internal/admin/client"
	"github.com/devsoc/devsoc-backend/internal/admin/config"
	"github.com/devsoc/devsoc-backend/internal/server/models"
)

const actor = "admin-cli"

type adminAPI interface {
	PendingPayments(ctx context.Context) ([]*models.PaymentWithUser, error)
	EventRegistrations(ctx context.Context, eventSlug string) ([]*models.Registration, error)
	LookupRegistration(ctx context.Context, email, eventSlug string) (*models.Registration, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, verifiedBy string) (string, error)
	Settings(ctx context.Context) ([]*client.Setting, error)
	Setting(ctx context.Context, key string) (*client.Setting, error)
	SetSetting(ctx context.Context, key string, value json.RawMessage, description string) (string, error)
	DeleteSetting(ctx context.Context, key string) (string, error)
}

type App struct {
	api adminAPI
	in  io.Reader
	out io.Writer
}

func NewApp(cfg *config.Config) (*App, error) {
	secret := cfg.AdminSecret
	if secret == "" {
		s, err := GetSecret(os.Stdout)
		if err != nil {
			return nil, fmt.Errorf("read admin secret: %w", err)
		}
		secret = s
	}
	if secret == "" {
		return nil, errors.New("admin secret is required")
	}

	return &App{
		api: client.New(cfg.ServerURL, secret, cfg.RequestTimeout),
		in:  os.Stdin,
		out: os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "DevSoc admin console (type 'help' for commands)")
	runREPL(ctx, a, bufio.NewScanner(a.in), a.out)
}
