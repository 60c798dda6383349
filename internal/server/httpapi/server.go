// Package httpapi exposes the registration service over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/logging"
	"github.com/devsoc/devsoc-backend/internal/server/ratelimit"
	"github.com/devsoc/devsoc-backend/internal/server/validation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Options carries the collaborators and settings for the HTTP boundary.
type Options struct {
	Address       string
	AdminSecret   string
	CORSOrigins   []string
	Registrar     Registrar
	Registrations RegistrationReader
	Settings      SettingsManager
	Limiter       ratelimit.Limiter
	Validator     *validation.Validator
	Logger        logging.Logger
}

type HTTPServer struct {
	address string
	handler *Handler
	engine  *gin.Engine
	logger  logging.Logger
}

func NewHTTPServer(opts Options) *HTTPServer {
	logger := opts.Logger.With("module", "http_server")
	h := &Handler{
		registrar:     opts.Registrar,
		registrations: opts.Registrations,
		settings:      opts.Settings,
		limiter:       opts.Limiter,
		validator:     opts.Validator,
		adminSecret:   opts.AdminSecret,
		logger:        logger,
	}
	return &HTTPServer{
		address: opts.Address,
		handler: h,
		engine:  NewRouter(h, opts.CORSOrigins),
		logger:  logger,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))
	r.Use(cors.New(corsConfig(corsOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/register-event", h.RegisterEvent)
	api.GET("/registrations/check", h.CheckRegistration)
	api.GET("/settings/payment", h.PaymentSettings)
	api.GET("/settings/community-links", h.CommunityLinks)

	admin := api.Group("/admin")
	admin.Use(adminAuth(h.adminSecret))
	admin.GET("/settings", h.GetSettings)
	admin.POST("/settings", h.UpsertSetting)
	admin.DELETE("/settings", h.DeleteSetting)
	admin.GET("/registrations", h.EventRegistrations)
	admin.GET("/registrations/lookup", h.LookupRegistration)
	admin.GET("/payments/pending", h.PendingPayments)
	admin.POST("/payments/:id/status", h.UpdatePaymentStatus)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", common.AdminSecretHeaderName},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
