package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// DefaultShutdownTimeout bounds graceful shutdown
const DefaultShutdownTimeout = 10 * time.Second

// Deps are the use cases and ports served over HTTP
type Deps struct {
	ImportSafe  *usecase.ImportSafe
	ManageSafes *usecase.ManageSafes
	Connector   *usecase.WalletConnector
	Payments    *usecase.PaymentEngine
	Recorder    *usecase.RecordPayment
	Settlements usecase.SettlementRepository
	Gate        *usecase.WebhookGate
	Webhooks    *usecase.ProcessWebhook

	// Wallet context for requests arriving from a Safe App or an injected wallet
	SafeService usecase.SafeService
	ChainReader usecase.ChainReader
	Injected    usecase.InjectedProvider

	// Metrics serves /metrics when set
	Metrics http.Handler
}

// Server is the HTTP action surface
type Server struct {
	cfg    *config.RuntimeConfig
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
}

// New builds the router
func New(cfg *config.RuntimeConfig, deps Deps, log *slog.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		log:    log.With("component", "http"),
		engine: gin.New(),
	}
	s.engine.Use(gin.CustomRecovery(s.recover), s.requestLogger())
	s.routes()
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	s.engine.POST("/webhooks/paystack", s.handlePaystackWebhook)

	api := s.engine.Group("/api/v1", s.requireSession())
	{
		api.POST("/safes/import", s.handleImportSafe)
		api.GET("/safes", s.handleListSafes)
		api.DELETE("/safes/:id", s.handleDisconnectSafe)
		api.POST("/safes/:id/authorize", s.handleAuthorizeSafe)
		api.POST("/safes/:id/refresh", s.handleRefreshSafe)

		api.GET("/wallets/detect", s.handleDetectWallets)
		api.POST("/wallets/eoa/connect", s.handleConnectEOA)
		api.POST("/wallets/safe/connect", s.handleConnectSafe)

		api.POST("/payables/:id/pay-with-hash", s.handlePayWithHash(models.DocumentPayable))
		api.POST("/invoices/:id/pay-with-hash", s.handlePayWithHash(models.DocumentInvoice))
		api.POST("/payments/eoa", s.handlePayment(paymentEOA))
		api.POST("/payments/safe", s.handlePayment(paymentSafe))
		api.POST("/payments/batch", s.handlePayment(paymentBatch))

		api.GET("/settlements/:id", s.handleGetSettlement)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.log.Error("panic in handler", "path", c.Request.URL.Path, "panic", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Error: "Something went wrong, please try again"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	}
}
