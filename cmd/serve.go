package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clinicore/ms-go-paylinks/app/auth"
	"github.com/clinicore/ms-go-paylinks/app/controller"
	"github.com/clinicore/ms-go-paylinks/app/provider"
	"github.com/clinicore/ms-go-paylinks/app/repository"
	"github.com/clinicore/ms-go-paylinks/app/service"
	"github.com/clinicore/ms-go-paylinks/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the Echo HTTP server exposing payment link creation, checkout, callbacks, and cancellation.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)
	e := setupHTTPServer(cfg, paymentController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(cfg *config.Config, paymentController *controller.PaymentController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)
	e.GET("/payments/health", paymentController.Health)

	requireActor := auth.RequireActor(cfg.Auth.JWTSecret)

	payments := e.Group("/payments")
	payments.POST("/create", paymentController.CreatePaymentLink, requireActor)
	payments.POST("/cancel", paymentController.CancelPaymentLink, requireActor)
	payments.GET("/:paymentLinkId", paymentController.GetPaymentLink)
	payments.POST("/callback/:provider", paymentController.HandleProviderCallback)

	e.POST("/payment-links/start", paymentController.StartCheckout)

	return e
}

func mustCreatePaymentService() (*config.Config, *service.PaymentLinkService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	linkRepo := repository.NewPaymentLinkRepository(db)
	therapistRepo := repository.NewTherapistRepository(db)
	clientRepo := repository.NewClientRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	callbackLogRepo := repository.NewCallbackLogRepository(db)

	providerRegistry := buildProviderRegistry(cfg)

	paymentService := service.NewPaymentLinkService(
		linkRepo,
		therapistRepo,
		clientRepo,
		sessionRepo,
		eventRepo,
		callbackLogRepo,
		providerRegistry,
		cfg.Payments,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}

func buildProviderRegistry(cfg *config.Config) *provider.Registry {
	providers := make([]provider.Provider, 0, 1)

	tranzilaProvider, err := provider.NewTranzilaProvider(provider.TranzilaConfig{
		Terminal:         cfg.Tranzila.Terminal,
		Secret:           cfg.Tranzila.Secret,
		BaseURL:          cfg.Tranzila.BaseURL,
		SuccessURL:       cfg.Tranzila.SuccessURL,
		FailURL:          cfg.Tranzila.FailURL,
		NotifyURL:        cfg.Tranzila.NotifyURL,
		Language:         cfg.Tranzila.Language,
		VerifySignatures: cfg.Tranzila.VerifySignatures,
	})
	if err != nil {
		if cfg.Payments.ActiveProvider == "tranzila" {
			logrus.WithError(err).Fatal("Tranzila provider is configured as active but cannot be constructed")
		}
		logrus.WithError(err).Warn("Tranzila provider not registered")
	} else {
		providers = append(providers, tranzilaProvider)
	}

	return provider.NewRegistry(provider.NewMockProvider(), providers...)
}
