package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peegflow-code/peegflow/internal/api/router"
	"github.com/peegflow-code/peegflow/internal/app/bootstrap"
	appconfig "github.com/peegflow-code/peegflow/internal/config"
	"github.com/peegflow-code/peegflow/internal/finance"
	"github.com/peegflow-code/peegflow/internal/http/handlers"
	"github.com/peegflow-code/peegflow/internal/identity"
	"github.com/peegflow-code/peegflow/internal/observability/metrics"
	"github.com/peegflow-code/peegflow/internal/patients"
	"github.com/peegflow-code/peegflow/internal/platform"
	"github.com/peegflow-code/peegflow/internal/scheduling"
	"github.com/peegflow-code/peegflow/internal/tenancy"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting peegflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.AuthJWTSecret == "" {
		logger.Error("AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores and services
	resolver := tenancy.NewResolver(pool, redisClient)
	userStore := identity.NewPostgresStore(pool)
	patientStore := patients.NewPostgresStore(pool)
	financeStore := finance.NewStore(pool)
	provisioner := platform.NewProvisioner(pool, logger)

	var revocation identity.RevocationList
	if redisClient != nil {
		revocation = identity.NewRedisRevocationList(redisClient)
	} else {
		logger.Warn("redis unavailable, logout revocation disabled")
	}
	sessions := identity.NewSessions(cfg.AuthJWTSecret, cfg.AuthTokenTTL, userStore, resolver, revocation, logger)

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	schedulingSvc := scheduling.NewService(scheduling.NewPostgresRepository(pool), logger, bookingMetrics)

	routerCfg := &router.Config{
		Logger:              logger,
		Sessions:            sessions,
		PatientLinker:       patientStore,
		AuthHandler:         handlers.NewAuthHandler(sessions, logger),
		AppointmentsHandler: handlers.NewAppointmentsHandler(schedulingSvc, logger),
		PatientsHandler:     handlers.NewPatientsHandler(patientStore, logger),
		FinanceHandler:      handlers.NewFinanceHandler(financeStore, logger),
		PlatformHandler:     handlers.NewPlatformHandler(provisioner, logger),
		PlatformToken:       cfg.PlatformToken,
		LoginRateRPS:        cfg.LoginRateRPS,
		LoginRateBurst:      cfg.LoginRateBurst,
		HTTPMetrics:         metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
