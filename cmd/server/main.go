package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "affiliate-network-backend/internal/api/http"
	"affiliate-network-backend/internal/cache"
	"affiliate-network-backend/internal/config"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/security"
	"affiliate-network-backend/internal/service"
	"affiliate-network-backend/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Affiliate Network Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "storage", cfg.Storage.Type)

	ctx := context.Background()

	// Initialize storage
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize schedule cache
	var scheduleCache service.ScheduleCache
	if cfg.Redis.URL != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		scheduleCache = cache.NewScheduleCache(client, time.Duration(cfg.Redis.ScheduleTTLSeconds)*time.Second)
	} else {
		logger.Info("Redis not configured, commission schedule cache disabled")
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	// Initialize Services
	emailSvc := service.NewEmailService(service.EmailConfig{
		APIKey:    cfg.SendGrid.APIKey,
		FromEmail: cfg.SendGrid.FromEmail,
		FromName:  cfg.SendGrid.FromName,
		SignupURL: cfg.SendGrid.SignupURL,

		SMTPHost:     cfg.SMTP.Host,
		SMTPPort:     cfg.SMTP.Port,
		SMTPUser:     cfg.SMTP.User,
		SMTPPassword: cfg.SMTP.Password,
	})
	levelSvc := service.NewCommissionLevelService(store.Levels, scheduleCache, cfg.Commission.PercentageBounds(), m)
	treeSvc := service.NewReferralTreeService(store.Users)
	inviteSvc := service.NewInviteService(store.Invites, store.Users, emailSvc, time.Duration(cfg.Referral.InviteTTLHours)*time.Hour, m)
	attachmentSvc := service.NewAttachmentService(store.Users, treeSvc, inviteSvc, cfg.Referral.RejectInactiveReferrers, m)
	commissionSvc := service.NewCommissionService(store.Commissions, store.Users, levelSvc, treeSvc, emailSvc, cfg.Commission.MaxLevels, m)
	payoutSvc := service.NewPayoutService(store.Payouts, store.Users, emailSvc, cfg.Payout.MinimumPayout(), m)
	coordinatorSvc := service.NewCoordinatorService(store.Users, attachmentSvc, commissionSvc, treeSvc)
	authSvc := service.NewAuthService(store.Users, tokenManager, m)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Services: &httpapi.Services{
			Auth:         authSvc,
			Levels:       levelSvc,
			Tree:         treeSvc,
			Attachments:  attachmentSvc,
			Commissions:  commissionSvc,
			Payouts:      payoutSvc,
			Coordinators: coordinatorSvc,
			Invites:      inviteSvc,
		},
		Tokens:   tokenManager,
		Metrics:  m,
		Gatherer: registry,
		Ping:     store.Ping,
	})

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}
