package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"affiliate-network-backend/internal/config"
	"affiliate-network-backend/internal/jobs"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/scheduler"
	"affiliate-network-backend/internal/service"
	"affiliate-network-backend/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-invites', 'approve-commissions', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Affiliate Network Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize storage
	store, err := storage.Open(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize Services. Jobs send no mail, so no notifier is wired.
	levelSvc := service.NewCommissionLevelService(store.Levels, nil, cfg.Commission.PercentageBounds(), nil)
	treeSvc := service.NewReferralTreeService(store.Users)
	inviteSvc := service.NewInviteService(store.Invites, store.Users, nil, time.Duration(cfg.Referral.InviteTTLHours)*time.Hour, nil)
	commissionSvc := service.NewCommissionService(store.Commissions, store.Users, levelSvc, treeSvc, nil, cfg.Commission.MaxLevels, nil)

	jobServices := &jobs.Services{
		Invites:     inviteSvc,
		Commissions: commissionSvc,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.", "jobs", cronScheduler.Entries())

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "expire-invites":
		jobRunner.ExpireInvites()
	case "approve-commissions":
		jobRunner.ApproveCommissions()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-invites\n")
		fmt.Printf("  - approve-commissions\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
