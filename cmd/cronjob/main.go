package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"clubledger-backend/internal/audit"
	"clubledger-backend/internal/config"
	"clubledger-backend/internal/jobs"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository/postgres"
	"clubledger-backend/internal/scheduler"
	"clubledger-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g. 'update-liabilities', 'all-nightly', 'all-monthly')")
	flag.Parse()

	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting ledger cronjob runner...", "log_level", cfg.Log.Level)

	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)
	auditLog := audit.NewSlogLogger()

	specials := service.NewSpecialAccountsService(store.Repositories, store, auditLog)
	ledgerService := service.NewLedgerService(store.Repositories, store, auditLog)
	liabilityService := service.NewLiabilityService(
		store.Repositories,
		store,
		specials,
		auditLog,
		cfg.Accounting.LiabilityIntervalMonths,
		cfg.AccountingStartDate(),
	)

	jobServices := &jobs.Services{
		Ledger:      ledgerService,
		Liabilities: liabilityService,
	}
	jobRunner := jobs.NewJobRunner(store.Repositories, jobServices, cfg)

	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler := scheduler.NewScheduler(jobRunner)
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "update-liabilities":
		jobRunner.UpdateAllLiabilities()
	case "take-balance-snapshots":
		jobRunner.TakeBalanceSnapshots()
	case "report-statute-barred":
		jobRunner.ReportStatuteBarredDebt()
	case "report-unbalanced":
		jobRunner.ReportUnbalancedTransactions()
	case "all-nightly":
		jobRunner.RunAllNightlyJobs()
	case "all-monthly":
		jobRunner.RunAllMonthlyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - update-liabilities\n")
		fmt.Printf("  - take-balance-snapshots\n")
		fmt.Printf("  - report-statute-barred\n")
		fmt.Printf("  - report-unbalanced\n")
		fmt.Printf("  - all-nightly\n")
		fmt.Printf("  - all-monthly\n")
		os.Exit(1)
	}
}
