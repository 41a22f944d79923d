package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"campus-coin/internal/config"
	"campus-coin/internal/handler"
	"campus-coin/internal/repository"
	"campus-coin/internal/service"
	"campus-coin/internal/worker"
	"campus-coin/pkg/postgres"
	"campus-coin/pkg/rabbitmq"
	"campus-coin/pkg/redis"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults/environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Infrastructure

	db, err := postgres.NewConnection(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Postgres init failed: %v", err)
	}

	rdb, err := redis.NewClient(redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Redis init failed: %v", err)
	}

	mq, err := rabbitmq.NewConnection(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("RabbitMQ init failed: %v", err)
	}
	defer mq.Close()

	// Repositories
	walletRepo := repository.NewWalletRepository(db)
	transRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	cacheRepo := repository.NewCacheRepository(rdb)
	eventProducer := repository.NewEventProducer(mq)

	// Services
	ledger, err := service.NewLedgerService(walletRepo, transRepo, cacheRepo, eventProducer, service.LedgerConfig{
		AdminOwnerID: cfg.AdminOwnerID,
		SignupBonus:  cfg.SignupBonus,
		MaxRetries:   cfg.LedgerMaxRetries,
		BackoffBase:  cfg.LedgerBackoffBase,
	})
	if err != nil {
		log.Fatalf("Ledger init failed: %v", err)
	}
	if _, err := ledger.EnsureAdminWallet(context.Background()); err != nil {
		log.Fatalf("Admin wallet bootstrap failed: %v", err)
	}

	rewardSvc := service.NewRewardService(ledger)
	fundingSvc := service.NewFundingService(ledger)
	redemptionSvc := service.NewRedemptionService(ledger, invoiceRepo)

	// Worker
	w := worker.NewWorker(mq)
	w.Start()

	// HTTP Handler & Server
	h := handler.NewHandler(ledger, rewardSvc, fundingSvc, redemptionSvc)
	mux := handler.NewRouter(h)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	// Start Server
	go func() {
		log.Printf("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
