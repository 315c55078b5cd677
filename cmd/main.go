/**
 * @description
 * This is the main entry point for the wallet service. It is responsible for
 * initializing all components: configuration, database connection pool, the
 * RabbitMQ event producer, the optional Redis rate limiter, the repository,
 * the core application service, the settlement and card-verification workers
 * with their cron scheduler, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/irfan-maish/inaf-e-wallet/internal/api"
	"github.com/irfan-maish/inaf-e-wallet/internal/app"
	"github.com/irfan-maish/inaf-e-wallet/internal/config"
	"github.com/irfan-maish/inaf-e-wallet/internal/store"
	"github.com/irfan-maish/inaf-e-wallet/pkg/rabbitmq"
)

func main() {
	// Load .env for local development; in deployed environments the variables
	// come from the process environment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for wallet outcome events. Event
	// delivery is best-effort, so a missing broker degrades rather than
	// aborts the boot.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = rabbitmq.NewEventProducerFallback()
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis connection for the deposit/withdrawal submission rate
	// limiter. A missing or unreachable Redis disables rate limiting only.
	var redisClient *redis.Client
	if cfg.WalletOpRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; wallet rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; wallet rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; wallet rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Ensure required tables exist (idempotent)
	if _, err := dbpool.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS accounts (
            id TEXT PRIMARY KEY,
            cash_balance BIGINT NOT NULL DEFAULT 0 CHECK (cash_balance >= 0),
            card_balance BIGINT NOT NULL DEFAULT 0 CHECK (card_balance >= 0),
            card_activated_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY,
            account_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            amount BIGINT NOT NULL CHECK (amount > 0),
            direction TEXT,
            method TEXT NOT NULL,
            status TEXT NOT NULL,
            reference TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions (account_id);
        CREATE TABLE IF NOT EXISTS settlement_tasks (
            transaction_id UUID PRIMARY KEY,
            account_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            amount BIGINT NOT NULL,
            due_at TIMESTAMPTZ NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled',
            attempts INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_settlement_tasks_due ON settlement_tasks (status, due_at);
        CREATE TABLE IF NOT EXISTS card_applications (
            account_id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            dob TEXT NOT NULL,
            phone TEXT NOT NULL,
            email TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            verified_at TIMESTAMPTZ,
            card_number TEXT,
            expiry_date TEXT,
            cvv TEXT
        );
    `); err != nil {
		log.Printf("Warning: failed ensuring tables (may already exist): %v", err)
	}

	// Initialize the core application service with its dependencies.
	walletService := app.NewService(
		repository,
		producer,
		time.Duration(cfg.DepositSettlementDelaySeconds)*time.Second,
		time.Duration(cfg.WithdrawalSettlementDelaySeconds)*time.Second,
		time.Duration(cfg.CardVerificationWindowSeconds)*time.Second,
	)
	if redisClient != nil {
		walletService.SetWalletRateLimiter(
			app.NewRedisWalletRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.WalletOpRateLimitPerMinute,
		)
	}

	// Background workers: settlement of pending deposits/withdrawals and
	// auto-verification of card applications whose window has elapsed.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	settlementWorker := app.NewSettlementWorker(repository, producer, logger, cfg.SettlementBatchSize)
	cardVerifier := app.NewCardAutoVerifier(
		walletService,
		repository,
		logger,
		time.Duration(cfg.CardVerificationWindowSeconds)*time.Second,
		cfg.SettlementBatchSize,
	)
	scheduler := app.NewScheduler(settlementWorker, cardVerifier, logger, cfg.SettlementPollSchedule, cfg.CardVerifyPollSchedule)
	scheduler.Start()

	// Initialize the API handlers and mount the wallet routes.
	walletHandlers := api.NewWalletHandlers(walletService)
	router := chi.NewRouter()
	router.Mount("/wallet", api.WalletRoutes(walletHandlers, cfg.JWKSURL, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let in-flight cron jobs drain before exiting.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
