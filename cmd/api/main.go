package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/lock"
	memStorage "wallet-ledger/internal/adapter/storage/memory"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// storage groups the repositories of the configured driver.
type storage struct {
	accounts   ports.WalletAccountRepository
	entries    ports.LedgerEntryRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("serializer", cfg.Ledger.Serializer).
		Msg("Starting wallet ledger")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set (WLG_JWT_SECRET)")
	}

	defaultCurrency, ok := domain.ParseCurrency(cfg.Ledger.DefaultCurrency)
	if !ok {
		log.Fatal().Str("currency", cfg.Ledger.DefaultCurrency).Msg("unsupported ledger.default_currency")
	}
	rates, err := service.ParseDisplayRates(cfg.Ledger.DisplayRates)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ledger.display_rates")
	}

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	checkers := []ports.HealthChecker{store.health}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		checkers = append(checkers, redisStorage.NewCoordinatorHealth(rdb))
	}

	var serializer ports.AccountSerializer
	if cfg.Ledger.Serializer == "redis" {
		serializer = redisStorage.NewAccountLock(rdb, cfg.Ledger.LockTTL, cfg.Ledger.LockTimeout, log)
	} else {
		serializer = lock.NewKeyedMutex(cfg.Ledger.LockTimeout)
	}

	metrics := service.NewPrometheusMetrics()
	auditSvc := service.NewAuditService(store.audit, log)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	retry := service.RetryPolicy{
		MaxRetries:      cfg.Ledger.MaxRetries,
		InitialInterval: cfg.Ledger.RetryInitialInterval,
		MaxInterval:     cfg.Ledger.RetryMaxInterval,
	}

	opts := []service.LedgerOption{
		service.WithMetrics(metrics),
		service.WithAudit(auditSvc),
	}
	var rateLimitStore *redisStorage.RateLimitStore
	if rdb != nil {
		opts = append(opts, service.WithIdempotencyCache(redisStorage.NewIdempotencyCache(rdb)))
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
	}

	ledgerSvc := service.NewLedgerService(
		store.accounts,
		store.entries,
		store.transactor,
		serializer,
		service.NewWithdrawalLimiter(cfg.Ledger.WithdrawalWindow),
		service.LedgerConfig{
			Retry:                  retry,
			BlockCreditsWhenFrozen: cfg.Ledger.BlockCreditsWhenFrozen,
			IdempotencyTTL:         cfg.Ledger.IdempotencyTTL,
		},
		log,
		opts...,
	)
	accountSvc := service.NewAccountService(store.accounts, auditSvc, service.AccountDefaults{
		Currency:             defaultCurrency,
		DailyWithdrawalLimit: cfg.Ledger.DefaultDailyWithdrawalLimit,
	}, rates, log)
	freezeSvc := service.NewFreezeService(store.accounts, store.transactor, serializer, auditSvc, retry, log)
	transferSvc := service.NewTransferService(ledgerSvc, store.accounts, metrics, retry, log)
	historySvc := service.NewHistoryService(store.accounts, store.entries, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		AccountSvc:     accountSvc,
		FreezeSvc:      freezeSvc,
		TransferSvc:    transferSvc,
		HistorySvc:     historySvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStorage returns the Postgres repositories, or the in-memory store
// when database.driver=memory.
func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Database.InMemory() {
		log.Warn().Msg("Running on the in-memory store; data is lost on exit")
		mem := memStorage.NewStore()
		return &storage{
			accounts:   memStorage.NewWalletAccountRepo(mem),
			entries:    memStorage.NewLedgerEntryRepo(mem),
			audit:      memStorage.NewAuditRepo(mem),
			transactor: mem,
			health:     mem,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")
	return &storage{
		accounts:   pgStorage.NewWalletAccountRepo(pool),
		entries:    pgStorage.NewLedgerEntryRepo(pool),
		audit:      pgStorage.NewAuditRepo(pool),
		transactor: pgStorage.NewTransactor(pool),
		health:     pgStorage.NewStoreHealth(pool),
		close:      pool.Close,
	}, nil
}
