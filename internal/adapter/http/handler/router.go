package handler

import (
	"net/http"

	"wallet-ledger/internal/adapter/http/middleware"
	redisStore "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	AccountSvc     ports.AccountService
	FreezeSvc      ports.FreezeService
	TransferSvc    ports.TransferService
	HistorySvc     ports.HistoryService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        middleware.HTTPObserver // nil = no HTTP metrics
	MetricsHandler http.Handler            // nil = no /metrics route
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.HTTPMetrics(deps.Metrics))
	}
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	walletHandler := NewWalletHandler(deps.AccountSvc, deps.LedgerSvc)
	historyHandler := NewHistoryHandler(deps.HistorySvc)
	transferHandler := NewTransferHandler(deps.TransferSvc)
	adminHandler := NewAdminHandler(deps.FreezeSvc)

	svc := middleware.RequireRole(ports.RoleService, ports.RoleAdmin)
	wallets := v1.Group("/wallets", svc)
	{
		wallets.POST("", rl("mutations"), walletHandler.Create)
		wallets.GET("/owner/:owner_id", rl("reads"), walletHandler.GetByOwner)
		wallets.GET("/:id", rl("reads"), walletHandler.Get)
		wallets.GET("/:id/history", rl("reads"), historyHandler.History)
		wallets.POST("/:id/deposits", rl("mutations"), walletHandler.Deposit)
		wallets.POST("/:id/withdrawals", rl("mutations"), walletHandler.Withdraw)
		wallets.POST("/:id/payments", rl("mutations"), walletHandler.Pay)
		wallets.POST("/:id/refunds", rl("mutations"), walletHandler.Refund)
	}

	v1.POST("/transfers", svc, rl("transfers"), transferHandler.Transfer)

	admin := v1.Group("/admin/wallets", middleware.RequireRole(ports.RoleAdmin), rl("admin"))
	{
		admin.POST("/:id/freeze", adminHandler.Freeze)
		admin.POST("/:id/unfreeze", adminHandler.Unfreeze)
		admin.POST("/:id/deactivate", adminHandler.Deactivate)
		admin.POST("/:id/reactivate", adminHandler.Reactivate)
		admin.GET("/:id/reconcile", historyHandler.Reconcile)
	}

	return r
}
