package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/custody/internal/app"
	"github.com/odyssey-erp/custody/internal/assets"
	"github.com/odyssey-erp/custody/internal/audit"
	"github.com/odyssey-erp/custody/internal/auth"
	"github.com/odyssey-erp/custody/internal/custody"
	"github.com/odyssey-erp/custody/internal/masterdata"
	"github.com/odyssey-erp/custody/internal/masterdata/employees"
	"github.com/odyssey-erp/custody/internal/masterdata/items"
	"github.com/odyssey-erp/custody/internal/observability"
	"github.com/odyssey-erp/custody/internal/platform/cache"
	"github.com/odyssey-erp/custody/internal/platform/db"
	"github.com/odyssey-erp/custody/internal/procurement"
	"github.com/odyssey-erp/custody/internal/rbac"
	"github.com/odyssey-erp/custody/internal/shared"
	"github.com/odyssey-erp/custody/jobs"
	"github.com/odyssey-erp/custody/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "custody_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := shared.NewLocker(redisClient, cfg.CustodyLockTTL)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	itemService := items.NewService(items.NewRepository(dbpool))
	employeeService := employees.NewService(employees.NewRepository(dbpool))
	masterDataHandler := masterdata.NewHandler(logger, itemService, employeeService, rbacMiddleware)

	procurementService := procurement.NewService(procurement.NewRepository(dbpool), auditLogger)
	procurementHandler := procurement.NewHandler(logger, procurementService, rbacMiddleware)

	assetService := assets.NewService(assets.NewRepository(dbpool))
	assetsHandler := assets.NewHandler(logger, assetService, rbacMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	serviceCfg := custody.ServiceConfig{
		Locker:  locker,
		Cache:   custody.NewAvailableCache(redisClient, cfg.CustodyAvailableCacheTTL),
		Metrics: metrics,
		Logger:  logger,
	}
	if cfg.CustodyNotifyEnabled {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		serviceCfg.Notifier = jobClient
	}
	custodyService := custody.NewService(
		custody.NewRepository(dbpool),
		custody.Lookups{
			PurchaseReceipts: procurementService,
			Assets:           assetService,
			Items:            itemService,
			Employees:        employeeService,
		},
		auditLogger,
		idempotencyStore,
		serviceCfg,
	)

	reportClient := report.NewClient(cfg.GotenbergURL)
	lang, err := language.Parse(cfg.PrintLanguage)
	if err != nil {
		logger.Warn("print language", slog.String("value", cfg.PrintLanguage), slog.Any("error", err))
		lang = language.English
	}
	printer := report.NewReceiptPrinter(reportClient, lang)
	custodyHandler := custody.NewHandler(logger, custodyService, printer, rbacMiddleware)
	reportHandler := report.NewHandler(reportClient, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		CustodyHandler:     custodyHandler,
		AssetsHandler:      assetsHandler,
		ProcurementHandler: procurementHandler,
		MasterDataHandler:  masterDataHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		ReportHandler:      reportHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
