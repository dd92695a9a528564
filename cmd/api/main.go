package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/router"
	"github.com/tao2825/library-borrow-system/internal/service"
	"github.com/tao2825/library-borrow-system/internal/ws"
	"github.com/tao2825/library-borrow-system/pkg/cache"
	"github.com/tao2825/library-borrow-system/pkg/config"
	"github.com/tao2825/library-borrow-system/pkg/database"
	"github.com/tao2825/library-borrow-system/pkg/jwt"
	"github.com/tao2825/library-borrow-system/pkg/logger"
	"github.com/tao2825/library-borrow-system/pkg/tracing"
)

const serviceName = "library-borrow-system"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, serviceName, cfg.Environment)
	if err != nil {
		log.Error("failed to init tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Setup database
	db, err := database.Connect(database.FromConfig(cfg))
	if err != nil {
		log.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		log.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("failed to get sql.DB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlxDB, err := database.SQLX(db, cfg.DBDriver)
	if err != nil {
		log.Error("failed to open report handle", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Report cache: Redis when configured, otherwise in-process
	var reportCache cache.Store = cache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, serviceName)
		if err != nil {
			log.Error("failed to connect redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rc.Close()
		reportCache = rc
	}

	// 4. Setup WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// 5. Dependency injection
	bookRepo := repository.NewBookRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	userRepo := repository.NewUserRepo(db)
	borrowRepo := repository.NewBorrowRepo(db)
	reportRepo := repository.NewReportRepo(sqlxDB, database.Dialect(cfg.DBDriver))

	authService := service.NewAuthService(userRepo, jwt.NewManager(cfg.JWTSecret, cfg.TokenTTL), log)
	userService := service.NewUserService(db, userRepo, log)
	bookService := service.NewBookService(db, bookRepo, borrowRepo, log)
	memberService := service.NewMemberService(db, memberRepo, borrowRepo, log)
	circulationService := service.NewCirculationService(db, bookRepo, memberRepo, userRepo, borrowRepo,
		service.WithEvents(hub),
		service.WithReportCache(reportCache),
		service.WithLogger(log),
		service.WithDefaultLoanDays(cfg.DefaultLoanDays),
	)
	reportService := service.NewReportService(reportRepo, reportCache, cfg.ReportCacheTTL, log)

	// 6. Seed the first admin account
	if _, err := userService.EnsureSeedAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword); err != nil {
		log.Error("failed to seed admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Setup fiber
	app := router.New(router.Deps{
		Auth:        authService,
		Users:       userService,
		Books:       bookService,
		Members:     memberService,
		Circulation: circulationService,
		Reports:     reportService,
		Hub:         hub,
		Ping:        sqlDB.PingContext,
	}, router.Options{
		AllowedOrigins: strings.Join(cfg.CORSAllowedOrigins, ","),
		AccessLog:      true,
	})

	// 8. Graceful shutdown
	go func() {
		log.Info("server listening", slog.String("port", cfg.Port), slog.String("driver", cfg.DBDriver))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}
