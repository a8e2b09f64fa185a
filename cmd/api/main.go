package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanswolff/clubportal/internal/background"
	"github.com/hanswolff/clubportal/internal/config"
	"github.com/hanswolff/clubportal/internal/database"
	"github.com/hanswolff/clubportal/internal/handlers"
	"github.com/hanswolff/clubportal/internal/middleware"
	"github.com/hanswolff/clubportal/internal/ratelimit"
	"github.com/hanswolff/clubportal/internal/repositories"
	"github.com/hanswolff/clubportal/internal/routes"
	"github.com/hanswolff/clubportal/internal/services"
	"github.com/hanswolff/clubportal/internal/worker"
	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := database.Migrate(&cfg.Database); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	dispatchRepo := repositories.NewDispatchRepository(db)
	voteRepo := repositories.NewVoteRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)

	// Rate limit state lives in Redis when configured, so blocks survive
	// restarts and apply across instances
	var limitStore ratelimit.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.Redis.Addr)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisStore.Close()
		limitStore = redisStore
		logger.Info("rate limiter using redis store", slog.String("addr", cfg.Redis.Addr))
	} else {
		memStore := ratelimit.NewMemoryStore(time.Minute)
		defer memStore.Stop()
		limitStore = memStore
	}

	loginProfile := ratelimit.LoginConfig()
	if cfg.RateLimit.LoginMaxAttempts > 0 {
		loginProfile.MaxAttempts = cfg.RateLimit.LoginMaxAttempts
	}
	if cfg.RateLimit.LoginWindow > 0 {
		loginProfile.Window = cfg.RateLimit.LoginWindow
	}

	loginLimiter := ratelimit.New(loginProfile, limitStore, logger)
	forgotLimiter := ratelimit.New(ratelimit.ForgotPasswordConfig(), limitStore, logger)
	redeemLimiter := ratelimit.New(ratelimit.TokenRedeemConfig(), limitStore, logger)
	contactLimiter := ratelimit.New(ratelimit.ContactConfig(), limitStore, logger)

	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ContactTo,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	authService := services.NewAuthService(userRepo, loginLimiter, cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, logger)
	rsvpService := services.NewRSVPService(dispatchRepo, voteRepo, userRepo, eventRepo, redeemLimiter, logger)
	resetService := services.NewPasswordResetService(db, userRepo, resetRepo, emailService, forgotLimiter, redeemLimiter, cfg.Server.BaseURL, logger)
	contactService := services.NewContactService(emailService, contactLimiter, logger)

	location, err := time.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		logger.Error("invalid reminder timezone", slog.Any("error", err))
		os.Exit(1)
	}

	reminderWorker := worker.New(userRepo, eventRepo, dispatchRepo, emailService, worker.Config{
		BaseURL:       cfg.Server.BaseURL,
		PollInterval:  cfg.Reminder.PollInterval,
		GraceWindow:   cfg.Reminder.GraceWindow,
		RecoveryDelay: cfg.Reminder.RecoveryDelay,
		Location:      location,
	}, logger)

	cleanupManager := background.NewCleanupManager(resetRepo, 12*time.Hour, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	rsvpHandler := handlers.NewRSVPHandler(rsvpService, ipConfig)
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	resetHandler := handlers.NewPasswordResetHandler(resetService, ipConfig)
	contactHandler := handlers.NewContactHandler(contactService, ipConfig)
	healthHandler := handlers.NewHealthHandler(db)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(cfg.Server.Env))
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, rsvpHandler, authHandler, resetHandler, contactHandler, healthHandler, cfg.RateLimit.PublicPerMinute)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go reminderWorker.Start(workerCtx)
	go cleanupManager.Start(workerCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	reminderWorker.Stop()
	cleanupManager.Stop()
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func logLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
