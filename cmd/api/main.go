package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/config"
	"github.com/signalix/phoneauth/internal/db"
	"github.com/signalix/phoneauth/internal/federated"
	httphandler "github.com/signalix/phoneauth/internal/http"
	"github.com/signalix/phoneauth/internal/logging"
	"github.com/signalix/phoneauth/internal/notify"
	"github.com/signalix/phoneauth/internal/otp"
	"github.com/signalix/phoneauth/internal/repo"
)

const sweepInterval = time.Minute

func main() {
	// Env vars override .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.DevMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	os.Exit(finish(logger, run(cfg, logger)))
}

// finish logs the outcome of run and flushes the logger before the process
// exits; os.Exit skips deferred calls.
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server exited with error", zap.Error(err))
		code = 1
	} else {
		logger.Info("server exited")
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *sql.DB
	if cfg.NeedsDatabase() {
		var err error
		database, err = db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		if err := db.Migrate(database); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	userRepo := newUserRepo(cfg, database)

	otps, closeOTP, err := newOTPStore(ctx, cfg, database, logger)
	if err != nil {
		return err
	}
	defer closeOTP()

	gateway := newGateway(cfg, logger)
	verifier := federated.NewGoogleVerifier(cfg.GoogleClientID, cfg.FederatedTimeout)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewAuthService(userRepo, otps, gateway, jwtService, verifier, logger,
		auth.WithEmailLinking(cfg.FederatedEmailLinking),
	)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		AuthService:    authService,
		JWTService:     jwtService,
		UserRepo:       userRepo,
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// notify and federated calls may each take up to their own timeout
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("storage", cfg.StorageBackend),
			zap.String("otp", cfg.OTPBackend),
			zap.String("notify", cfg.NotifyBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newUserRepo(cfg *config.Config, database *sql.DB) repo.UserRepo {
	if cfg.StorageBackend == config.BackendMemory {
		return repo.NewMemoryUserRepo()
	}
	return repo.NewUserRepo(database)
}

// newOTPStore builds the configured OTP store. The returned func releases
// whatever the store holds open.
func newOTPStore(ctx context.Context, cfg *config.Config, database *sql.DB, logger *zap.Logger) (otp.Store, func(), error) {
	switch cfg.OTPBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return otp.NewRedisStore(rdb, cfg.RedisKeyPrefix), func() { _ = rdb.Close() }, nil

	case config.BackendPostgres:
		return otp.NewPostgresStore(repo.NewOtpRepo(database), cfg.OTPSalt), func() {}, nil

	default:
		store := otp.NewMemoryStore()
		sweepCtx, cancel := context.WithCancel(ctx)
		go sweepLoop(sweepCtx, store, logger)
		return store, cancel, nil
	}
}

func sweepLoop(ctx context.Context, store *otp.MemoryStore, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug("expired otps swept", zap.Int("count", n))
			}
		}
	}
}

func newGateway(cfg *config.Config, logger *zap.Logger) notify.Gateway {
	if cfg.NotifyBackend == config.BackendWhatsApp {
		return notify.NewWhatsAppGateway(cfg.WhatsAppAPIURL, cfg.NotifyTimeout, logger)
	}
	if !cfg.DevMode {
		logger.Warn("NOTIFY_BACKEND=log outside DEV_MODE: codes will not be delivered")
	}
	return notify.NewLogGateway(logger)
}
