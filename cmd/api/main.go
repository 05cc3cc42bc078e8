package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"family-ledger/internal/config"
	"family-ledger/internal/db"
	"family-ledger/internal/email"
	apihttp "family-ledger/internal/http"
	"family-ledger/internal/logging"
	"family-ledger/internal/repository"
	"family-ledger/internal/scheduler"
	"family-ledger/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	policy, err := cfg.Policy()
	if err != nil {
		logger.Fatal("verification policy", zap.Error(err))
	}

	var (
		users  repository.UserRepository
		codes  repository.VerificationRepository
		purger scheduler.StalePurger
		health apihttp.HealthCheck
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				logger.Fatal("db migrate", zap.Error(err))
			}
		}
		verifications := repository.NewPgVerificationRepository(pool)
		users = repository.NewPgUserRepository(pool)
		codes = verifications
		purger = verifications
		health = func(ctx context.Context) error { return db.Ping(ctx, pool) }
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store := repository.NewMemoryStore()
		users = store
		codes = store
		purger = store
	}

	emailSender := newEmailSender(cfg, logger)

	var (
		sessions service.SessionStore
		throttle service.RequestThrottle
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			sessions = service.NewRedisSessionStore(redisClient)
			throttle = service.NewRedisThrottle(redisClient, "register:ip:", cfg.RegisterThrottleWindow, cfg.RegisterThrottleMax)
		}
		cancel()
	}
	if throttle == nil {
		throttle = service.NewMemoryThrottle(cfg.RegisterThrottleWindow, cfg.RegisterThrottleMax)
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		sessions,
	)

	accounts := service.NewAccountService(
		logger,
		users,
		codes,
		emailSender,
		jwtSvc,
		service.NewBcryptHasher(0),
		policy,
		service.Timeouts{
			Store:  cfg.StoreTimeout,
			Email:  cfg.EmailTimeout,
			Issuer: cfg.IssuerTimeout,
		},
	)

	purgeJob := scheduler.NewPurgeJob(logger, purger, policy.Retention, cfg.StoreTimeout)
	if err := purgeJob.Start(cfg.PurgeSchedule); err != nil {
		logger.Fatal("purge scheduler", zap.Error(err))
	}
	defer purgeJob.Stop()

	authHandler := apihttp.NewAuthHandler(logger, accounts)
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		AllowOrigin:      cfg.CORSAllowOrigin,
		RegisterThrottle: throttle,
		Health:           health,
	}, authHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	switch cfg.EmailProvider {
	case "smtp":
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, cfg.EmailFromName, cfg.AppName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
			return email.NewDisabledSender("email sender not configured")
		}
		return sender
	case "sendgrid":
		sender, err := email.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName, cfg.AppName)
		if err != nil {
			logger.Warn("sendgrid sender init failed", zap.Error(err))
			return email.NewDisabledSender("email sender not configured")
		}
		return sender
	default:
		if cfg.IsProduction() {
			logger.Warn("EMAIL_PROVIDER=log in production, verification codes are only logged")
		}
		return email.NewLogSender(logger, cfg.AppName)
	}
}
