package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"sak/internal/anchor"
	"sak/internal/auth"
	"sak/internal/events"
	"sak/internal/fileupload"
	"sak/internal/handler"
	"sak/internal/kyc"
	"sak/internal/metrics"
	"sak/internal/middleware"
	"sak/internal/repository/postgres"
	"sak/internal/security"
	"sak/internal/wallet"
	"sak/pkg/cache"
	"sak/pkg/config"
	"sak/pkg/logger"
	"sak/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("sak")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting SAK anchor service", map[string]interface{}{
		"port":         cfg.Server.Port,
		"record_store": cfg.Anchor.UseRecordStore,
		"kafka":        cfg.Events.KafkaEnabled(),
	})

	m := metrics.PrometheusMetrics("sak")

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		log.Fatal("Database ping failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Redis connected", nil)

	var sealer security.Sealer = security.PlainSealer{}
	if cfg.Security.EncryptionKey != "" {
		crypto, err := security.NewCryptoService(cfg.Security.EncryptionKey, cfg.Security.HMACKey)
		if err != nil {
			log.Fatal("Invalid encryption key", map[string]interface{}{"error": err.Error()})
		}
		sealer = crypto
	}

	// Repositories
	kycRepo := postgres.NewKYCRepository(db, sealer)
	userRepo := postgres.NewUserRepository(db)
	anchorRepo := postgres.NewAnchorRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)

	storage, err := fileupload.NewLocalStorage(fileupload.LocalStorageConfig{
		BasePath:      cfg.Storage.BasePath,
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		MaxFileSize:   int64(cfg.Storage.MaxFileSizeMB) << 20,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize file storage", map[string]interface{}{"error": err.Error()})
	}

	// Status events: webhooks always, Kafka when brokers are configured.
	sinks := events.Fanout{events.NewWebhookDispatcher(webhookRepo, events.WebhookConfig{
		Client:      &http.Client{Timeout: cfg.Events.WebhookTimeout},
		MaxAttempts: cfg.Events.WebhookMaxAttempts,
		Backoff:     cfg.Events.WebhookRetryDelay,
		Concurrency: cfg.Events.WebhookConcurrency,
		Logger:      log,
		Metrics:     m,
	})}
	var kafkaPublisher *events.KafkaPublisher
	if cfg.Events.KafkaEnabled() {
		kafkaPublisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), log, m)
		sinks = append(sinks, kafkaPublisher)
	}
	queue := events.NewQueue(sinks, events.QueueConfig{Logger: log, Metrics: m})

	kycService := kyc.NewService(kycRepo, userRepo, storage, kyc.ServiceConfig{
		Events:        queue,
		Cache:         cache.NewRedisCacheFromClient(redisClient, "sak:"),
		Logger:        log,
		Metrics:       m,
		MaxFileSizeMB: cfg.Storage.MaxFileSizeMB,
	})

	authService := auth.NewService(auth.NewAPIKeyService(anchorRepo, cfg.APIKeyIndexKey()), cfg.JWT.Secret, cfg.JWT.Expiration)

	manager := anchor.NewManager(anchor.ManagerConfig{
		TTL:       cfg.Anchor.SessionTTL,
		Standard:  wizardOptions(cfg, anchor.VariantStandard, kycService),
		BankStyle: wizardOptions(cfg, anchor.VariantBankStyle, kycService),
		Logger:    log,
		Metrics:   m,
	})
	manager.Start()

	checks := map[string]handler.Check{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if cfg.Events.KafkaEnabled() {
		broker := strings.TrimSpace(strings.Split(cfg.Events.KafkaBrokers, ",")[0])
		checks["kafka"] = func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				return err
			}
			return conn.Close()
		}
	}

	val := validator.New()
	walletStores := func(sessionID string) wallet.StateStore {
		return wallet.NewRedisStateStore(redisClient, sessionID, cfg.Wallet.SessionTTL)
	}

	// Setup router
	r := mux.NewRouter()

	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log, m).Log)
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	r.Use(middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, log).Limit)

	handler.RegisterRoutes(r, handler.Handlers{
		KYC:      handler.NewKYCHandler(kycService, val, log, cfg.Storage.MaxFileSizeMB),
		Auth:     handler.NewAuthHandler(authService, middleware.NewRedisTokenBlacklist(redisClient), val, log),
		Webhooks: handler.NewWebhookHandler(webhookRepo, val, log),
		Wallet:   handler.NewWalletHandler(walletStores, cfg.Wallet.UseMock, val, log),
		Wizard:   handler.NewWizardHandler(manager, val, log),
		System:   handler.NewSystemHandler(checks, log),
		Metrics:  promhttp.Handler(),
	}, handler.Guards{
		Authenticate: middleware.NewAuthMiddleware(cfg.JWT.Secret, middleware.NewRedisTokenBlacklist(redisClient)).Authenticate,
		Idempotency:  middleware.NewIdempotencyMiddleware(redisClient, 24*time.Hour).Handle,
		LoginLimit:   middleware.NewRateLimiter(redisClient, 10, time.Minute, log).Limit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("SAK anchor service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down SAK anchor service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	manager.Stop()

	if err := queue.Close(ctx); err != nil {
		log.Warn("Pending status events were not delivered", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("Kafka writer close failed", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("SAK anchor service stopped gracefully", nil)
}

// wizardOptions builds the per-variant wizard settings. With the record
// store enabled, verifications go through kyc review instead of timers.
func wizardOptions(cfg *config.Config, variant anchor.Variant, svc *kyc.Service) anchor.Options {
	baseDelay := cfg.Anchor.GateDuration
	if variant == anchor.VariantBankStyle {
		baseDelay = cfg.Anchor.BaseFormDelay
	}

	opts := anchor.Options{
		BaseVerifier:        anchor.TimerVerifier{Delay: baseDelay},
		InlineVerifier:      anchor.TimerVerifier{Delay: cfg.Anchor.InlineDelay},
		GateStages:          anchor.ScaledGateStages(cfg.Anchor.GateDuration),
		VerificationTimeout: cfg.Anchor.VerificationTimeout,
		Balance:             cfg.Anchor.StartingBalance,
		RejectOverdraft:     cfg.Anchor.RejectOverdraft,
		Pricing: anchor.Pricing{
			Rate:       cfg.Anchor.ExchangeRate,
			Commission: cfg.Anchor.CommissionRate,
		},
	}
	if cfg.Anchor.UseRecordStore {
		v := anchor.StoreVerifier{Service: svc, PollInterval: 2 * time.Second}
		opts.BaseVerifier = v
		opts.InlineVerifier = v
	}
	return opts
}
