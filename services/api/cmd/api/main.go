package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"plantatlas/internal/ratelimit"
	"plantatlas/internal/usertoken"
	"plantatlas/internal/util"
	"plantatlas/pkg/classify"
	"plantatlas/pkg/events"
	"plantatlas/pkg/queue"
	"plantatlas/services/api/internal/app"
	"plantatlas/services/api/internal/authclient"
	"plantatlas/services/api/internal/config"
	"plantatlas/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}

	logger := util.InitLogger("api", cfg.LogLevel)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		Classifier:     classify.NewHTTPClassifier(cfg.ClassifierEndpoint, cfg.ClassifierAPIKey),
		Events:         publisher,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	var listLimiter, signLimiter, classifyLimiter *ratelimit.FixedWindowLimiter
	if cfg.ListRateLimitPerMinute > 0 {
		listLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "api:list", cfg.ListRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init list rate limiter: %v", err)
		}
	}
	if cfg.SignRateLimitPerMinute > 0 {
		signLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "api:sign", cfg.SignRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init sign rate limiter: %v", err)
		}
	}
	if cfg.ClassifyRateLimitPerMinute > 0 {
		classifyLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "api:classify", cfg.ClassifyRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init classify rate limiter: %v", err)
		}
	}

	// Account deletions are requested by the auth service and consumed
	// here, where the records and images live.
	if cfg.RedisAddr != "" {
		deletions, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("failed to init deletion queue: %v", err)
		}
		workers := cfg.DeletionWorkers
		if workers <= 0 {
			workers = 2
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		deletions.Start(ctx, workers, func(ctx context.Context, job queue.JobStatus) error {
			return appCore.DeleteAccount(ctx, job.UserID)
		})
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		Auth:            authclient.New(cfg.AuthURL),
		TokenVerifier:   tokenVerifier,
		ListLimiter:     listLimiter,
		SignLimiter:     signLimiter,
		ClassifyLimiter: classifyLimiter,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
