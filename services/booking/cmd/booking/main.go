package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"servicebay/internal/ratelimit"
	"servicebay/internal/usertoken"
	"servicebay/internal/util"
	"servicebay/pkg/ai"
	"servicebay/pkg/domain"
	"servicebay/pkg/queue"
	"servicebay/pkg/storage"
	"servicebay/services/booking/internal/app"
	"servicebay/services/booking/internal/config"
	"servicebay/services/booking/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtLeeway, _ := cfg.Leeway()
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}
	policy, _ := domain.PolicyByName(cfg.StatusPolicy)

	appCfg := app.Config{
		StoreDriver:       cfg.StoreDriver,
		DatabaseURL:       cfg.DatabaseURL,
		MongoURI:          cfg.MongoURI,
		MongoDatabase:     cfg.MongoDatabase,
		GenerationTimeout: cfg.GenerationTimeout(),
		ExportURLExpiry:   cfg.ExportURLExpiry(),
		Policy:            policy,
		StaffUserIDs:      cfg.StaffUserIDs,
	}
	generator, err := ai.NewGenerator(cfg.GeneratorConfig())
	switch {
	case errors.Is(err, ai.ErrMissingCredential):
		logger.Warn("generation provider credential missing; ai reports disabled")
	case err != nil:
		log.Fatalf("failed to init generation provider: %v", err)
	default:
		appCfg.Generator = generator
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		reportQueue, err := queue.NewRedisJobQueue(cfg.QueueConfig(""))
		if err != nil {
			log.Fatalf("failed to init report queue: %v", err)
		}
		defer reportQueue.Close()
		appCfg.Queue = reportQueue

		if cfg.GenerateRateLimitPerMinute > 0 {
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "servicebay:ratelimit:generate", cfg.GenerateRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init rate limiter: %v", err)
			}
			defer limiter.Close()
		}
	}
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(ctx, cfg.MinioConfig())
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		appCfg.Objects = objects
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close(context.Background())
	if cfg.SeedCatalog {
		if _, err := appCore.SeedCatalog(ctx); err != nil {
			log.Fatalf("failed to seed catalog: %v", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	serverCfg := server.Config{
		App:            appCore,
		Auth:           tokenVerifier,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: trusted,
	}
	if limiter != nil {
		serverCfg.GenerateLimit = limiter
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	slog.Info("booking server listening", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
