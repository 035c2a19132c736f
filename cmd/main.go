package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-ledger/internal/clients"
	"school-ledger/internal/config"
	"school-ledger/internal/domain"
	"school-ledger/internal/repository"
	"school-ledger/internal/repository/memory"
	"school-ledger/internal/service"
	"school-ledger/internal/transport/auth"
	"school-ledger/internal/transport/rest"
	"school-ledger/internal/transport/websocket"
	"school-ledger/pkg/database/postgres"
	"school-ledger/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Info("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, tokens, db := mustInitStore(ctx, cfg, log)

	var cache service.ExportStatusCache
	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, export tracking disabled", zap.Error(err))
	} else {
		cache = redisClient
	}

	files, localFiles := mustInitStorage(ctx, cfg, log)

	wsHub := websocket.NewHub(log.Named("ws"))
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	deps := service.LedgerDeps{
		Store:      store,
		Clock:      domain.SystemClock{},
		Numbers:    service.UUIDReceiptNumbers{},
		Logger:     log.Named("ledger"),
		MaxRetries: cfg.Ledger.MaxRetries,
	}

	svc := rest.Services{
		Fees:        service.NewFeeService(deps),
		Collections: service.NewCollectionService(deps, wsClient),
		Wallets:     service.NewWalletService(deps),
		Receipts:    service.NewReceiptService(deps),
		Reversals:   service.NewReversalService(deps),
		Reports:     service.NewReportService(deps, cache, cfg.ExportPrefix, files, wsClient),
		Alerts:      service.NewAlertService(deps, cfg.Ledger.LowBalance),
		Exports:     service.NewExportService(cache, cfg.ExportPrefix),
		Hub:         wsHub,
	}
	if localFiles != nil {
		svc.Files = localFiles
	}

	handler := rest.NewHandler(svc, log.Named("http"))
	router := handler.InitRouterWithAuth(auth.SanctumMiddleware(tokens, log.Named("auth")))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Ledger.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Error("HTTP server error", zap.Error(err))
		}
	case sig := <-stop:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// stops the websocket hub and the cleanup loop
	cancel()

	if db != nil {
		if err := postgres.Close(db); err != nil {
			log.Warn("postgres close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info("shutdown complete")
}

func mustInitStore(ctx context.Context, cfg config.AppConfig, log *zap.Logger) (domain.LedgerStore, auth.TokenFinder, *sql.DB) {
	if cfg.Ledger.StoreDriver == "memory" {
		tokens, err := auth.ParseStaticTokens(cfg.Auth.StaticTokens)
		if err != nil {
			log.Fatal("static tokens", zap.Error(err))
		}
		if len(tokens) == 0 {
			log.Warn("memory store without AUTH_STATIC_TOKENS, every request will be rejected")
		}
		return memory.NewStore(), tokens, nil
	}

	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:         cfg.Postgres.Host,
		Port:         cfg.Postgres.Port,
		Username:     cfg.Postgres.User,
		DBName:       cfg.Postgres.DBName,
		SSLMode:      cfg.Postgres.SSLMode,
		Password:     cfg.Postgres.Password,
		MaxOpenConns: cfg.Postgres.MaxConns,
		MaxIdleConns: cfg.Postgres.MaxConns / 2,
	})
	if err != nil {
		log.Fatal("postgres init error", zap.Error(err))
	}

	if cfg.Postgres.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal("postgres migrate error", zap.Error(err))
		}
	}

	return repository.NewLedgerRepository(db, log.Named("repo")),
		repository.NewPersonalAccessTokenRepository(db, log.Named("tokens")),
		db
}

func initRedis(cfg config.RedisConfig) (*clients.RedisClient, error) {
	return clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
}

// mustInitStorage returns the report store and, for the local driver, the
// same client so /files can serve it.
func mustInitStorage(ctx context.Context, cfg config.AppConfig, log *zap.Logger) (service.FileStore, *clients.StorageClient) {
	if cfg.Storage.Driver == "s3" {
		s3, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          time.Duration(cfg.S3.URLTTLMinutes) * time.Minute,
		})
		if err != nil {
			log.Fatal("s3 init error", zap.Error(err))
		}
		return s3, nil
	}

	local, err := clients.NewLocalStorage(cfg.Storage.ExportDir, cfg.Storage.FilesPublicPrefix, cfg.Storage.ExternalURL)
	if err != nil {
		log.Fatal("storage init error", zap.Error(err))
	}

	maxAge := time.Duration(cfg.Storage.CleanupAfterMinute) * time.Minute
	if maxAge > 0 {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := local.CleanupOlderThan(maxAge); err != nil {
						log.Warn("storage cleanup error", zap.Error(err))
					}
				}
			}
		}()
	}
	return local, local
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Idempotency-Key")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
