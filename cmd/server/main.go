package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Spotcheck/internal/api"
	"github.com/soaringjerry/Spotcheck/internal/cache"
	"github.com/soaringjerry/Spotcheck/internal/classifier"
	"github.com/soaringjerry/Spotcheck/internal/config"
	dbstore "github.com/soaringjerry/Spotcheck/internal/db"
	"github.com/soaringjerry/Spotcheck/internal/middleware"
	"github.com/soaringjerry/Spotcheck/internal/observability"
	"github.com/soaringjerry/Spotcheck/internal/retry"
	"github.com/soaringjerry/Spotcheck/internal/services"
	"github.com/soaringjerry/Spotcheck/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := observability.InitLogger("spotcheck", cfg.Server.Env, cfg.Log.Level)

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	authn := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	authSvc := services.NewAuthService(store, authn.SignToken, cfg.Auth.TokenTTL)

	opts := []services.AssessmentOption{
		services.WithLogger(logger),
		services.WithMaxImageBytes(cfg.Server.MaxImageBytes),
		services.WithClassifyTimeout(cfg.Classifier.Timeout),
	}
	if cls := newClassifier(ctx, cfg, logger); cls != nil {
		opts = append(opts, services.WithClassifier(cls))
	}
	assessSvc := services.NewAssessmentService(store, opts...)

	mux := http.NewServeMux()
	// API routes
	api.NewRouter(authSvc, assessSvc, logger, cfg.Server.MaxImageBytes).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Spotcheck API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     cfg.Build.Commit,
			"build_time": cfg.Build.BuildTime,
			"classifier": cfg.ClassifierEnabled(),
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Build.Commit,
			"build_time": cfg.Build.BuildTime,
		})
	})

	// Static frontend (questionnaire UI) when SPOTCHECK_STATIC_DIR is set
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = authn.WithAuth(handler)
	handler = middleware.LocaleMiddleware(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.CORS()(handler)
	handler = middleware.SecureHeaders(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("env", cfg.Server.Env).Msg("Spotcheck server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore returns the SQLite store, or an in-memory one when no path is configured.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (api.Store, func(), error) {
	if cfg.Database.SQLitePath == "" {
		logger.Warn().Msg("SPOTCHECK_SQLITE_PATH empty; assessments are kept in memory only")
		return api.NewMemoryStore(), func() {}, nil
	}
	db, err := dbstore.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	if err := dbstore.RunMigrations(ctx, db, cfg.Database.MigrationsDir, logger); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := dbstore.NewSQLiteStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info().Str("path", cfg.Database.SQLitePath).Msg("sqlite store ready")
	return store, func() { _ = db.Close() }, nil
}

// newClassifier returns nil when no endpoint is configured. A Redis outage
// only disables the result cache.
func newClassifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) services.Classifier {
	if !cfg.ClassifierEnabled() {
		logger.Info().Msg("classifier disabled; scoring uses questionnaire answers only")
		return nil
	}
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Classifier.MaxAttempts
	client := classifier.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.APIKey,
		classifier.WithMinConfidence(cfg.Classifier.MinConfidence),
		classifier.WithRetry(rc),
		classifier.WithLogger(logger),
	)
	if !cfg.RedisEnabled() {
		return client
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable; classifier cache disabled")
		return client
	}
	return classifier.NewCachedClassifier(client, cache.NewRedisCache(rdb), cfg.Redis.TTL, logger)
}
