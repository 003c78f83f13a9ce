package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/api/handler"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/audit"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("ledgerd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "") // empty = in-memory ledger
	viper.SetDefault("ledger.admin", "")
	viper.SetDefault("ledger.max_entries_per_key", actledger.DefaultMaxEntriesPerKey)
	viper.SetDefault("ledger.max_description_len", actledger.DefaultMaxDescriptionLen)
	viper.SetDefault("ledger.max_dispute_notes_len", actledger.DefaultMaxDisputeNotesLen)
	viper.SetDefault("auth.token_secret", "")
	viper.SetDefault("auth.issuer_url", "")
	viper.SetDefault("auth.token_ttl_seconds", 86400)
	viper.SetDefault("audit.webhook_urls", []string{})
	viper.SetDefault("audit.webhook_secret", "")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	admin := viper.GetString("ledger.admin")
	if admin == "" {
		return fmt.Errorf("ledger.admin must be set (LEDGER_ADMIN)")
	}
	tokenSecret := viper.GetString("auth.token_secret")
	if tokenSecret == "" {
		return fmt.Errorf("auth.token_secret must be set (AUTH_TOKEN_SECRET)")
	}

	httpPort := viper.GetInt("server.port")
	issuerURL := viper.GetString("auth.issuer_url")
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}

	cfg := actledger.Config{
		Admin:              admin,
		MaxEntriesPerKey:   viper.GetInt("ledger.max_entries_per_key"),
		MaxDescriptionLen:  viper.GetInt("ledger.max_description_len"),
		MaxDisputeNotesLen: viper.GetInt("ledger.max_dispute_notes_len"),
	}

	// ── Audit event sink ──────────────────────────────────────────────────────
	var sink actledger.EventSink
	if urls := viper.GetStringSlice("audit.webhook_urls"); len(urls) > 0 {
		secret := viper.GetString("audit.webhook_secret")
		subs := make([]audit.Subscriber, len(urls))
		for i, u := range urls {
			subs[i] = audit.Subscriber{URL: u, Secret: secret}
		}
		dispatcher := audit.NewDispatcher(subs, logger)
		dispatcher.SetMetricsRecorder(handler.RecordAuditDelivery)
		sink = dispatcher
		logger.Info("audit webhooks configured", zap.Int("subscribers", len(subs)))
	}

	// ── Ledger engine ─────────────────────────────────────────────────────────
	var ledger actledger.Ledger
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		pg := actledger.NewPostgresLedger(db, cfg, logger)
		pg.SetEventSink(sink)
		ledger = pg
	} else {
		mem := actledger.New(cfg)
		mem.SetEventSink(sink)
		ledger = mem
		logger.Warn("no database.url configured — using in-memory ledger; entries are lost on restart")
	}

	n, err := ledger.EntryCount(context.Background())
	if err != nil {
		return fmt.Errorf("read ledger tail: %w", err)
	}
	logger.Info("ledger ready",
		zap.Uint64("entries", n),
		zap.Int("max_entries_per_key", ledger.MaxEntriesPerKey()),
	)

	// ── Auth ──────────────────────────────────────────────────────────────────
	tokenTTL := time.Duration(viper.GetInt("auth.token_ttl_seconds")) * time.Second
	tokens := handler.NewTokenIssuer([]byte(tokenSecret), issuerURL, tokenTTL)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	ledgerHandler := handler.NewLedgerHandler(ledger, logger)
	ledgerHandler.Register(router.Group("/api/v1"), handler.RequireCaller(tokens))

	// ── Serve ─────────────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down ledgerd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
