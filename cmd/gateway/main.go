// Command gateway runs the table-side ordering gateway. It terminates the
// OAuth redirect from the authentication provider, performs the exactly-once
// credential exchange against the restaurant backend, keeps a live projection
// of the guest's orders fed by the backend's push channel, and serves the
// projected state over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-order-gateway/internal/bootstrap"
	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/config"
	httpapi "github.com/tbourn/go-order-gateway/internal/http"
	"github.com/tbourn/go-order-gateway/internal/ledger"
	"github.com/tbourn/go-order-gateway/internal/notify"
	"github.com/tbourn/go-order-gateway/internal/observability"
	"github.com/tbourn/go-order-gateway/internal/repo"
	"github.com/tbourn/go-order-gateway/internal/sysutil"
	"github.com/tbourn/go-order-gateway/internal/upstream"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; absence of .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	// Old attempt records only gate replays for their TTL; drop the rest.
	if err := repo.PurgeExpiredAttempts(ctx, db, time.Now()); err != nil {
		log.Warn().Err(err).Msg("attempt purge failed")
	}

	client := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, log.Logger)

	msgs := notify.NewCatalog(cfg.Locale)
	relay := &notify.LogRelay{Log: log.Logger}

	var opener channel.Opener
	if cfg.SocketURL != "" {
		opener = &channel.Dialer{URL: cfg.SocketURL, Log: log.Logger}
	} else {
		// No push endpoint configured: events arrive via an in-process hub
		// (useful for development and tests).
		opener = channel.NewHub(log.Logger)
	}

	book := ledger.New(orderSource{client: client, db: db}, relay, msgs, log.Logger)

	boot := &bootstrap.Bootstrap{
		Exchanger:     client,
		Sessions:      sessionStore{db: db},
		Attempts:      attemptStore{db: db, ttl: cfg.AttemptTTL},
		Opener:        opener,
		Relay:         relay,
		Msgs:          msgs,
		Log:           log.Logger,
		DashboardPath: cfg.DashboardPath,
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, boot, book, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	book.Detach()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("gateway stopped")
}
