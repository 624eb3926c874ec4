// Command server runs the lightning settlement backend: the HTTP API for
// invoice creation, payment checks, signature verification and payouts, plus
// the background reconciler that turns settled invoices into forum actions.
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

	"github.com/lnboard/go-lnboard-backend/internal/config"
	"github.com/lnboard/go-lnboard-backend/internal/forum"
	httpapi "github.com/lnboard/go-lnboard-backend/internal/http"
	"github.com/lnboard/go-lnboard-backend/internal/lnclient"
	"github.com/lnboard/go-lnboard-backend/internal/memo"
	"github.com/lnboard/go-lnboard-backend/internal/observability"
	"github.com/lnboard/go-lnboard-backend/internal/repo"
	"github.com/lnboard/go-lnboard-backend/internal/services"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if err := forum.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("forum migration failed")
	}

	ln := newLightningClient(cfg.Lightning)

	// Background settlement loop.
	forumStore := forum.NewStore(db)
	codec := memo.Codec{
		MaxMemoBytes:  cfg.Payment.MaxMemoBytes,
		MaxTitleBytes: memo.DefaultMaxTitleBytes,
	}
	dispatcher := services.NewDispatcher(db, forumStore, ln,
		log.With().Str("svc", "dispatcher").Logger())
	reconciler := services.NewReconciler(db, ln, dispatcher, codec,
		cfg.Reconciler.PollInterval, cfg.Reconciler.Retention,
		log.With().Str("svc", "reconciler").Logger())
	reconciler.PageSize = cfg.Reconciler.PageSize
	go reconciler.Run(ctx)

	// HTTP transport.
	r := gin.New()
	httpapi.RegisterRoutes(r, db, ln, forumStore, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// newLightningClient selects the lncli-backed client, or the in-memory fake
// when LN_MOCK_NODE is set (local development only).
func newLightningClient(cfg config.LightningConfig) lnclient.Client {
	if cfg.MockNode {
		log.Warn().Msg("using mock lightning node, payments are not real")
		return lnclient.NewFakeClient()
	}
	return &lnclient.CLIClient{
		Bin:             cfg.CLIBin,
		MacaroonPathTpl: cfg.MacaroonPathTpl,
		TLSCertPathTpl:  cfg.TLSCertPathTpl,
		Timeout:         cfg.CallTimeout,
		Retries:         cfg.Retries,
		Log:             log.With().Str("svc", "lncli").Logger(),
	}
}
