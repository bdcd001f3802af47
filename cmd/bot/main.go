// Command bot runs the Random Coffee Telegram bot: the update loop, the
// scheduled matching/follow-up/inactivity jobs, and the operator HTTP
// surface, all over a single SQLite database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-coffee-bot/internal/bot"
	"github.com/tbourn/go-coffee-bot/internal/config"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/observability"
	"github.com/tbourn/go-coffee-bot/internal/opsapi"
	"github.com/tbourn/go-coffee-bot/internal/repo"
	"github.com/tbourn/go-coffee-bot/internal/scheduler"
	"github.com/tbourn/go-coffee-bot/internal/services"
	"github.com/tbourn/go-coffee-bot/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a local-dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	var log zerolog.Logger
	if cfg.LogPretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (no-op unless enabled).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("setup otel: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shCtx); err != nil {
			log.Error().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	// Telegram.
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized with telegram")

	gateway := notify.NewTelegramGateway(api, cfg.DeliveryRPS, cfg.DeliveryBurst, cfg.DeliveryMaxAttempts, log)

	// Services.
	roster := services.NewRosterService(db)
	matching := services.NewMatchingService(db, gateway, cfg.DirectoryURL, log)
	followUp := services.NewFollowUpService(db, gateway, log)
	inactivity := services.NewInactivityService(db, gateway, cfg.InactivityThreshold, log)

	// Scheduled jobs. The inactivity job sweeps silence into misses first,
	// then prunes, matching what the manual ops trigger does.
	sched := scheduler.New(log)
	if err := sched.Add("matching", cfg.MatchCron, func(ctx context.Context) error {
		_, err := matching.Run(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule matching: %w", err)
	}
	if err := sched.Add("followup", cfg.FollowUpCron, func(ctx context.Context) error {
		_, err := followUp.SendPrompts(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule followup: %w", err)
	}
	if err := sched.Add("inactivity", cfg.InactivityCron, func(ctx context.Context) error {
		if _, err := followUp.SweepUnanswered(ctx, cfg.FollowUpGrace); err != nil {
			return err
		}
		_, err := inactivity.RemoveInactive(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule inactivity: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Operator HTTP surface.
	opsRouter := opsapi.NewRouter(opsapi.Deps{
		DB:         db,
		Matching:   matching,
		FollowUp:   followUp,
		Inactivity: inactivity,
		Grace:      cfg.FollowUpGrace,
		Token:      cfg.OpsToken,
		Log:        log,
	})
	opsSrv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.OpsAddr).Msg("ops server listening")
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server failed")
			stop()
		}
	}()
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsSrv.Shutdown(shCtx); err != nil {
			log.Error().Err(err).Msg("ops server shutdown")
		}
	}()

	// Telegram update loop; blocks until ctx is cancelled.
	b := bot.New(api, db, roster, matching, followUp, gateway, cfg.AdminUserIDs, log)
	b.Run(ctx)

	log.Info().Msg("shutting down")
	return nil
}
