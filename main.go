package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/review-moderator/config"
	"github.com/raine/review-moderator/internal/cache"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/raine/review-moderator/internal/notify"
	"github.com/raine/review-moderator/internal/server"
	"github.com/raine/review-moderator/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	logFileName     = "review-moderator.log"
	shutdownTimeout = 30 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	// Check if required config is missing
	if missing := config.MissingRequired(); len(missing) > 0 {
		if isInteractiveTerminal() {
			// Interactive terminal - run setup wizard
			if !runSetupWizard() {
				waitOnWindows()
				os.Exit(1)
			}
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			fatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// Local development: log to both stderr and file
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		multiWriter := io.MultiWriter(consoleWriter, fileWriter)
		log.Logger = log.Output(multiWriter)

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalWithWait("invalid configuration: %v", err)
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := config.NewProvider(ctx, cfg)
	if err != nil {
		fatalWithWait("failed to initialize model provider: %v", err)
	}
	log.Info().
		Str("provider", provider.Name()).
		Str("outputMode", string(cfg.OutputMode)).
		Dur("timeout", cfg.ModelTimeout).
		Int("retries", cfg.Retries).
		Msg("model provider initialized")

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fatalWithWait("failed to initialize decision store: %v", err)
	}
	defer store.Close()
	store.WithVerdictTTL(cfg.VerdictCacheTTL)
	log.Info().Str("dbPath", cfg.DBPath).Msg("decision store initialized")

	opts := []moderation.Option{
		moderation.WithDraftMode(cfg.DraftMode),
		moderation.WithDecisionLog(store),
	}

	switch cfg.VerdictCache {
	case config.CacheSQLite:
		opts = append(opts, moderation.WithVerdictCache(store))
		log.Info().Dur("ttl", cfg.VerdictCacheTTL).Msg("verdict caching enabled (sqlite)")
	case config.CacheRedis:
		redisCache, err := cache.NewRedisVerdictCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.VerdictCacheTTL,
		})
		if err != nil {
			fatalWithWait("failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		opts = append(opts, moderation.WithVerdictCache(redisCache))
		log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.VerdictCacheTTL).Msg("verdict caching enabled (redis)")
	}

	if cfg.TelegramBotToken != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			fatalWithWait("failed to initialize telegram bot: %v", err)
		}
		log.Info().Str("username", tg.Self.UserName).Int64("chatID", cfg.TelegramChatID).Msg("rejection notifications enabled")
		opts = append(opts, moderation.WithNotifier(notify.NewTelegramNotifier(tg, cfg.TelegramChatID)))
	}

	svc := moderation.NewService(moderation.NewInvoker(provider, cfg.InvokerConfig()), opts...)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(svc, server.WithDecisions(store)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.VerdictCache == config.CacheSQLite {
		g.Go(func() error {
			store.RunPruner(ctx, storage.DefaultPruneInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
