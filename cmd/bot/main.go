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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"napominator/internal/audio"
	"napominator/internal/bot"
	"napominator/internal/config"
	"napominator/internal/db"
	"napominator/internal/events"
	"napominator/internal/export"
	"napominator/internal/google"
	"napominator/internal/metrics"
	"napominator/internal/openai"
	"napominator/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("NAPOMINATOR_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, cfg.Sheets.Worksheet, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init sheets error")
	}

	converter, err := audio.NewFFmpegConverter(&logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ffmpeg is required for voice messages")
	}

	aiClient, err := openai.NewClient(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		ChatModel:    cfg.OpenAI.ChatModel,
		WhisperModel: cfg.OpenAI.WhisperModel,
		Language:     cfg.OpenAI.Language,
		Timezone:     cfg.Scheduler.Timezone,
	}, converter, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init openai client error")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Redis.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		aiClient.UseRedisCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewBus()
	subscribeEventLog(bus, &logger)

	api, err := bot.NewAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram authorization error")
	}

	b, err := bot.New(api, bot.Options{
		OwnerChatID: cfg.Telegram.ChatID,
		Timezone:    cfg.Scheduler.Timezone,
		PairWindow:  cfg.PairWindow(),
		PairSettle:  cfg.PairSettle(),
	}, sheetsService, aiClient, database, bus, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	exportService := export.NewService(sheetsService, api, &logger)
	b.ExportFunc = exportService.ExportToChat

	sender := scheduler.NewSender(api, cfg.Limits.SendRatePerSecond, cfg.Limits.SendBurst, &logger)
	sched, err := scheduler.New(scheduler.Config{
		OwnerChatID:      cfg.Telegram.ChatID,
		Timezone:         cfg.Scheduler.Timezone,
		CheckInterval:    cfg.CheckInterval(),
		WeeklyReviewSpec: cfg.Scheduler.WeeklyReviewSpec,
		ExportSpec:       cfg.Scheduler.MonthlyExportSpec,
		ExportEnabled:    cfg.Scheduler.MonthlyExportEnabled,
	}, sheetsService, sender, database, bus, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create scheduler error")
	}
	sched.ExportFunc = exportService.ExportToChat

	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler error")
		}
	}()

	if cfg.Backup.Enabled {
		backupSvc := db.NewBackupService(cfg.Database.Path, cfg, &logger)
		go backupSvc.Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("Reminder bot started")
	b.Start(ctx)
}

func subscribeEventLog(bus *events.Bus, logger *zerolog.Logger) {
	for _, evType := range []string{
		events.ReminderCreated,
		events.ReminderFired,
		events.StatusChanged,
		events.TranscriptionDone,
		events.DeadlineRescheduled,
	} {
		bus.Subscribe(evType, func(e events.Event) {
			logger.Debug().
				Str("event", e.Type).
				Int("row", e.Row).
				Str("detail", e.Detail).
				Msg("Domain event")
		})
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
