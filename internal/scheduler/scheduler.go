package scheduler

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"napominator/internal/bot"
	"napominator/internal/db"
	"napominator/internal/events"
	"napominator/internal/metrics"
	"napominator/internal/models"
)

type sheetStore interface {
	PendingReminders(ctx context.Context) ([]models.Reminder, error)
	TimelessReminders(ctx context.Context) ([]models.Reminder, error)
	MarkSent(ctx context.Context, row int) error
}

// Config holds scheduler settings.
type Config struct {
	OwnerChatID      int64
	Timezone         string
	CheckInterval    time.Duration
	WeeklyReviewSpec string
	ExportSpec       string
	ExportEnabled    bool
}

// Scheduler fires due reminders and runs the periodic jobs.
type Scheduler struct {
	cfg      Config
	sheets   sheetStore
	sender   *Sender
	db       *db.DB
	bus      *events.Bus
	location *time.Location
	cron     *cron.Cron
	logger   *zerolog.Logger

	// ExportFunc, when set, runs the scheduled worksheet export.
	ExportFunc func(ctx context.Context, chatID int64) error

	now func() time.Time
}

func New(
	cfg Config,
	sheets sheetStore,
	sender *Sender,
	database *db.DB,
	bus *events.Bus,
	logger *zerolog.Logger,
) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Scheduler{
		cfg:      cfg,
		sheets:   sheets,
		sender:   sender,
		db:       database,
		bus:      bus,
		location: loc,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start runs the due-check loop and cron jobs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.WeeklyReviewSpec, func() { s.runWeeklyReview(ctx) }); err != nil {
		return fmt.Errorf("schedule weekly review: %w", err)
	}
	if s.cfg.ExportEnabled && s.ExportFunc != nil {
		if _, err := s.cron.AddFunc(s.cfg.ExportSpec, func() { s.runExport(ctx) }); err != nil {
			return fmt.Errorf("schedule export: %w", err)
		}
	}
	s.cron.Start()
	defer s.cron.Stop()

	s.logger.Info().
		Str("timezone", s.cfg.Timezone).
		Dur("check_interval", s.cfg.CheckInterval).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.CheckDue(ctx)
		}
	}
}

// CheckDue fires every pending reminder whose time has come.
func (s *Scheduler) CheckDue(ctx context.Context) {
	pending, err := s.sheets.PendingReminders(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load pending reminders")
		return
	}

	now := s.now().In(s.location)
	for i := range pending {
		r := &pending[i]
		if !r.IsActive() {
			continue
		}
		dueAt, err := r.DueAt(s.location)
		if err != nil {
			s.logger.Error().Err(err).Int("row", r.Row).Str("datetime", r.DateTime).
				Msg("Unparseable reminder time")
			continue
		}
		if dueAt.After(now) {
			continue
		}
		s.fire(ctx, r)
	}
}

func (s *Scheduler) fire(ctx context.Context, r *models.Reminder) {
	text := "⏰ Напоминание: " + r.Text
	if r.ForwardAuthor != "" {
		text += "\n👤 От: " + r.ForwardAuthor
	}
	if r.Comment != "" {
		text += "\n💬 " + r.Comment
	}
	msg := tgbotapi.NewMessage(s.cfg.OwnerChatID, text)
	msg.ReplyMarkup = bot.NotificationKeyboard(r.Row)

	if err := s.sender.SendWithRetry(ctx, msg); err != nil {
		s.logger.Error().Err(err).Int("row", r.Row).Msg("Failed to deliver reminder")
		return
	}

	if err := s.sheets.MarkSent(ctx, r.Row); err != nil {
		s.logger.Error().Err(err).Int("row", r.Row).Msg("Failed to mark reminder as sent")
		return
	}

	metrics.IncReminderFired()
	s.bus.Publish(events.Event{Type: events.ReminderFired, Row: r.Row, Text: r.Text})
	s.audit(ctx, "reminder_fired", r.UserID, r.Row, r.Text)
	s.logger.Info().Int("row", r.Row).Str("text", r.Text).Msg("Reminder fired")
}

// runWeeklyReview sends every open timeless reminder with review buttons.
func (s *Scheduler) runWeeklyReview(ctx context.Context) {
	if s.db != nil {
		settings, err := s.db.GetUserSettings(ctx, s.cfg.OwnerChatID)
		if err == nil && !settings.ReviewEnabled {
			s.logger.Info().Msg("Weekly review muted, skipping")
			return
		}
	}

	timeless, err := s.sheets.TimelessReminders(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load timeless reminders")
		return
	}
	if len(timeless) == 0 {
		return
	}

	header := tgbotapi.NewMessage(s.cfg.OwnerChatID,
		"📋 Еженедельный обзор задач без срока. Что с ними делаем?")
	if err := s.sender.SendWithRetry(ctx, header); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send review header")
		return
	}

	for i := range timeless {
		r := &timeless[i]
		text := "📌 " + r.Text
		if r.Comment != "" {
			text += "\n💬 " + previewComment(r.Comment)
		}
		msg := tgbotapi.NewMessage(s.cfg.OwnerChatID, text)
		msg.ReplyMarkup = bot.ReviewKeyboard(r.Row)
		if err := s.sender.SendWithRetry(ctx, msg); err != nil {
			s.logger.Error().Err(err).Int("row", r.Row).Msg("Failed to send review item")
			continue
		}
		metrics.IncWeeklyReviewSent()
	}
	s.logger.Info().Int("count", len(timeless)).Msg("Weekly review sent")
}

// previewComment caps the stored comment at 100 runes for review items.
func previewComment(s string) string {
	runes := []rune(s)
	if len(runes) <= 100 {
		return s
	}
	return string(runes[:100]) + "..."
}

func (s *Scheduler) runExport(ctx context.Context) {
	if err := s.ExportFunc(ctx, s.cfg.OwnerChatID); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled export failed")
	}
}

func (s *Scheduler) audit(ctx context.Context, eventType string, userID int64, row int, detail string) {
	if s.db == nil {
		return
	}
	if err := s.db.AppendAudit(ctx, eventType, userID, row, detail); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to append audit entry")
	}
}
