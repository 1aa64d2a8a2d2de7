package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"napominator/internal/db"
	"napominator/internal/events"
	"napominator/internal/metrics"
	"napominator/internal/models"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) GetFileDirectURL(fileID string) (string, error) {
	return c.api.GetFileDirectURL(fileID)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

type sheetStore interface {
	AddReminder(ctx context.Context, r *models.Reminder) (int, error)
	ReminderByRow(ctx context.Context, row int) (*models.Reminder, error)
	AllReminders(ctx context.Context) ([]models.Reminder, error)
	TimelessReminders(ctx context.Context) ([]models.Reminder, error)
	UpdateStatus(ctx context.Context, row int, status string) error
	UpdateDatetime(ctx context.Context, row int, datetime string) error
}

type extractor interface {
	ExtractAndValidate(ctx context.Context, message string) (*models.Reminder, error)
	ExtractForwarded(ctx context.Context, forwardedText string) (*models.Reminder, error)
	DownloadAndTranscribe(ctx context.Context, fileURL string) (string, error)
}

// Bot handles incoming Telegram updates for the single configured owner.
type Bot struct {
	tg          telegramClient
	sheets      sheetStore
	ai          extractor
	db          *db.DB
	bus         *events.Bus
	state       *stateStore
	buffer      *pairBuffer
	ownerChatID int64
	location    *time.Location
	logger      *zerolog.Logger

	// ExportFunc, when set, handles the /export command.
	ExportFunc func(ctx context.Context, chatID int64) error
}

// Options carries bot construction parameters.
type Options struct {
	OwnerChatID int64
	Timezone    string
	PairWindow  time.Duration
	PairSettle  time.Duration
}

// NewAPI authorizes a Telegram API client for the given token.
func NewAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return api, nil
}

// New wires the bot on top of an authorized API client, which the caller
// may share with other senders.
func New(
	api *tgbotapi.BotAPI,
	opts Options,
	sheets sheetStore,
	ai extractor,
	database *db.DB,
	bus *events.Bus,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(&realTelegramClient{api: api}, opts, sheets, ai, database, bus, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	opts Options,
	sheets sheetStore,
	ai extractor,
	database *db.DB,
	bus *events.Bus,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, opts, sheets, ai, database, bus, logger)
}

func newBot(
	tg telegramClient,
	opts Options,
	sheets sheetStore,
	ai extractor,
	database *db.DB,
	bus *events.Bus,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
	}
	if opts.PairWindow <= 0 {
		opts.PairWindow = 30 * time.Second
	}
	if opts.PairSettle <= 0 {
		opts.PairSettle = 5 * time.Second
	}

	b := &Bot{
		tg:          tg,
		sheets:      sheets,
		ai:          ai,
		db:          database,
		bus:         bus,
		state:       newStateStore(),
		ownerChatID: opts.OwnerChatID,
		location:    loc,
		logger:      logger,
	}
	b.buffer = newPairBuffer(opts.PairWindow, opts.PairSettle, b.handlePair)
	return b, nil
}

// Start begins polling updates until the context is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Reminder bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
		return
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	if b.ownerChatID != 0 && msg.Chat.ID != b.ownerChatID {
		b.reply(msg.Chat.ID, "Этот бот личный. Доступ только у владельца.")
		return
	}

	b.touchUser(ctx, msg.From)

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, msg, text)
		return
	}

	if msg.Voice != nil {
		b.handleVoice(ctx, msg)
		return
	}

	st := b.state.get(msg.From.ID)
	if st.Step == stepAwaitDeadline && text != "" {
		row := st.Row
		b.state.reset(msg.From.ID)
		b.handleDeadlineInput(ctx, msg.Chat.ID, msg.From.ID, row, text)
		return
	}

	if isForwarded(msg) {
		b.buffer.AddForward(msg)
		return
	}
	if text != "" {
		b.buffer.AddExplanation(msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, text string) {
	switch {
	case strings.HasPrefix(text, "/start"):
		b.state.reset(msg.From.ID)
		b.reply(msg.Chat.ID,
			"Привет! Я бот-напоминалка.\n\n"+
				"Отправь мне текст, голосовое или перешли сообщение, и я создам напоминание.\n"+
				"Например: «напомни завтра в 10 позвонить маме».\n\n"+
				"Команды: /list, /review, /export, /mute, /unmute, /help")
	case strings.HasPrefix(text, "/help"):
		b.reply(msg.Chat.ID,
			"Как пользоваться:\n"+
				"• Текст или голосовое «напомни ...» — создам напоминание с датой.\n"+
				"• Пересланное сообщение — превращу в задачу.\n"+
				"• Пересланное + пояснение «напомни ...» — свяжу их вместе.\n\n"+
				"/list — активные напоминания\n"+
				"/review — задачи без срока\n"+
				"/export — выгрузка в Excel\n"+
				"/mute — отключить еженедельный обзор\n"+
				"/unmute — включить еженедельный обзор")
	case strings.HasPrefix(text, "/list"):
		b.handleList(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/review"):
		b.handleReview(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/export"):
		if b.ExportFunc == nil {
			b.reply(msg.Chat.ID, "Выгрузка недоступна.")
			return
		}
		if err := b.ExportFunc(ctx, msg.Chat.ID); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Export failed")
			b.reply(msg.Chat.ID, "Не получилось сделать выгрузку. Попробуйте позже.")
		}
	case strings.HasPrefix(text, "/mute"):
		b.setReviewEnabled(ctx, msg, false)
	case strings.HasPrefix(text, "/unmute"):
		b.setReviewEnabled(ctx, msg, true)
	case strings.HasPrefix(text, "/cancel"):
		b.state.reset(msg.From.ID)
		b.reply(msg.Chat.ID, "Операция отменена.")
	default:
		b.reply(msg.Chat.ID, "Неизвестная команда. Посмотрите /help.")
	}
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	l := zerolog.Ctx(ctx)

	placeholder, err := b.tg.Send(tgbotapi.NewMessage(msg.Chat.ID, "🎤 Распознаю голосовое сообщение..."))
	if err != nil {
		l.Error().Err(err).Msg("Failed to send placeholder")
	}

	fileURL, err := b.tg.GetFileDirectURL(msg.Voice.FileID)
	if err != nil {
		l.Error().Err(err).Msg("Failed to resolve voice file")
		b.editOrReply(msg.Chat.ID, placeholder.MessageID, "Не удалось получить голосовое сообщение.")
		return
	}

	transcript, err := b.ai.DownloadAndTranscribe(ctx, fileURL)
	if err != nil {
		metrics.IncTranscriptionFailed()
		l.Error().Err(err).Msg("Transcription failed")
		b.editOrReply(msg.Chat.ID, placeholder.MessageID, "Не удалось распознать голосовое сообщение.")
		return
	}
	if strings.TrimSpace(transcript) == "" {
		b.editOrReply(msg.Chat.ID, placeholder.MessageID, "В голосовом сообщении не нашлось текста.")
		return
	}

	b.bus.Publish(events.Event{Type: events.TranscriptionDone, Text: transcript, UserID: msg.From.ID})
	b.editOrReply(msg.Chat.ID, placeholder.MessageID, "🎤 Распознано: "+transcript)
	b.createFromText(ctx, msg.Chat.ID, msg.From.ID, transcript, creationExtras{source: "voice"})
}

// handlePair is the pair buffer flush callback.
func (b *Bot) handlePair(forward, explanation *tgbotapi.Message) {
	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	ctx := l.WithContext(context.Background())

	switch {
	case forward != nil && explanation != nil:
		combined := fmt.Sprintf("%s\n\nПересланное сообщение: %s",
			strings.TrimSpace(explanation.Text), forwardedText(forward))
		b.createFromText(ctx, explanation.Chat.ID, explanation.From.ID, combined,
			creationExtras{author: forwardAuthor(forward), comment: forwardedText(forward), source: "pair"})
	case forward != nil:
		b.createFromForward(ctx, forward)
	case explanation != nil:
		b.createFromText(ctx, explanation.Chat.ID, explanation.From.ID,
			explanation.Text, creationExtras{source: "text"})
	}
}

type creationExtras struct {
	author  string
	comment string
	source  string
}

func (b *Bot) createFromText(ctx context.Context, chatID, userID int64, text string, extras creationExtras) {
	l := zerolog.Ctx(ctx)

	r, err := b.ai.ExtractAndValidate(ctx, text)
	if err != nil {
		metrics.IncExtractionFailed()
		l.Error().Err(err).Msg("Extraction failed")
		b.reply(chatID, "Не удалось разобрать напоминание. Попробуйте сформулировать иначе.")
		return
	}
	r.ForwardAuthor = extras.author
	r.Comment = extras.comment
	r.UserID = userID
	b.saveReminder(ctx, chatID, userID, r, extras.source)
}

func (b *Bot) createFromForward(ctx context.Context, forward *tgbotapi.Message) {
	l := zerolog.Ctx(ctx)

	text := forwardedText(forward)
	if text == "" {
		b.reply(forward.Chat.ID, "В пересланном сообщении нет текста.")
		return
	}

	r, err := b.ai.ExtractForwarded(ctx, text)
	if err != nil {
		metrics.IncExtractionFailed()
		l.Error().Err(err).Msg("Forwarded extraction failed")
		b.reply(forward.Chat.ID, "Не удалось разобрать пересланное сообщение.")
		return
	}
	r.ForwardAuthor = forwardAuthor(forward)
	r.UserID = forward.From.ID
	b.saveReminder(ctx, forward.Chat.ID, forward.From.ID, r, "forward")
}

func (b *Bot) saveReminder(ctx context.Context, chatID, userID int64, r *models.Reminder, source string) {
	l := zerolog.Ctx(ctx)

	row, err := b.sheets.AddReminder(ctx, r)
	if err != nil {
		l.Error().Err(err).Msg("Failed to save reminder")
		b.reply(chatID, "Не удалось сохранить напоминание. Попробуйте позже.")
		return
	}

	metrics.IncReminderCreated(source)
	b.bus.Publish(events.Event{Type: events.ReminderCreated, Row: row, Text: r.Text, UserID: userID})
	b.audit(ctx, "reminder_created", userID, row, r.Text)

	if r.IsTimeless() {
		b.reply(chatID, fmt.Sprintf("📝 Записал без срока: %s\nНапомню о ней в еженедельном обзоре.", r.Text))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Напоминание создано: %s\n🕓 %s (%s)", r.Text, r.DateTime, r.Timezone))
}

func (b *Bot) handleDeadlineInput(ctx context.Context, chatID, userID int64, row int, text string) {
	l := zerolog.Ctx(ctx)

	existing, err := b.sheets.ReminderByRow(ctx, row)
	if err != nil {
		l.Error().Err(err).Int("row", row).Msg("Failed to load reminder")
		b.reply(chatID, "Не нашёл это напоминание.")
		return
	}

	combined := fmt.Sprintf("Напомни %s %s", existing.Text, text)
	r, err := b.ai.ExtractAndValidate(ctx, combined)
	if err != nil || r.IsTimeless() {
		metrics.IncExtractionFailed()
		// Keep waiting so the next message is a retry, not a new reminder.
		st := b.state.get(userID)
		st.Step = stepAwaitDeadline
		st.Row = row
		b.reply(chatID, "Не понял дату. Например: «завтра в 15:00» или «в пятницу».")
		return
	}

	if err := b.sheets.UpdateDatetime(ctx, row, r.DateTime); err != nil {
		l.Error().Err(err).Int("row", row).Msg("Failed to update datetime")
		b.reply(chatID, "Не удалось обновить срок.")
		return
	}

	b.bus.Publish(events.Event{Type: events.DeadlineRescheduled, Row: row, Text: existing.Text, UserID: userID})
	b.audit(ctx, "deadline_set", userID, row, r.DateTime)
	b.reply(chatID, fmt.Sprintf("📅 Срок назначен: %s\n🕓 %s", existing.Text, r.DateTime))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	all, err := b.sheets.AllReminders(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to list reminders")
		b.reply(chatID, "Не удалось получить список напоминаний.")
		return
	}

	var lines []string
	for i := range all {
		r := &all[i]
		if !r.IsActive() || r.Sent {
			continue
		}
		if r.IsTimeless() {
			lines = append(lines, fmt.Sprintf("• %s (без срока)", r.Text))
		} else {
			lines = append(lines, fmt.Sprintf("• %s — %s", r.Text, r.DateTime))
		}
	}
	if len(lines) == 0 {
		b.reply(chatID, "Активных напоминаний нет.")
		return
	}
	b.reply(chatID, "Активные напоминания:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) handleReview(ctx context.Context, chatID int64) {
	timeless, err := b.sheets.TimelessReminders(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to load timeless reminders")
		b.reply(chatID, "Не удалось получить задачи без срока.")
		return
	}
	if len(timeless) == 0 {
		b.reply(chatID, "Задач без срока нет.")
		return
	}

	b.reply(chatID, "Задачи без срока:")
	for i := range timeless {
		r := &timeless[i]
		msg := tgbotapi.NewMessage(chatID, "📌 "+r.Text)
		msg.ReplyMarkup = ReviewKeyboard(r.Row)
		if _, err := b.tg.Send(msg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int("row", r.Row).Msg("Failed to send review item")
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	_ = b.answerCallback(cq.ID)

	action, row, ok := parseCallback(cq.Data)
	if !ok {
		return
	}
	chatID := cq.Message.Chat.ID
	l := zerolog.Ctx(ctx)

	switch action {
	case cbDone:
		if err := b.sheets.UpdateStatus(ctx, row, models.StatusDone); err != nil {
			l.Error().Err(err).Int("row", row).Msg("Failed to mark done")
			b.reply(chatID, "Не удалось обновить статус.")
			return
		}
		metrics.IncStatusChanged(models.StatusDone)
		b.bus.Publish(events.Event{Type: events.StatusChanged, Row: row, Detail: models.StatusDone, UserID: cq.From.ID})
		b.audit(ctx, "status_changed", cq.From.ID, row, models.StatusDone)
		b.editOrReply(chatID, cq.Message.MessageID, cq.Message.Text+"\n\n✅ Выполнено")
	case cbCancel:
		if err := b.sheets.UpdateStatus(ctx, row, models.StatusCanceled); err != nil {
			l.Error().Err(err).Int("row", row).Msg("Failed to cancel")
			b.reply(chatID, "Не удалось обновить статус.")
			return
		}
		metrics.IncStatusChanged(models.StatusCanceled)
		b.bus.Publish(events.Event{Type: events.StatusChanged, Row: row, Detail: models.StatusCanceled, UserID: cq.From.ID})
		b.audit(ctx, "status_changed", cq.From.ID, row, models.StatusCanceled)
		b.editOrReply(chatID, cq.Message.MessageID, cq.Message.Text+"\n\n❌ Отменено")
	case cbKeep:
		b.editMarkup(chatID, cq.Message.MessageID)
		b.reply(chatID, "👌 Оставил в списке.")
	case cbSetTime:
		st := b.state.get(cq.From.ID)
		st.Step = stepAwaitDeadline
		st.Row = row
		b.reply(chatID, "Когда напомнить? Например: «завтра в 15:00» или «в пятницу».")
	}
}

func (b *Bot) setReviewEnabled(ctx context.Context, msg *tgbotapi.Message, enabled bool) {
	if err := b.db.UpsertUserSettings(ctx, msg.From.ID, enabled); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to update settings")
		b.reply(msg.Chat.ID, "Не удалось сохранить настройку.")
		return
	}
	if enabled {
		b.reply(msg.Chat.ID, "🔔 Еженедельный обзор включён.")
	} else {
		b.reply(msg.Chat.ID, "🔕 Еженедельный обзор отключён.")
	}
}

func (b *Bot) touchUser(ctx context.Context, from *tgbotapi.User) {
	if b.db == nil {
		return
	}
	err := b.db.TouchUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName, from.LanguageCode)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", from.ID).Msg("Failed to record user activity")
	}
}

func (b *Bot) audit(ctx context.Context, eventType string, userID int64, row int, detail string) {
	if b.db == nil {
		return
	}
	if err := b.db.AppendAudit(ctx, eventType, userID, row, detail); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("event", eventType).Msg("Failed to append audit entry")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

// editOrReply rewrites the referenced message in place, falling back to a
// fresh message when there is nothing to edit. Editing the text also drops
// any inline keyboard.
func (b *Bot) editOrReply(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.reply(chatID, text)
		return
	}
	if _, err := b.tg.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.reply(chatID, text)
	}
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

// editMarkup drops the inline keyboard from an answered message.
func (b *Bot) editMarkup(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = b.tg.Request(edit)
}

func parseCallback(data string) (action string, row int, ok bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil || row < 2 {
		return "", 0, false
	}
	return parts[0], row, true
}

func isForwarded(msg *tgbotapi.Message) bool {
	return msg.ForwardFrom != nil ||
		msg.ForwardFromChat != nil ||
		msg.ForwardSenderName != "" ||
		msg.ForwardDate != 0
}

func forwardedText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// forwardAuthor extracts the original sender of a forwarded message. Users
// with protected forwards show up only as a sender name.
func forwardAuthor(msg *tgbotapi.Message) string {
	if msg.ForwardFrom != nil {
		name := strings.TrimSpace(msg.ForwardFrom.FirstName + " " + msg.ForwardFrom.LastName)
		if msg.ForwardFrom.UserName != "" {
			if name != "" {
				return name + " (@" + msg.ForwardFrom.UserName + ")"
			}
			return "@" + msg.ForwardFrom.UserName
		}
		return name
	}
	if msg.ForwardSenderName != "" {
		return msg.ForwardSenderName
	}
	if msg.ForwardFromChat != nil {
		return msg.ForwardFromChat.Title
	}
	return ""
}
