package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"napominator/internal/events"
	"napominator/internal/models"
)

type fakeNotifier struct {
	sent []tgbotapi.Chattable
	errs []error
}

func (f *fakeNotifier) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}

type fakeSheets struct {
	pending  []models.Reminder
	timeless []models.Reminder
	sentRows []int
}

func (f *fakeSheets) PendingReminders(context.Context) ([]models.Reminder, error) {
	return f.pending, nil
}

func (f *fakeSheets) TimelessReminders(context.Context) ([]models.Reminder, error) {
	return f.timeless, nil
}

func (f *fakeSheets) MarkSent(_ context.Context, row int) error {
	f.sentRows = append(f.sentRows, row)
	return nil
}

func newTestScheduler(t *testing.T, sheets *fakeSheets, tg *fakeNotifier) *Scheduler {
	t.Helper()
	logger := zerolog.Nop()
	sender := NewSender(tg, 100, 100, &logger)
	sender.sleep = func(context.Context, time.Duration) error { return nil }

	s, err := New(Config{
		OwnerChatID:      100,
		Timezone:         "Europe/Moscow",
		CheckInterval:    time.Minute,
		WeeklyReviewSpec: "0 10 * * SUN",
	}, sheets, sender, nil, events.NewBus(), &logger)
	require.NoError(t, err)
	return s
}

func TestCheckDue_FiresPastReminder(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, loc)

	sheets := &fakeSheets{pending: []models.Reminder{
		{Row: 2, Text: "Позвонить маме", DateTime: "2026-08-30 11:59:00", Timezone: "Europe/Moscow"},
		{Row: 3, Text: "Будущее", DateTime: "2026-08-30 12:30:00", Timezone: "Europe/Moscow"},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)
	s.now = func() time.Time { return now }

	s.CheckDue(context.Background())

	assert.Equal(t, []int{2}, sheets.sentRows)
	require.Len(t, tg.sent, 1)
	msg, ok := tg.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "Позвонить маме")
	assert.NotNil(t, msg.ReplyMarkup)
}

func TestCheckDue_RespectsRowTimezone(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	// 12:00 Moscow is 16:00 Novosibirsk, so a 15:00 Novosibirsk reminder is due.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, loc)

	sheets := &fakeSheets{pending: []models.Reminder{
		{Row: 2, Text: "Сибирская задача", DateTime: "2026-08-30 15:00:00", Timezone: "Asia/Novosibirsk"},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)
	s.now = func() time.Time { return now }

	s.CheckDue(context.Background())

	assert.Equal(t, []int{2}, sheets.sentRows)
}

func TestCheckDue_SkipsInactive(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, loc)

	sheets := &fakeSheets{pending: []models.Reminder{
		{Row: 2, Text: "Отменено", DateTime: "2026-08-30 11:00:00",
			Timezone: "Europe/Moscow", Status: models.StatusCanceled},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)
	s.now = func() time.Time { return now }

	s.CheckDue(context.Background())

	assert.Empty(t, sheets.sentRows)
	assert.Empty(t, tg.sent)
}

func TestCheckDue_BadDatetimeDoesNotBlockOthers(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Moscow")
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, loc)

	sheets := &fakeSheets{pending: []models.Reminder{
		{Row: 2, Text: "Сломанная", DateTime: "не дата", Timezone: "Europe/Moscow"},
		{Row: 3, Text: "Нормальная", DateTime: "2026-08-30 11:00:00", Timezone: "Europe/Moscow"},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)
	s.now = func() time.Time { return now }

	s.CheckDue(context.Background())

	assert.Equal(t, []int{3}, sheets.sentRows)
}

func TestWeeklyReview_SendsTimeless(t *testing.T) {
	sheets := &fakeSheets{timeless: []models.Reminder{
		{Row: 2, Text: "Купить молоко"},
		{Row: 4, Text: "Разобрать шкаф"},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)

	s.runWeeklyReview(context.Background())

	// header plus two items
	require.Len(t, tg.sent, 3)
	item, ok := tg.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, item.Text, "Купить молоко")
	assert.NotNil(t, item.ReplyMarkup)
}

func TestWeeklyReview_IncludesCommentPreview(t *testing.T) {
	sheets := &fakeSheets{timeless: []models.Reminder{
		{Row: 2, Text: "Ответить на сообщение", Comment: "текст пересланного сообщения"},
	}}
	tg := &fakeNotifier{}
	s := newTestScheduler(t, sheets, tg)

	s.runWeeklyReview(context.Background())

	require.Len(t, tg.sent, 2)
	item, ok := tg.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, item.Text, "текст пересланного сообщения")
}

func TestPreviewComment_Truncates(t *testing.T) {
	long := strings.Repeat("а", 150)

	got := previewComment(long)

	assert.Len(t, []rune(got), 103)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "коротко", previewComment("коротко"))
}

func TestWeeklyReview_EmptySendsNothing(t *testing.T) {
	tg := &fakeNotifier{}
	s := newTestScheduler(t, &fakeSheets{}, tg)

	s.runWeeklyReview(context.Background())

	assert.Empty(t, tg.sent)
}

func TestSendWithRetry_TransientErrorRetries(t *testing.T) {
	logger := zerolog.Nop()
	tg := &fakeNotifier{errs: []error{
		&tgbotapi.Error{Code: 500, Message: "internal"},
	}}
	sender := NewSender(tg, 100, 100, &logger)
	sender.sleep = func(context.Context, time.Duration) error { return nil }

	err := sender.SendWithRetry(context.Background(), tgbotapi.NewMessage(1, "привет"))
	assert.NoError(t, err)
	assert.Len(t, tg.sent, 2)
}

func TestSendWithRetry_FloodControl(t *testing.T) {
	logger := zerolog.Nop()
	tg := &fakeNotifier{errs: []error{
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}},
	}}
	sender := NewSender(tg, 100, 100, &logger)

	var slept []time.Duration
	sender.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := sender.SendWithRetry(context.Background(), tgbotapi.NewMessage(1, "привет"))
	assert.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, time.Second, slept[0])
}

func TestSendWithRetry_BlockedNoRetry(t *testing.T) {
	logger := zerolog.Nop()
	tg := &fakeNotifier{errs: []error{
		&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"},
	}}
	sender := NewSender(tg, 100, 100, &logger)
	sender.sleep = func(context.Context, time.Duration) error { return nil }

	err := sender.SendWithRetry(context.Background(), tgbotapi.NewMessage(1, "привет"))
	assert.ErrorIs(t, err, ErrRecipientBlocked)
	assert.Len(t, tg.sent, 1)
}
