package export

import (
	"bytes"
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"napominator/internal/models"
)

func sampleReminders() []models.Reminder {
	return []models.Reminder{
		{Row: 2, Text: "Активная задача", DateTime: "2030-01-01 09:00:00", Timezone: "Europe/Moscow"},
		{Row: 3, Text: "Задача без срока"},
		{Row: 4, Text: "Выполненная", DateTime: "2025-01-01 09:00:00",
			Timezone: "Europe/Moscow", Sent: true, Status: models.StatusDone},
	}
}

func TestBuildWorkbook(t *testing.T) {
	buf, err := BuildWorkbook(sampleReminders())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Активные", "Без срока", "Архив"}, f.GetSheetList())

	rows, err := f.GetRows("Активные")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Срок", rows[0][0])
	assert.Equal(t, "Активная задача", rows[1][1])

	timeless, err := f.GetRows("Без срока")
	require.NoError(t, err)
	require.Len(t, timeless, 2)
	assert.Equal(t, "Задача без срока", timeless[1][1])

	archive, err := f.GetRows("Архив")
	require.NoError(t, err)
	require.Len(t, archive, 2)
	assert.Equal(t, "Выполненная", archive[1][1])
	assert.Equal(t, "да", archive[1][3])
}

func TestBuildWorkbook_Empty(t *testing.T) {
	buf, err := BuildWorkbook(nil)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

type fakeSource struct {
	reminders []models.Reminder
}

func (f *fakeSource) AllReminders(context.Context) ([]models.Reminder, error) {
	return f.reminders, nil
}

type fakeNotifier struct {
	sent []tgbotapi.Chattable
}

func (f *fakeNotifier) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestExportToChat(t *testing.T) {
	logger := zerolog.Nop()
	tg := &fakeNotifier{}
	svc := NewService(&fakeSource{reminders: sampleReminders()}, tg, &logger)

	err := svc.ExportToChat(context.Background(), 100)
	require.NoError(t, err)

	require.Len(t, tg.sent, 1)
	doc, ok := tg.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Contains(t, doc.Caption, "всего 3")
}
