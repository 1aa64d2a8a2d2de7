package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"napominator/internal/models"
)

var columns = []string{
	"Срок", "Задача", "Часовой пояс", "Отправлено",
	"Статус", "Комментарий", "Автор пересылки", "User ID",
}

type sheetSource interface {
	AllReminders(ctx context.Context) ([]models.Reminder, error)
}

type notifier interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Service builds XLSX snapshots of the worksheet and sends them to Telegram.
type Service struct {
	sheets sheetSource
	tg     notifier
	logger *zerolog.Logger
}

func NewService(sheets sheetSource, tg notifier, logger *zerolog.Logger) *Service {
	return &Service{sheets: sheets, tg: tg, logger: logger}
}

// ExportToChat sends the current worksheet as an Excel document.
func (s *Service) ExportToChat(ctx context.Context, chatID int64) error {
	reminders, err := s.sheets.AllReminders(ctx)
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}

	buf, err := BuildWorkbook(reminders)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}

	name := fmt.Sprintf("reminders-%s.xlsx", time.Now().Format("2006-01-02"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("📊 Выгрузка напоминаний: всего %d", len(reminders))
	if _, err := s.tg.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	s.logger.Info().Int("count", len(reminders)).Int64("chat_id", chatID).Msg("Export sent")
	return nil
}

// BuildWorkbook splits reminders into active, timeless and archive sheets.
func BuildWorkbook(reminders []models.Reminder) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	var active, timeless, archive []models.Reminder
	for _, r := range reminders {
		switch {
		case !r.IsActive() || r.Sent:
			archive = append(archive, r)
		case r.IsTimeless():
			timeless = append(timeless, r)
		default:
			active = append(active, r)
		}
	}

	sheets := []struct {
		name string
		rows []models.Reminder
	}{
		{"Активные", active},
		{"Без срока", timeless},
		{"Архив", archive},
	}

	for i, sheet := range sheets {
		if i == 0 {
			f.SetSheetName("Sheet1", sheet.name)
		} else {
			if _, err := f.NewSheet(sheet.name); err != nil {
				return nil, fmt.Errorf("create sheet %s: %w", sheet.name, err)
			}
		}
		if err := writeSheet(f, sheet.name, sheet.rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

func writeSheet(f *excelize.File, sheet string, rows []models.Reminder) error {
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for i, r := range rows {
		values := reminderRow(&r)
		for j, val := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func reminderRow(r *models.Reminder) []interface{} {
	sent := "нет"
	if r.Sent {
		sent = "да"
	}
	status := r.Status
	if status == models.StatusOpen {
		status = "открыто"
	}
	var userID interface{} = ""
	if r.UserID != 0 {
		userID = r.UserID
	}
	return []interface{}{
		r.DateTime, r.Text, r.Timezone, sent,
		status, r.Comment, r.ForwardAuthor, userID,
	}
}
