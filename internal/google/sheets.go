package google

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"napominator/internal/models"
)

// Column order of the reminders worksheet. Row 1 is the header.
var headerRow = []interface{}{
	"datetime", "text", "timezone", "sent", "status", "comment", "forward_author", "user_id",
}

// 1-based column numbers.
const (
	colDateTime = 1
	colText     = 2
	colTimezone = 3
	colSent     = 4
	colStatus   = 5
	colComment  = 6
	colAuthor   = 7
	colUserID   = 8
	numColumns  = 8
)

// SheetsService persists reminders in a Google Sheets worksheet.
// Reminders are addressed by their 1-based row number.
type SheetsService struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	logger        *zerolog.Logger

	mu       sync.Mutex
	rowCount int // last known data extent, 0 if unknown
}

// NewSheetsService authorizes with a service-account credentials file and
// makes sure the worksheet carries the expected header.
func NewSheetsService(ctx context.Context, credsPath, spreadsheetID, worksheet string, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	s := &SheetsService{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		logger:        logger,
	}
	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info().Str("spreadsheet", spreadsheetID).Str("worksheet", worksheet).Msg("Connected to Google Sheets")
	return s, nil
}

func (s *SheetsService) ensureHeader(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeAll()).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read worksheet: %w", err)
	}
	if len(resp.Values) > 0 {
		s.mu.Lock()
		s.rowCount = len(resp.Values)
		s.mu.Unlock()
		return nil
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{headerRow}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeRow(1), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.mu.Lock()
	s.rowCount = 1
	s.mu.Unlock()
	return nil
}

// AddReminder appends a reminder and returns its row number.
func (s *SheetsService) AddReminder(ctx context.Context, r *models.Reminder) (int, error) {
	vr := &sheets.ValueRange{Values: [][]interface{}{reminderRowValues(r)}}
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeAll(), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append reminder: %w", err)
	}

	row := 0
	if resp.Updates != nil {
		row = rowFromRange(resp.Updates.UpdatedRange)
	}
	if row == 0 {
		// Fall back to counting rows when the range is unparsable.
		all, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeAll()).Context(ctx).Do()
		if err != nil {
			return 0, fmt.Errorf("locate appended row: %w", err)
		}
		row = len(all.Values)
	}

	s.setRowCount(row)
	s.logger.Info().Int("row", row).Str("text", r.Text).Msg("Reminder added")
	r.Row = row
	return row, nil
}

// PendingReminders returns reminders that have a datetime and were not sent yet.
func (s *SheetsService) PendingReminders(ctx context.Context) ([]models.Reminder, error) {
	all, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterPending(all), nil
}

// TimelessReminders returns reminders without a deadline that are still open,
// for the weekly review.
func (s *SheetsService) TimelessReminders(ctx context.Context) ([]models.Reminder, error) {
	all, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterTimeless(all), nil
}

// AllReminders returns every data row, for exports.
func (s *SheetsService) AllReminders(ctx context.Context) ([]models.Reminder, error) {
	return s.fetchAll(ctx)
}

// ReminderByRow fetches a single reminder.
func (s *SheetsService) ReminderByRow(ctx context.Context, row int) (*models.Reminder, error) {
	if row < 2 {
		return nil, models.ErrRowNotFound
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeRow(row)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read row %d: %w", row, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) < colText {
		return nil, models.ErrRowNotFound
	}
	r := parseRow(row, resp.Values[0])
	return &r, nil
}

// MarkSent sets the sent flag for a row.
func (s *SheetsService) MarkSent(ctx context.Context, row int) error {
	return s.updateCell(ctx, row, colSent, "TRUE")
}

// UpdateStatus sets the status column for a row.
func (s *SheetsService) UpdateStatus(ctx context.Context, row int, status string) error {
	return s.updateCell(ctx, row, colStatus, status)
}

// UpdateDatetime sets a deadline on a row, converting a timeless reminder
// into a timed one. The sent flag is reset so the due loop picks it up.
func (s *SheetsService) UpdateDatetime(ctx context.Context, row int, datetime string) error {
	if err := s.updateCell(ctx, row, colDateTime, datetime); err != nil {
		return err
	}
	return s.updateCell(ctx, row, colSent, "FALSE")
}

func (s *SheetsService) updateCell(ctx context.Context, row, col int, value string) error {
	if row < 2 {
		return models.ErrRowNotFound
	}
	cell := fmt.Sprintf("%s!%s%d", s.worksheet, columnLetter(col), row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	s.logger.Debug().Int("row", row).Int("col", col).Str("value", value).Msg("Cell updated")
	return nil
}

func (s *SheetsService) fetchAll(ctx context.Context) ([]models.Reminder, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeAll()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet: %w", err)
	}
	s.setRowCount(len(resp.Values))

	var reminders []models.Reminder
	for i, values := range resp.Values {
		if i == 0 {
			continue // header
		}
		reminders = append(reminders, parseRow(i+1, values))
	}
	return reminders, nil
}

func (s *SheetsService) setRowCount(n int) {
	s.mu.Lock()
	if n > s.rowCount {
		s.rowCount = n
	}
	s.mu.Unlock()
}

// RowCount returns the last observed worksheet extent.
func (s *SheetsService) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowCount
}

func (s *SheetsService) rangeAll() string {
	return fmt.Sprintf("%s!A:H", s.worksheet)
}

func (s *SheetsService) rangeRow(row int) string {
	return fmt.Sprintf("%s!A%d:H%d", s.worksheet, row, row)
}

// reminderRowValues lays a reminder out in worksheet column order.
func reminderRowValues(r *models.Reminder) []interface{} {
	sent := "FALSE"
	if r.Sent {
		sent = "TRUE"
	}
	userID := ""
	if r.UserID != 0 {
		userID = strconv.FormatInt(r.UserID, 10)
	}
	return []interface{}{
		r.DateTime,
		r.Text,
		r.Timezone,
		sent,
		r.Status,
		r.Comment,
		r.ForwardAuthor,
		userID,
	}
}

// parseRow reads a worksheet row back into a Reminder. Short rows are
// padded; the sheet trims trailing empty cells.
func parseRow(row int, values []interface{}) models.Reminder {
	cell := func(col int) string {
		if col-1 < len(values) {
			if s, ok := values[col-1].(string); ok {
				return s
			}
			return fmt.Sprint(values[col-1])
		}
		return ""
	}

	userID, _ := strconv.ParseInt(strings.TrimSpace(cell(colUserID)), 10, 64)
	return models.Reminder{
		Row:           row,
		DateTime:      strings.TrimSpace(cell(colDateTime)),
		Text:          cell(colText),
		Timezone:      strings.TrimSpace(cell(colTimezone)),
		Sent:          strings.EqualFold(strings.TrimSpace(cell(colSent)), "true"),
		Status:        strings.ToLower(strings.TrimSpace(cell(colStatus))),
		Comment:       cell(colComment),
		ForwardAuthor: cell(colAuthor),
		UserID:        userID,
	}
}

func filterPending(all []models.Reminder) []models.Reminder {
	var pending []models.Reminder
	for _, r := range all {
		if !r.IsTimeless() && !r.Sent {
			pending = append(pending, r)
		}
	}
	return pending
}

func filterTimeless(all []models.Reminder) []models.Reminder {
	var timeless []models.Reminder
	for _, r := range all {
		if r.IsTimeless() && r.IsActive() {
			timeless = append(timeless, r)
		}
	}
	return timeless
}

// rowFromRange extracts the row number from an A1 range like "reminders!A5:H5".
func rowFromRange(a1 string) int {
	idx := strings.LastIndex(a1, "!")
	if idx >= 0 {
		a1 = a1[idx+1:]
	}
	if idx := strings.Index(a1, ":"); idx >= 0 {
		a1 = a1[:idx]
	}
	digits := strings.TrimLeftFunc(a1, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	})
	row, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return row
}

func columnLetter(col int) string {
	return string(rune('A' + col - 1))
}
