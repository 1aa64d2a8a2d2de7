package google

import (
	"testing"

	"napominator/internal/models"
)

func TestReminderRowValues(t *testing.T) {
	r := &models.Reminder{
		DateTime:      "2030-05-01 09:00:00",
		Text:          "Позвонить маме",
		Timezone:      "Europe/Moscow",
		Status:        "",
		Comment:       "original forwarded text",
		ForwardAuthor: "Анна",
		UserID:        36542572,
	}

	values := reminderRowValues(r)

	expected := []interface{}{
		"2030-05-01 09:00:00",
		"Позвонить маме",
		"Europe/Moscow",
		"FALSE",
		"",
		"original forwarded text",
		"Анна",
		"36542572",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestReminderRowValues_TimelessNoUser(t *testing.T) {
	r := &models.Reminder{Text: "Купить молоко", Timezone: "Europe/Moscow"}
	values := reminderRowValues(r)

	if values[0] != "" {
		t.Errorf("Expected empty datetime, got %v", values[0])
	}
	if values[7] != "" {
		t.Errorf("Expected empty user_id, got %v", values[7])
	}
}

func TestParseRow(t *testing.T) {
	values := []interface{}{
		"2030-05-01 09:00:00", "Позвонить маме", "Europe/Moscow", "TRUE", "Done", "comment", "Анна", "36542572",
	}

	r := parseRow(5, values)

	if r.Row != 5 {
		t.Errorf("Expected row 5, got %d", r.Row)
	}
	if !r.Sent {
		t.Error("Expected sent=true")
	}
	if r.Status != "done" {
		t.Errorf("Expected normalized status done, got %q", r.Status)
	}
	if r.UserID != 36542572 {
		t.Errorf("Expected user id, got %d", r.UserID)
	}
}

func TestParseRow_ShortRow(t *testing.T) {
	// The API trims trailing empty cells.
	r := parseRow(3, []interface{}{"", "Купить молоко"})

	if !r.IsTimeless() {
		t.Error("Expected timeless reminder")
	}
	if r.Text != "Купить молоко" {
		t.Errorf("Unexpected text: %q", r.Text)
	}
	if r.Sent {
		t.Error("Expected sent=false for missing cell")
	}
}

func TestFilterPending(t *testing.T) {
	all := []models.Reminder{
		{Row: 2, DateTime: "2030-05-01 09:00:00", Text: "a"},
		{Row: 3, DateTime: "2030-05-01 09:00:00", Text: "b", Sent: true},
		{Row: 4, Text: "timeless"},
		{Row: 5, DateTime: "2030-06-01 09:00:00", Text: "c"},
	}

	pending := filterPending(all)

	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending reminders, got %d", len(pending))
	}
	if pending[0].Row != 2 || pending[1].Row != 5 {
		t.Errorf("Unexpected rows: %d, %d", pending[0].Row, pending[1].Row)
	}
}

func TestFilterTimeless(t *testing.T) {
	all := []models.Reminder{
		{Row: 2, Text: "keep", Status: models.StatusOpen},
		{Row: 3, Text: "done", Status: models.StatusDone},
		{Row: 4, Text: "canceled", Status: models.StatusCanceled},
		{Row: 5, Text: "not done yet", Status: models.StatusNotDone},
		{Row: 6, DateTime: "2030-05-01 09:00:00", Text: "timed"},
	}

	timeless := filterTimeless(all)

	if len(timeless) != 2 {
		t.Fatalf("Expected 2 timeless reminders, got %d", len(timeless))
	}
	for _, r := range timeless {
		if !r.IsTimeless() {
			t.Errorf("Row %d is not timeless", r.Row)
		}
	}
}

func TestRowFromRange(t *testing.T) {
	tests := []struct {
		a1   string
		want int
	}{
		{"reminders!A5:H5", 5},
		{"reminders!A12", 12},
		{"A7:H7", 7},
		{"garbage", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := rowFromRange(tt.a1); got != tt.want {
			t.Errorf("rowFromRange(%q) = %d, want %d", tt.a1, got, tt.want)
		}
	}
}

func TestColumnLetter(t *testing.T) {
	if columnLetter(colDateTime) != "A" {
		t.Error("datetime column should be A")
	}
	if columnLetter(colSent) != "D" {
		t.Error("sent column should be D")
	}
	if columnLetter(colUserID) != "H" {
		t.Error("user_id column should be H")
	}
}
