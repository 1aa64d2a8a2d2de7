package models

import (
	"errors"
	"strings"
	"time"
)

// DateTimeLayout is the wall-clock layout stored in the spreadsheet.
const DateTimeLayout = "2006-01-02 15:04:05"

// Reminder statuses as stored in the status column.
const (
	StatusOpen     = ""
	StatusDone     = "done"
	StatusNotDone  = "not_done"
	StatusCanceled = "canceled"
)

var (
	ErrNoText        = errors.New("reminder text is empty")
	ErrBadDateTime   = errors.New("invalid datetime format")
	ErrPastTime      = errors.New("reminder time is in the past")
	ErrRowNotFound   = errors.New("reminder row not found")
	ErrSheetMismatch = errors.New("unexpected worksheet layout")
)

// Reminder represents one row of the reminders worksheet.
// Column layout: datetime | text | timezone | sent | status | comment | forward_author | user_id.
type Reminder struct {
	Row           int    // 1-based worksheet row; 0 until persisted
	DateTime      string // wall-clock in Timezone, DateTimeLayout; empty for timeless reminders
	Text          string
	Timezone      string
	Sent          bool
	Status        string
	Comment       string // original forwarded message, if any
	ForwardAuthor string
	UserID        int64
}

// IsTimeless reports whether the reminder has no deadline and is subject
// to the weekly review instead of the due-check loop.
func (r *Reminder) IsTimeless() bool {
	return strings.TrimSpace(r.DateTime) == ""
}

// IsActive reports whether the reminder still awaits action.
func (r *Reminder) IsActive() bool {
	return r.Status != StatusDone && r.Status != StatusCanceled
}

// DueAt resolves the stored wall-clock time in the reminder's zone.
// A bad or empty zone name falls back to defaultZone (and then UTC),
// matching how the original rows were interpreted.
func (r *Reminder) DueAt(defaultZone *time.Location) (time.Time, error) {
	if r.IsTimeless() {
		return time.Time{}, ErrBadDateTime
	}
	loc := defaultZone
	if r.Timezone != "" {
		if l, err := time.LoadLocation(r.Timezone); err == nil {
			loc = l
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateTimeLayout, r.DateTime, loc)
	if err != nil {
		return time.Time{}, ErrBadDateTime
	}
	return t, nil
}

// Validate checks the reminder against the rules the extraction step
// promises: non-empty text, and, when a deadline is present, a parseable
// datetime that is not in the past. now is the current time in the
// reminder's zone.
func (r *Reminder) Validate(now time.Time, defaultZone *time.Location) error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrNoText
	}
	if r.IsTimeless() {
		return nil
	}
	due, err := r.DueAt(defaultZone)
	if err != nil {
		return err
	}
	if due.Before(now) {
		return ErrPastTime
	}
	return nil
}
