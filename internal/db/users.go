package db

import (
	"context"
	"database/sql"
	"time"
)

// User is a Telegram user the bot has seen.
type User struct {
	ID           int64
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSettings holds per-user preferences for the weekly review.
type UserSettings struct {
	ID            int64
	UserID        int64
	ReviewEnabled bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TouchUser upserts a user record and bumps last_activity.
func (db *DB) TouchUser(ctx context.Context, telegramID int64, username, firstName, lastName, languageCode string) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, language_code, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			last_activity = excluded.last_activity,
			updated_at = excluded.last_activity`,
		telegramID, username, firstName, lastName, languageCode, now)
	return err
}

// GetUserSettings returns review settings for a user.
// If no settings exist, returns defaults (review enabled).
func (db *DB) GetUserSettings(ctx context.Context, userID int64) (*UserSettings, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, review_enabled, created_at, updated_at
		FROM user_settings
		WHERE user_id = ?`, userID)

	var s UserSettings
	err := row.Scan(&s.ID, &s.UserID, &s.ReviewEnabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &UserSettings{UserID: userID, ReviewEnabled: true}, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertUserSettings creates or updates user settings.
func (db *DB) UpsertUserSettings(ctx context.Context, userID int64, reviewEnabled bool) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, review_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			review_enabled = excluded.review_enabled,
			updated_at = excluded.updated_at`,
		userID, reviewEnabled, now, now)
	return err
}

// ToggleReview flips the weekly review flag and returns the new state.
func (db *DB) ToggleReview(ctx context.Context, userID int64) (bool, error) {
	settings, err := db.GetUserSettings(ctx, userID)
	if err != nil {
		return false, err
	}

	newState := !settings.ReviewEnabled
	if err := db.UpsertUserSettings(ctx, userID, newState); err != nil {
		return false, err
	}
	return newState, nil
}
