package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestTouchUser(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.TouchUser(ctx, 100, "ivan", "Иван", "Петров", "ru"))
	// Second touch must update, not fail on the unique constraint.
	require.NoError(t, database.TouchUser(ctx, 100, "ivan_new", "Иван", "Петров", "ru"))

	var username string
	err := database.QueryRowContext(ctx,
		`SELECT username FROM users WHERE telegram_id = ?`, 100).Scan(&username)
	require.NoError(t, err)
	assert.Equal(t, "ivan_new", username)
}

func TestUserSettings(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	t.Run("DefaultsWhenMissing", func(t *testing.T) {
		s, err := database.GetUserSettings(ctx, 200)
		require.NoError(t, err)
		assert.True(t, s.ReviewEnabled)
	})

	t.Run("Toggle", func(t *testing.T) {
		state, err := database.ToggleReview(ctx, 200)
		require.NoError(t, err)
		assert.False(t, state)

		s, err := database.GetUserSettings(ctx, 200)
		require.NoError(t, err)
		assert.False(t, s.ReviewEnabled)

		state, err = database.ToggleReview(ctx, 200)
		require.NoError(t, err)
		assert.True(t, state)
	})
}

func TestAuditLog(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.AppendAudit(ctx, "reminder_created", 100, 2, "Купить молоко"))
	require.NoError(t, database.AppendAudit(ctx, "reminder_fired", 100, 2, ""))

	entries, err := database.RecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first
	assert.Equal(t, "reminder_fired", entries[0].EventType)
	assert.Equal(t, "reminder_created", entries[1].EventType)
	assert.Equal(t, 2, entries[1].SheetRow)

	deleted, err := database.PruneAudit(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
