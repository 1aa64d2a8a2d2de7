package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "123:abc"
  chat_id: 36542572
openai:
  api_key: "sk-test"
sheets:
  spreadsheet_id: "sheet-id"
database:
  path: "`+filepath.Join(t.TempDir(), "bot.db")+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	assert.Equal(t, "ru", cfg.OpenAI.Language)
	assert.Equal(t, "reminders", cfg.Sheets.Worksheet)
	assert.Equal(t, "Europe/Moscow", cfg.Scheduler.Timezone)
	assert.Equal(t, time.Minute, cfg.CheckInterval())
	assert.Equal(t, "0 10 * * SUN", cfg.Scheduler.WeeklyReviewSpec)
	assert.Equal(t, 30*time.Second, cfg.PairWindow())
	assert.Equal(t, 5*time.Second, cfg.PairSettle())
	assert.Equal(t, 20.0, cfg.Limits.SendRatePerSecond)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "999:secret")
	path := writeConfig(t, `
telegram:
  bot_token: "${TEST_BOT_TOKEN}"
  chat_id: 1
database:
  path: "`+filepath.Join(t.TempDir(), "bot.db")+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "999:secret", cfg.Telegram.BotToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Telegram.BotToken = "123:abc"
		cfg.Telegram.ChatID = 42
		cfg.OpenAI.APIKey = "sk"
		cfg.Sheets.SpreadsheetID = "id"
		return cfg
	}

	t.Run("OK", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("NoToken", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.BotToken = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("PlaceholderToken", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.BotToken = "YOUR_BOT_TOKEN_HERE"
		assert.Error(t, cfg.Validate())
	})

	t.Run("NoChat", func(t *testing.T) {
		cfg := base()
		cfg.Telegram.ChatID = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("NoAPIKey", func(t *testing.T) {
		cfg := base()
		cfg.OpenAI.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("NoSpreadsheet", func(t *testing.T) {
		cfg := base()
		cfg.Sheets.SpreadsheetID = ""
		assert.Error(t, cfg.Validate())
	})
}
