package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		// ChatID is the owner chat where reminders fire and reports land.
		ChatID int64 `yaml:"chat_id"`
		Debug  bool  `yaml:"debug"`
	} `yaml:"telegram"`

	OpenAI struct {
		APIKey       string `yaml:"api_key"`
		BaseURL      string `yaml:"base_url"`
		ChatModel    string `yaml:"chat_model"`
		WhisperModel string `yaml:"whisper_model"`
		Language     string `yaml:"language"`
	} `yaml:"openai"`

	Sheets struct {
		CredentialsPath string `yaml:"credentials_path"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		Worksheet       string `yaml:"worksheet"`
	} `yaml:"sheets"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduler struct {
		Timezone             string `yaml:"timezone"`
		CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
		// WeeklyReviewSpec is a cron expression for the timeless-reminder review.
		WeeklyReviewSpec string `yaml:"weekly_review_spec"`
		// MonthlyExportSpec is a cron expression for the worksheet export.
		MonthlyExportSpec    string `yaml:"monthly_export_spec"`
		MonthlyExportEnabled bool   `yaml:"monthly_export_enabled"`
	} `yaml:"scheduler"`

	Limits struct {
		// SendRatePerSecond caps outgoing Telegram messages.
		SendRatePerSecond float64 `yaml:"send_rate_per_second"`
		SendBurst         int     `yaml:"send_burst"`
		// PairWindowSeconds is how long an explanation and a forwarded
		// message may be apart and still be linked.
		PairWindowSeconds int `yaml:"pair_window_seconds"`
		// PairSettleSeconds is how long a lone message waits for its
		// potential pair before being processed on its own.
		PairSettleSeconds int `yaml:"pair_settle_seconds"`
	} `yaml:"limits"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.WhisperModel == "" {
		c.OpenAI.WhisperModel = "whisper-1"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "ru"
	}
	if c.Sheets.Worksheet == "" {
		c.Sheets.Worksheet = "reminders"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/napominator.db"
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Europe/Moscow"
	}
	if c.Scheduler.CheckIntervalSeconds <= 0 {
		c.Scheduler.CheckIntervalSeconds = 60
	}
	if c.Scheduler.WeeklyReviewSpec == "" {
		c.Scheduler.WeeklyReviewSpec = "0 10 * * SUN"
	}
	if c.Scheduler.MonthlyExportSpec == "" {
		c.Scheduler.MonthlyExportSpec = "1 0 1 * *"
	}
	if c.Limits.SendRatePerSecond <= 0 {
		c.Limits.SendRatePerSecond = 20
	}
	if c.Limits.SendBurst <= 0 {
		c.Limits.SendBurst = 30
	}
	if c.Limits.PairWindowSeconds <= 0 {
		c.Limits.PairWindowSeconds = 30
	}
	if c.Limits.PairSettleSeconds <= 0 {
		c.Limits.PairSettleSeconds = 5
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks the settings without which the bot cannot start.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return fmt.Errorf("telegram.bot_token is not set")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is not set")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is not set")
	}
	if c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is not set")
	}
	return nil
}

// CheckInterval returns the due-check period for the scheduler loop.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Scheduler.CheckIntervalSeconds) * time.Second
}

// PairWindow returns the explanation/forward linking window.
func (c *Config) PairWindow() time.Duration {
	return time.Duration(c.Limits.PairWindowSeconds) * time.Second
}

// PairSettle returns the lone-message settle delay.
func (c *Config) PairSettle() time.Duration {
	return time.Duration(c.Limits.PairSettleSeconds) * time.Second
}

// CacheTTL returns the Redis cache TTL for extraction results.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
