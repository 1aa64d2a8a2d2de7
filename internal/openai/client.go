package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"napominator/internal/models"
)

var (
	ErrNoCompletion = errors.New("no completion received")
	ErrNoExtraction = errors.New("could not extract reminder from message")
	ErrEmptyAudio   = errors.New("audio payload is empty")
)

// Converter turns Telegram OGG/Opus voice payloads into MP3 for Whisper.
type Converter interface {
	OggToMP3(ctx context.Context, ogg []byte) ([]byte, error)
}

// Extraction is the JSON object the model is asked to return.
type Extraction struct {
	Text     string  `json:"text"`
	DateTime *string `json:"datetime"`
	Timezone string  `json:"timezone"`
}

// Client wraps the OpenAI SDK: reminder extraction and voice transcription.
type Client struct {
	client       *openai.Client
	chatModel    openai.ChatModel
	whisperModel string
	language     string
	timezone     string
	location     *time.Location
	converter    Converter
	httpClient   *http.Client
	logger       *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// Config holds client settings.
type Config struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	WhisperModel string
	Language     string
	Timezone     string
}

// NewClient builds a client for the configured models.
func NewClient(cfg Config, converter Converter, logger *zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{
		client:       &client,
		chatModel:    openai.ChatModel(cfg.ChatModel),
		whisperModel: cfg.WhisperModel,
		language:     cfg.Language,
		timezone:     cfg.Timezone,
		location:     loc,
		converter:    converter,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		now:          time.Now,
	}, nil
}

// UseRedisCache configures optional caching of extraction results.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ExtractReminder asks the model to pull reminder text and deadline out of
// a free-form message.
func (c *Client) ExtractReminder(ctx context.Context, message string) (*Extraction, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrNoExtraction
	}

	now := c.now().In(c.location)
	cacheKey := extractionCacheKey(message, now)
	if cached := c.readCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	req := openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(buildSystemPrompt(now, c.timezone)),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(message),
					},
				},
			},
		},
		Temperature:         openai.Float(0.1),
		MaxCompletionTokens: openai.Int(300),
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoCompletion
	}

	extraction, err := parseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Error().Err(err).Str("raw", resp.Choices[0].Message.Content).Msg("Failed to parse extraction")
		return nil, err
	}
	if extraction.Timezone == "" {
		extraction.Timezone = c.timezone
	}

	c.writeCache(ctx, cacheKey, extraction)
	c.logger.Info().Str("text", extraction.Text).Msg("Reminder extracted")
	return extraction, nil
}

// ExtractAndValidate extracts a reminder and validates the result. If the
// model produced a past time, it retries once with an explicit instruction
// to recalculate to the nearest future occurrence.
func (c *Client) ExtractAndValidate(ctx context.Context, message string) (*models.Reminder, error) {
	extraction, err := c.ExtractReminder(ctx, message)
	if err != nil {
		return nil, err
	}

	r := c.toReminder(extraction)
	now := c.now().In(c.location)
	if err := r.Validate(now, c.location); err == nil {
		return r, nil
	} else if !errors.Is(err, models.ErrPastTime) {
		return nil, err
	}

	adjusted := message + "\n\nIMPORTANT: Previous calculation resulted in a past time.\n" +
		"Recalculate to get the NEAREST FUTURE date/time while preserving the original intent."
	extraction, err = c.ExtractReminder(ctx, adjusted)
	if err != nil {
		return nil, err
	}

	r = c.toReminder(extraction)
	if err := r.Validate(c.now().In(c.location), c.location); err != nil {
		return nil, err
	}
	return r, nil
}

// ExtractForwarded derives an actionable reminder from a forwarded message
// that came without an explanation.
func (c *Client) ExtractForwarded(ctx context.Context, forwardedText string) (*models.Reminder, error) {
	prompt := "Convert this forwarded message into a short, actionable reminder task.\n" +
		"Do NOT include words like \"remind\" - just the action itself.\n" +
		"If there's a date/time mentioned, extract it. If not, datetime should be null.\n\n" +
		"Forwarded message: " + forwardedText

	extraction, err := c.ExtractReminder(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return c.toReminder(extraction), nil
}

// Transcribe sends MP3 audio to Whisper and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, mp3 []byte) (string, error) {
	if len(mp3) == 0 {
		return "", ErrEmptyAudio
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	resp, err := c.client.Audio.Transcriptions.New(reqCtx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModel(c.whisperModel),
		File:     openai.File(bytes.NewReader(mp3), "voice.mp3", "audio/mpeg"),
		Language: openai.String(c.language),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	c.logger.Info().Str("text", text).Msg("Voice transcribed")
	return text, nil
}

// DownloadAndTranscribe fetches a voice file, converts it and transcribes it.
func (c *Client) DownloadAndTranscribe(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download audio: http %d", resp.StatusCode)
	}

	ogg, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	mp3, err := c.converter.OggToMP3(ctx, ogg)
	if err != nil {
		return "", fmt.Errorf("convert audio: %w", err)
	}
	return c.Transcribe(ctx, mp3)
}

func (c *Client) toReminder(e *Extraction) *models.Reminder {
	r := &models.Reminder{
		Text:     strings.TrimSpace(e.Text),
		Timezone: e.Timezone,
	}
	if r.Timezone == "" {
		r.Timezone = c.timezone
	}
	if e.DateTime != nil {
		r.DateTime = strings.TrimSpace(*e.DateTime)
	}
	return r
}

func (c *Client) readCache(ctx context.Context, key string) *Extraction {
	if c.redis == nil || c.cacheTTL <= 0 {
		return nil
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}
	var e Extraction
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil
	}
	return &e
}

func (c *Client) writeCache(ctx context.Context, key string, e *Extraction) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

// extractionCacheKey includes the minute the prompt is anchored to, so
// relative expressions like "через час" never resolve against a stale clock.
func extractionCacheKey(message string, now time.Time) string {
	sum := sha256.Sum256([]byte(now.Format("2006-01-02 15:04") + "|" + message))
	return "extract:" + hex.EncodeToString(sum[:])
}

// buildSystemPrompt carries the date-calculation rules the extraction
// depends on. The current time and weekday anchor all relative expressions.
func buildSystemPrompt(now time.Time, timezone string) string {
	current := now.Format(models.DateTimeLayout)
	weekday := now.Format("Monday")

	return fmt.Sprintf(`You are a precise date/time extraction assistant for a reminder bot.

CURRENT DATE AND TIME: %s (%s)
CURRENT DAY OF WEEK: %s

Your task: Extract reminder information from user messages in Russian.

RULES FOR DATE/TIME CALCULATION:

1. RELATIVE TIME:
   - "через X часов/минут/дней" = current time + X
   - "через полчаса" = current time + 30 minutes
   - "через час" = current time + 1 hour

2. SPECIFIC DATES WITHOUT YEAR:
   - "10-го числа" or "10-го" = 10th of CURRENT month (if not passed) or NEXT month
   - "в январе", "в феврале" = NEAREST future occurrence of that month
   - If the date has already passed this month/year, use NEXT occurrence

3. DAYS OF WEEK:
   - "в воскресенье", "в понедельник" = NEAREST FUTURE occurrence
   - "в эту субботу" = this week's Saturday (if not passed)
   - "в следующий понедельник" = next week's Monday

4. COMPLEX EXPRESSIONS:
   - "за X часов до события" = event_time - X hours
   - "за 30 часов до 18:00 29-го октября" = calculate 29 Oct 18:00 - 30 hours
   - "за день до встречи в пятницу" = Thursday (day before Friday)

5. NO TIME SPECIFIED:
   - If message has NO time/date info, return datetime: null
   - Examples: "купить молоко", "позвонить маме" without time = datetime: null

6. DEFAULT TIME:
   - If date specified but no time: use 09:00 as default
   - "завтра" without time = tomorrow at 09:00
   - "в пятницу" without time = Friday at 09:00

CRITICAL: Never return a past date/time. Always calculate relative to %s.

EXTRACT:
1. text: The reminder content (what to remind about), in Russian, starting with capital letter
2. datetime: In format "YYYY-MM-DD HH:MM:SS" or null if no time specified
3. timezone: "%s"

Return ONLY a JSON object:
{"text": "reminder text", "datetime": "YYYY-MM-DD HH:MM:SS" or null, "timezone": "%s"}`,
		current, timezone, weekday, current, timezone, timezone)
}

// parseExtraction decodes the model output, tolerating markdown code fences.
func parseExtraction(raw string) (*Extraction, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		parts := strings.SplitN(cleaned, "```", 3)
		if len(parts) >= 2 {
			cleaned = parts[1]
		}
		cleaned = strings.TrimPrefix(cleaned, "json")
		cleaned = strings.TrimSpace(cleaned)
	}

	var e Extraction
	if err := json.Unmarshal([]byte(cleaned), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExtraction, err)
	}
	if strings.TrimSpace(e.Text) == "" {
		return nil, ErrNoExtraction
	}
	return &e, nil
}
