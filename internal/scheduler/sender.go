package scheduler

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"napominator/internal/metrics"
)

// ErrRecipientBlocked means the user blocked the bot; retrying is pointless.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

var defaultRetryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

type notifier interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers Telegram messages with rate limiting and retry logic.
type Sender struct {
	tg      notifier
	limiter *rate.Limiter
	delays  []time.Duration
	logger  *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender builds a sender limited to perSecond messages with the given burst.
func NewSender(tg notifier, perSecond float64, burst int, logger *zerolog.Logger) *Sender {
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = 30
	}
	return &Sender{
		tg:      tg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		delays:  defaultRetryDelays,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// SendWithRetry sends a message, honoring Telegram's flood control and
// backing off on transient failures.
func (s *Sender) SendWithRetry(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= len(s.delays); attempt++ {
		_, err := s.tg.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429:
				wait := time.Duration(tgErr.RetryAfter) * time.Second
				if wait == 0 && attempt < len(s.delays) {
					wait = s.delays[attempt]
				}
				s.logger.Warn().
					Dur("retry_after", wait).
					Int("attempt", attempt).
					Msg("Rate limited by Telegram, waiting")
				metrics.IncTelegramRetry()
				if err := s.sleep(ctx, wait); err != nil {
					return err
				}
				continue
			case 403:
				s.logger.Warn().Msg("Recipient blocked the bot")
				return ErrRecipientBlocked
			case 400:
				s.logger.Error().Err(err).Msg("Bad request to Telegram")
				return err
			}
		}

		if attempt < len(s.delays) {
			delay := s.delays[attempt]
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying Telegram send")
			metrics.IncTelegramRetry()
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
