package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reminderCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "reminder_created_total",
			Help:      "Count of reminders created by source (text, voice, forward).",
		},
		[]string{"source"},
	)

	reminderFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "reminder_fired_total",
			Help:      "Count of due reminder notifications sent.",
		},
	)

	statusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "status_changed_total",
			Help:      "Count of reminder status changes by status.",
		},
		[]string{"status"},
	)

	weeklyReviewSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "weekly_review_sent_total",
			Help:      "Count of timeless reminders surfaced by weekly review.",
		},
	)

	extractionFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "extraction_failed_total",
			Help:      "Count of failed reminder extractions.",
		},
	)

	transcriptionFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "transcription_failed_total",
			Help:      "Count of failed voice transcriptions.",
		},
	)

	telegramRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "napominator",
			Name:      "telegram_send_retries_total",
			Help:      "Count of retried Telegram send attempts.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reminderCreated,
			reminderFired,
			statusChanged,
			weeklyReviewSent,
			extractionFailed,
			transcriptionFailed,
			telegramRetries,
		)
	})
}

func IncReminderCreated(source string) {
	reminderCreated.WithLabelValues(source).Inc()
}

func IncReminderFired() {
	reminderFired.Inc()
}

func IncStatusChanged(status string) {
	statusChanged.WithLabelValues(status).Inc()
}

func IncWeeklyReviewSent() {
	weeklyReviewSent.Inc()
}

func IncExtractionFailed() {
	extractionFailed.Inc()
}

func IncTranscriptionFailed() {
	transcriptionFailed.Inc()
}

func IncTelegramRetry() {
	telegramRetries.Inc()
}
