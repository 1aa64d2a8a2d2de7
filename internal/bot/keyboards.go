package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes shared by the bot and the scheduler.
const (
	cbDone    = "done"
	cbCancel  = "cancel"
	cbKeep    = "keep"
	cbSetTime = "settime"
)

// NotificationKeyboard is attached to a fired reminder.
func NotificationKeyboard(row int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Выполнено", fmt.Sprintf("%s:%d", cbDone, row)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", fmt.Sprintf("%s:%d", cbCancel, row)),
		),
	)
}

// ReviewKeyboard is attached to each timeless reminder in the weekly review.
func ReviewKeyboard(row int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Актуально", fmt.Sprintf("%s:%d", cbKeep, row)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", fmt.Sprintf("%s:%d", cbCancel, row)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Назначить срок", fmt.Sprintf("%s:%d", cbSetTime, row)),
		),
	)
}
