package render

import (
	"github.com/go-telegram/bot/models"
)

// Markup converts the reply keyboard into a Telegram inline keyboard. It
// returns nil when the reply has no buttons so the field is omitted.
func Markup(reply Reply) models.ReplyMarkup {
	if len(reply.Keyboard) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(reply.Keyboard))
	for _, row := range reply.Keyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, inlineButton(button))
		}
		rows = append(rows, buttons)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func inlineButton(button Button) models.InlineKeyboardButton {
	out := models.InlineKeyboardButton{Text: button.Label}

	switch button.Action.Kind {
	case ActionOpenView:
		out.WebApp = &models.WebAppInfo{URL: button.Action.Target}
	default:
		out.CallbackData = button.Action.Target
	}

	return out
}
