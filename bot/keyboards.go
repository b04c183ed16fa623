package bot

import (
	tgbotapi "github.com/skinass/telegram-bot-api/v5"

	"PokerPilot/poker"
)

// voteKeyboard lays out the scale in rows of three, a skip button and the
// admin controls row (timer adjustment, force reveal).
func voteKeyboard(scale []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(scale); i += 3 {
		end := i + 3
		if end > len(scale) {
			end = len(scale)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, v := range scale[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(v, cbVote+v))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🙈 Skip", cbVote+poker.SkipVote),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⏰ +30s", cbTimer+"+30"),
		tgbotapi.NewInlineKeyboardButtonData("⏰ −30s", cbTimer+"-30"),
		tgbotapi.NewInlineKeyboardButtonData("✅ Reveal", cbFinish),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// revealKeyboard offers the admin override values plus advance/finish.
func revealKeyboard(scale []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(scale); i += 3 {
		end := i + 3
		if end > len(scale) {
			end = len(scale)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, v := range scale[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("📌 "+v, cbOverride+v))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➡️ Next task", cbAdvance),
		tgbotapi.NewInlineKeyboardButtonData("🏁 Finish batch", cbDone),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mainMenuKeyboard(isAdmin bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🆕 Task list", cbMenu+"new_task"),
			tgbotapi.NewInlineKeyboardButtonData("📋 Day summary", cbMenu+"summary"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Participants", cbMenu+"participants"),
			tgbotapi.NewInlineKeyboardButtonData("🚪 Leave", cbMenu+"leave"),
		),
	}
	if isAdmin {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Sync Story Points", cbAdmin+"sync"),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
