package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wingo-bot/internal/database"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/service"
)

const (
	welcomeText = `🎮 Welcome to WinGo Prediction Bot!

🤖 I analyse the latest draws with 15 algorithms and predict BIG or SMALL for the next round.

📝 Available commands:
/predict - Get the prediction for the next round
/history - View recent draw results
/stats - View win/loss statistics
/subscribe - Receive every new prediction
/unsubscribe - Stop receiving predictions
/help - Help information

⚠️ Note: This bot only provides services in private chats`

	helpText = `📖 Command Help:

/start - Start using the bot
/predict - Run a prediction cycle now
/history - View the last 10 draw results
/stats - View prediction statistics
/subscribe - Push new predictions to this chat
/unsubscribe - Stop the pushes
/help - Show this help information

💡 Usage Tips:
• Numbers 5-9 are BIG, 0-4 are SMALL
• Each request settles the previous prediction once its round is drawn
• Predictions are for reference only, please be rational`

	disclaimer = "💡 *Tips*: Predictions are for reference only, please be rational"
)

// formatPrediction 单轮预测详情
func formatPrediction(report *service.CycleReport) string {
	var b strings.Builder

	b.WriteString("🔮 *WinGo Prediction*\n\n")

	if o := report.Outcome; o != nil {
		b.WriteString(o.Message())
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("Round `%s`: predicted `%s`, drawn `%d` (%s)\n\n",
			o.PredictedPeriod, o.Prediction, o.ActualNumber, o.ActualResult))
	}

	b.WriteString("🎯 *Latest Result*\n")
	b.WriteString(formatDraw(report.Latest))
	b.WriteString("\n\n")

	b.WriteString("🔮 *Next Round*\n")
	b.WriteString(fmt.Sprintf("Round: `%s`\n", report.Prediction.TargetPeriod))
	b.WriteString(fmt.Sprintf("Prediction: *%s*\n", report.Ensemble.FinalPrediction))
	b.WriteString(fmt.Sprintf("Confidence: `%.2f%%`\n", report.Ensemble.Confidence))
	b.WriteString(fmt.Sprintf("Agreement: `%d%%` (%d/%d)\n",
		report.Ensemble.AgreementRatio, report.Ensemble.AgreeCount, report.Ensemble.AlgorithmsUsed))
	b.WriteString(fmt.Sprintf("Votes: BIG `%.2f` | SMALL `%.2f`\n",
		report.Ensemble.Votes.Big, report.Ensemble.Votes.Small))

	if len(report.TopAlgorithms) > 0 {
		b.WriteString("\n🏅 *Top Algorithms*\n")
		for i, a := range report.TopAlgorithms {
			b.WriteString(fmt.Sprintf("%d. `%s` %.2f%%\n", i+1, a.Method, a.Confidence))
		}
	}

	b.WriteString("\n")
	b.WriteString(formatStatsLine(report.Stats))
	b.WriteString("\n\n")
	b.WriteString(disclaimer)

	return b.String()
}

// formatBroadcast 新预测推送
func formatBroadcast(report *service.CycleReport) string {
	var b strings.Builder

	b.WriteString("🚨 *New Round Prediction Push*\n\n")

	if o := report.Outcome; o != nil {
		b.WriteString(o.Message())
		b.WriteString("\n\n")
	}

	b.WriteString(fmt.Sprintf("Latest: %s\n", formatDraw(report.Latest)))
	b.WriteString(fmt.Sprintf("Next Round `%s`: *%s* (`%.2f%%`)\n",
		report.Prediction.TargetPeriod, report.Ensemble.FinalPrediction, report.Ensemble.Confidence))
	b.WriteString(formatStatsLine(report.Stats))
	b.WriteString("\n\n💡 Send /predict for details")

	return b.String()
}

// formatHistory 最近开奖，从旧到新
func formatHistory(draws []database.DrawResult) string {
	var b strings.Builder

	b.WriteString("📊 *Recent Draw Results*\n\n")

	if len(draws) == 0 {
		b.WriteString("No draw records")
		return b.String()
	}

	big := 0
	for i := len(draws) - 1; i >= 0; i-- {
		b.WriteString(formatDraw(draws[i]))
		b.WriteString("\n")
		if draws[i].IsBig() {
			big++
		}
	}

	b.WriteString(fmt.Sprintf("\n📈 *Recent Statistics*: Big %d rounds, Small %d rounds", big, len(draws)-big))
	return b.String()
}

// formatStats 战绩统计
func formatStats(stats predictor.Stats, trend string) string {
	var b strings.Builder

	b.WriteString("📊 *Prediction Statistics*\n\n")

	if stats.Total == 0 {
		b.WriteString("No settled predictions yet. Send /predict to start.")
		return b.String()
	}

	b.WriteString("🎯 *Overall Performance*\n")
	b.WriteString(fmt.Sprintf("Total Predictions: `%d`\n", stats.Total))
	b.WriteString(fmt.Sprintf("Wins: `%d`\n", stats.Wins))
	b.WriteString(fmt.Sprintf("Losses: `%d`\n", stats.Losses))
	b.WriteString(fmt.Sprintf("Win Rate: `%s`\n", stats.FormatWinRate()))
	b.WriteString(fmt.Sprintf("Current Streak: `%d`\n", stats.CurrentStreak))
	b.WriteString(fmt.Sprintf("Best Streak: `%d`\n", stats.BestStreak))
	b.WriteString(fmt.Sprintf("Trend: `%s`\n\n", trend))

	b.WriteString(fmt.Sprintf("🏆 *Performance Rating*: %s\n\n", performanceRating(stats.WinRate())))
	b.WriteString("💡 *Note*: Statistics cover predictions settled since the service started")

	return b.String()
}

func formatStatsLine(stats predictor.Stats) string {
	return fmt.Sprintf("📈 Record: %dW/%dL (%s), streak %d",
		stats.Wins, stats.Losses, stats.FormatWinRate(), stats.CurrentStreak)
}

func formatDraw(d database.DrawResult) string {
	return fmt.Sprintf("Round `%s` Number `%d` (%s %s)", d.Period, d.Number, d.Category, d.Color)
}

// performanceRating 胜率评级
func performanceRating(winRate float64) string {
	switch {
	case winRate >= 70:
		return "🏆 Excellent (≥70%)"
	case winRate >= 60:
		return "🥇 Great (≥60%)"
	case winRate >= 55:
		return "🥈 Good (≥55%)"
	case winRate >= 50:
		return "🥉 Fair (≥50%)"
	default:
		return "📚 Needs Improvement (<50%)"
	}
}

// inlineKeyboard 快捷按钮
func inlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔮 Predict", callbackPredict),
			tgbotapi.NewInlineKeyboardButtonData("📊 History", callbackHistory),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Statistics", callbackStats),
		),
	)
}
