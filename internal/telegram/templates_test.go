package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"wingo-bot/internal/database"
	"wingo-bot/internal/predictor"
)

func TestFormatPrediction(t *testing.T) {
	text := formatPrediction(sampleReport())

	assert.Contains(t, text, "Previous prediction WON")
	assert.Contains(t, text, "Round `202401010100` Number `7` (BIG GREEN)")
	assert.Contains(t, text, "Prediction: *SMALL*")
	assert.Contains(t, text, "Confidence: `64.50%`")
	assert.Contains(t, text, "Agreement: `60%` (9/15)")
	assert.Contains(t, text, "Votes: BIG `3.12` | SMALL `4.87`")
	assert.Contains(t, text, "1. `STREAK_BREAK` 80.00%")
	assert.Contains(t, text, "1W/0L (100.00%)")
}

func TestFormatPrediction_NoOutcome(t *testing.T) {
	report := sampleReport()
	report.Outcome = nil
	report.TopAlgorithms = nil

	text := formatPrediction(report)
	assert.NotContains(t, text, "Previous prediction")
	assert.NotContains(t, text, "Top Algorithms")
}

func TestFormatHistory(t *testing.T) {
	assert.Contains(t, formatHistory(nil), "No draw records")

	text := formatHistory(sampleReport().RecentHistory)
	oldest := strings.Index(text, "202401010098")
	newest := strings.Index(text, "202401010100")
	assert.Less(t, oldest, newest)
	assert.Contains(t, text, "(SMALL VIOLET-RED)")
	assert.Contains(t, text, "Big 1 rounds, Small 2 rounds")
}

func TestFormatStats(t *testing.T) {
	assert.Contains(t, formatStats(predictor.Stats{}, "insufficient_data"), "No settled predictions yet")

	stats := predictor.Stats{Total: 4, Wins: 3, Losses: 1, CurrentStreak: 2, BestStreak: 2}
	text := formatStats(stats, "improving")
	assert.Contains(t, text, "Win Rate: `75.00%`")
	assert.Contains(t, text, "Trend: `improving`")
	assert.Contains(t, text, "Excellent")
}

func TestPerformanceRating(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{80, "Excellent"},
		{60, "Great"},
		{55, "Good"},
		{50, "Fair"},
		{49.99, "Needs Improvement"},
	}
	for _, tt := range tests {
		assert.Contains(t, performanceRating(tt.rate), tt.want)
	}
}

func TestFormatBroadcast(t *testing.T) {
	report := sampleReport()
	report.Latest = database.NewDrawResult("202401010100", 5, testNow)

	text := formatBroadcast(report)
	assert.Contains(t, text, "(BIG VIOLET-GREEN)")
	assert.Contains(t, text, "Send /predict for details")
}
