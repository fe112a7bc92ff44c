package server

import (
	"fmt"
	"time"

	"wingo-bot/internal/database"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/service"
)

const (
	isoLayout       = "2006-01-02T15:04:05.000Z07:00"
	retrySuggestion = "Please try again in a few seconds"
)

// APIInfo 接口元信息
type APIInfo struct {
	Version    string `json:"version"`
	Algorithms int    `json:"algorithms"`
	DataSource string `json:"dataSource"`
	NextUpdate string `json:"nextUpdate"`
}

// PreviousResult 上一条预测的结算
type PreviousResult struct {
	Status          database.OutcomeStatus `json:"status"`
	Message         string                 `json:"message"`
	PredictedPeriod string                 `json:"predictedPeriod"`
	Prediction      database.Category      `json:"prediction"`
	ActualResult    database.Category      `json:"actualResult"`
	ActualNumber    int                    `json:"actualNumber"`
}

// PeriodInfo 单期开奖
type PeriodInfo struct {
	Period string            `json:"period"`
	Number int               `json:"number"`
	Result database.Category `json:"result"`
	Color  database.Color    `json:"color"`
}

// PredictionInfo 新预测
type PredictionInfo struct {
	Period          string                       `json:"period"`
	Prediction      database.Category            `json:"prediction"`
	Confidence      float64                      `json:"confidence"`
	AgreementRatio  string                       `json:"agreementRatio"`
	AlgorithmsAgree string                       `json:"algorithmsAgree"`
	Votes           predictor.VoteTotals         `json:"votes"`
	TopAlgorithms   []predictor.AlgorithmSummary `json:"topAlgorithms"`
}

// Statistics 战绩
type Statistics struct {
	TotalPredictions int    `json:"totalPredictions"`
	Wins             int    `json:"wins"`
	Losses           int    `json:"losses"`
	WinRate          string `json:"winRate"`
	CurrentWinStreak int    `json:"currentWinStreak"`
	BestWinStreak    int    `json:"bestWinStreak"`
}

// PredictResponse /api/predict 成功响应
type PredictResponse struct {
	Success        bool            `json:"success"`
	CycleID        string          `json:"cycleId"`
	Timestamp      string          `json:"timestamp"`
	ResponseTime   string          `json:"responseTime"`
	PreviousResult *PreviousResult `json:"previousResult"`
	CurrentPeriod  PeriodInfo      `json:"currentPeriod"`
	Prediction     PredictionInfo  `json:"prediction"`
	Statistics     Statistics      `json:"statistics"`
	RecentHistory  []PeriodInfo    `json:"recentHistory"`
	APIInfo        APIInfo         `json:"apiInfo"`
}

// ErrorResponse 失败响应，不包含任何部分结果
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`
	Suggestion string `json:"suggestion"`
}

// StatsResponse /api/stats 响应
type StatsResponse struct {
	Success    bool                         `json:"success"`
	Timestamp  string                       `json:"timestamp"`
	Statistics Statistics                   `json:"statistics"`
	Trend      string                       `json:"trend"`
	Pending    *predictor.PendingPrediction `json:"pendingPrediction"`
	Audit      interface{}                  `json:"audit,omitempty"`
}

// BuildPredictResponse 将一轮结果组装为响应
func BuildPredictResponse(report *service.CycleReport, info APIInfo, elapsed time.Duration) PredictResponse {
	resp := PredictResponse{
		Success:       true,
		CycleID:       report.CycleID,
		Timestamp:     report.Timestamp.UTC().Format(isoLayout),
		ResponseTime:  fmt.Sprintf("%dms", elapsed.Milliseconds()),
		CurrentPeriod: periodInfo(report.Latest),
		Prediction: PredictionInfo{
			Period:          report.Prediction.TargetPeriod,
			Prediction:      report.Ensemble.FinalPrediction,
			Confidence:      report.Ensemble.Confidence,
			AgreementRatio:  fmt.Sprintf("%d%%", report.Ensemble.AgreementRatio),
			AlgorithmsAgree: fmt.Sprintf("%d/%d", report.Ensemble.AgreeCount, report.Ensemble.AlgorithmsUsed),
			Votes:           report.Ensemble.Votes,
			TopAlgorithms:   report.TopAlgorithms,
		},
		Statistics:    BuildStatistics(report.Stats),
		RecentHistory: make([]PeriodInfo, 0, len(report.RecentHistory)),
		APIInfo:       info,
	}

	if o := report.Outcome; o != nil {
		resp.PreviousResult = &PreviousResult{
			Status:          o.Status,
			Message:         o.Message(),
			PredictedPeriod: o.PredictedPeriod,
			Prediction:      o.Prediction,
			ActualResult:    o.ActualResult,
			ActualNumber:    o.ActualNumber,
		}
	}

	for _, r := range report.RecentHistory {
		resp.RecentHistory = append(resp.RecentHistory, periodInfo(r))
	}

	return resp
}

// BuildStatistics 战绩响应
func BuildStatistics(s predictor.Stats) Statistics {
	return Statistics{
		TotalPredictions: s.Total,
		Wins:             s.Wins,
		Losses:           s.Losses,
		WinRate:          s.FormatWinRate(),
		CurrentWinStreak: s.CurrentStreak,
		BestWinStreak:    s.BestStreak,
	}
}

// NewErrorResponse 失败响应
func NewErrorResponse(err error, now time.Time) ErrorResponse {
	return ErrorResponse{
		Success:    false,
		Error:      err.Error(),
		Timestamp:  now.UTC().Format(isoLayout),
		Suggestion: retrySuggestion,
	}
}

func periodInfo(r database.DrawResult) PeriodInfo {
	return PeriodInfo{
		Period: r.Period,
		Number: r.Number,
		Result: r.Category,
		Color:  r.Color,
	}
}
