package predictor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
)

// recentOutcomeLimit 趋势分析保留的最近结算数量
const recentOutcomeLimit = 50

// PendingPrediction 待结算的预测，同一时刻最多一条
type PendingPrediction struct {
	TargetPeriod string            `json:"period"`
	Prediction   database.Category `json:"prediction"`
	Confidence   float64           `json:"confidence"`
	IssuedAt     time.Time         `json:"issuedAt"`
}

// Outcome 一次结算结果
type Outcome struct {
	Status          database.OutcomeStatus `json:"status"`
	PredictedPeriod string                 `json:"predictedPeriod"`
	Prediction      database.Category      `json:"prediction"`
	ActualResult    database.Category      `json:"actualResult"`
	ActualNumber    int                    `json:"actualNumber"`
}

// IsWin 是否命中
func (o *Outcome) IsWin() bool {
	return o.Status == database.OutcomeWin
}

// Message 结算提示
func (o *Outcome) Message() string {
	if o.IsWin() {
		return "🎉 Previous prediction WON!"
	}
	return "❌ Previous prediction LOST. New prediction ready!"
}

// Stats 累计战绩
type Stats struct {
	Total         int    `json:"totalPredictions"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	CurrentStreak int    `json:"currentWinStreak"`
	BestStreak    int    `json:"bestWinStreak"`
	Recent        []bool `json:"-"`
}

// RecordWin 记录命中
func (s *Stats) RecordWin() {
	s.Total++
	s.Wins++
	s.CurrentStreak++
	if s.CurrentStreak > s.BestStreak {
		s.BestStreak = s.CurrentStreak
	}
	s.remember(true)
}

// RecordLoss 记录未中，连胜清零
func (s *Stats) RecordLoss() {
	s.Total++
	s.Losses++
	s.CurrentStreak = 0
	s.remember(false)
}

func (s *Stats) remember(win bool) {
	s.Recent = append(s.Recent, win)
	if len(s.Recent) > recentOutcomeLimit {
		s.Recent = s.Recent[len(s.Recent)-recentOutcomeLimit:]
	}
}

// WinRate 胜率百分比
func (s Stats) WinRate() float64 {
	if s.Total == 0 {
		return 0
	}
	rate, _ := s.winRate().Float64()
	return rate
}

// FormatWinRate 格式化胜率，如 "66.67%"
func (s Stats) FormatWinRate() string {
	if s.Total == 0 {
		return "0.00%"
	}
	return s.winRate().StringFixed(2) + "%"
}

func (s Stats) winRate() decimal.Decimal {
	return decimal.NewFromInt(int64(s.Wins)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.Total)))
}

// Snapshot 复制一份，避免共享切片
func (s Stats) Snapshot() Stats {
	s.Recent = append([]bool(nil), s.Recent...)
	return s
}

// MovingAverage 最近结算的滑动胜率（从旧到新）
func (s Stats) MovingAverage(size int) []float64 {
	if size <= 0 || len(s.Recent) < size {
		return []float64{}
	}

	var avg []float64
	for i := size - 1; i < len(s.Recent); i++ {
		wins := 0
		for j := i - size + 1; j <= i; j++ {
			if s.Recent[j] {
				wins++
			}
		}
		avg = append(avg, round2(float64(wins)/float64(size)*100))
	}
	return avg
}

// Trend 根据滑动胜率判断趋势方向
func (s Stats) Trend(size int) string {
	avg := s.MovingAverage(size)
	if len(avg) < 2 {
		return "insufficient_data"
	}

	recent := avg[len(avg)-1]
	previous := avg[len(avg)-2]

	switch {
	case recent > previous+1:
		return "improving"
	case recent < previous-1:
		return "declining"
	default:
		return "stable"
	}
}

// TrackerState 结算器状态，由调用方持有并负责互斥
type TrackerState struct {
	Pending *PendingPrediction
	Stats   Stats
}

// CycleResult 一轮结算加预测的结果
type CycleResult struct {
	Outcome  *Outcome
	Latest   database.DrawResult
	Pending  PendingPrediction
	Ensemble *EnsembleResult
	Stats    Stats
}

// Tracker 预测结算器
type Tracker struct {
	predictor Predictor
	sequencer Sequencer
	clock     Clock
}

// NewTracker 创建结算器
func NewTracker(p Predictor, seq Sequencer, clock Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		predictor: p,
		sequencer: seq,
		clock:     clock,
	}
}

// Resolve 在历史中查找待结算期号，未开出或仍是最新一期时返回false
func Resolve(pending *PendingPrediction, history []database.DrawResult) (*Outcome, bool) {
	if pending == nil || len(history) == 0 {
		return nil, false
	}
	// 目标期之后至少还要开出一期才结算
	if pending.TargetPeriod == history[0].Period {
		return nil, false
	}

	for _, r := range history {
		if r.Period != pending.TargetPeriod {
			continue
		}

		status := database.OutcomeLoss
		if r.Category == pending.Prediction {
			status = database.OutcomeWin
		}
		return &Outcome{
			Status:          status,
			PredictedPeriod: pending.TargetPeriod,
			Prediction:      pending.Prediction,
			ActualResult:    r.Category,
			ActualNumber:    r.Number,
		}, true
	}

	return nil, false
}

// Cycle 结算上一条预测并对下一期重新预测
// 任何错误都发生在修改state之前，失败时state保持不变
func (t *Tracker) Cycle(state *TrackerState, history []database.DrawResult) (*CycleResult, error) {
	result, err := t.predictor.Predict(history)
	if err != nil {
		return nil, err
	}

	latest := history[0]
	next, err := t.sequencer.Next(latest.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to derive next period: %w", err)
	}

	outcome, resolved := Resolve(state.Pending, history)
	if resolved {
		if outcome.IsWin() {
			state.Stats.RecordWin()
		} else {
			state.Stats.RecordLoss()
		}

		logger.WithFields(logger.Fields{
			"period":     outcome.PredictedPeriod,
			"prediction": outcome.Prediction,
			"actual":     outcome.ActualResult,
			"status":     outcome.Status,
		}).Info("Prediction resolved")
	}

	pending := PendingPrediction{
		TargetPeriod: next,
		Prediction:   result.FinalPrediction,
		Confidence:   result.Confidence,
		IssuedAt:     t.clock(),
	}
	state.Pending = &pending

	return &CycleResult{
		Outcome:  outcome,
		Latest:   latest,
		Pending:  pending,
		Ensemble: result,
		Stats:    state.Stats.Snapshot(),
	}, nil
}
