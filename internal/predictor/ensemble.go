package predictor

import (
	"fmt"
	"sort"
	"time"

	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
)

const (
	ensembleName    = "ensemble"
	// EnsembleVersion 集成算法版本
	EnsembleVersion = "2.0.0"
	confidenceCap   = 95
)

// Clock 时钟，测试中可注入固定时间
type Clock func() time.Time

// algorithm 参与集成投票的单个算法
type algorithm func(history []database.DrawResult, now time.Time) Vote

// algorithms 固定顺序的15个算法
var algorithms = []algorithm{
	func(h []database.DrawResult, _ time.Time) Vote { return MovingAverage(h, movingAverageWindow) },
	func(h []database.DrawResult, _ time.Time) Vote { return Streak(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return Pattern(h, patternDepth) },
	func(h []database.DrawResult, _ time.Time) Vote { return Fibonacci(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return Distribution(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return Markov(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return RecentBias(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return Alternation(h) },
	TimeBased,
	func(h []database.DrawResult, _ time.Time) Vote { return NeuralSim(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return LSTM(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return GradientBoost(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return RandomForest(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return SVM(h) },
	func(h []database.DrawResult, _ time.Time) Vote { return KNN(h, knnDefaultK) },
}

// AlgorithmCount 参与投票的算法数量
func AlgorithmCount() int {
	return len(algorithms)
}

// VoteTotals 按类别累计的加权票数
type VoteTotals struct {
	Big   float64 `json:"BIG"`
	Small float64 `json:"SMALL"`
}

// EnsembleResult 集成预测结果
type EnsembleResult struct {
	FinalPrediction database.Category `json:"finalPrediction"`
	Confidence      float64           `json:"confidence"`
	AgreementRatio  int               `json:"agreementRatio"`
	AgreeCount      int               `json:"agreeCount"`
	AlgorithmsUsed  int               `json:"algorithmsUsed"`
	Votes           VoteTotals        `json:"votes"`
	Predictions     []Vote            `json:"individualPredictions"`
}

// AlgorithmSummary 排行中的单个算法
type AlgorithmSummary struct {
	Method     Method  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Ensemble 加权集成预测器
type Ensemble struct {
	name       string
	version    string
	minHistory int
	clock      Clock
}

// NewEnsemble 创建集成预测器
func NewEnsemble(minHistory int, clock Clock) *Ensemble {
	if minHistory < MinHistorySize {
		minHistory = MinHistorySize
	}
	if clock == nil {
		clock = time.Now
	}
	return &Ensemble{
		name:       ensembleName,
		version:    EnsembleVersion,
		minHistory: minHistory,
		clock:      clock,
	}
}

// GetName 获取算法名称
func (e *Ensemble) GetName() string {
	return e.name
}

// GetVersion 获取算法版本
func (e *Ensemble) GetVersion() string {
	return e.version
}

// GetRequiredHistorySize 获取所需的历史数据大小
func (e *Ensemble) GetRequiredHistorySize() int {
	return e.minHistory
}

// ValidateInput 验证输入数据
func (e *Ensemble) ValidateInput(history []database.DrawResult) error {
	if len(history) < e.minHistory {
		return fmt.Errorf("%w: need %d, got %d", ErrInsufficientData, e.minHistory, len(history))
	}

	for i, r := range history {
		if r.Period == "" {
			return fmt.Errorf("empty period in history[%d]", i)
		}
		if r.Number < 0 || r.Number > 9 {
			return fmt.Errorf("invalid number %d in history[%d]", r.Number, i)
		}
	}

	return nil
}

// Predict 运行全部算法并加权汇总
func (e *Ensemble) Predict(history []database.DrawResult) (*EnsembleResult, error) {
	if err := e.ValidateInput(history); err != nil {
		return nil, err
	}

	now := e.clock()
	votes := make([]Vote, 0, len(algorithms))
	for _, algo := range algorithms {
		votes = append(votes, algo(history, now))
	}

	result := Aggregate(votes)

	logger.Debugf("Ensemble prediction: %s (confidence %.2f, agreement %d%%, %d/%d)",
		result.FinalPrediction, result.Confidence, result.AgreementRatio,
		result.AgreeCount, result.AlgorithmsUsed)

	return &result, nil
}

// Aggregate 按权重表汇总投票
func Aggregate(votes []Vote) EnsembleResult {
	var bigTotal, smallTotal float64
	for _, v := range votes {
		if v.Prediction == database.CategoryBig {
			bigTotal += v.Weight()
		} else {
			smallTotal += v.Weight()
		}
	}

	final := pick(bigTotal, smallTotal)

	var ensembleConfidence float64
	if total := bigTotal + smallTotal; total > 0 {
		winning := smallTotal
		if final == database.CategoryBig {
			winning = bigTotal
		}
		ensembleConfidence = winning / total * 100
	}

	agree := 0
	for _, v := range votes {
		if v.Prediction == final {
			agree++
		}
	}

	var agreement float64
	if len(votes) > 0 {
		agreement = float64(agree) / float64(len(votes))
	}

	confidence := ensembleConfidence*0.7 + agreement*100*0.3

	return EnsembleResult{
		FinalPrediction: final,
		Confidence:      clamp(round2(confidence), 0, confidenceCap),
		AgreementRatio:  int(agreement*100 + 0.5),
		AgreeCount:      agree,
		AlgorithmsUsed:  len(votes),
		Votes: VoteTotals{
			Big:   round2(bigTotal),
			Small: round2(smallTotal),
		},
		Predictions: votes,
	}
}

// TopAlgorithms 与最终预测一致、置信度最高的前n个算法
func TopAlgorithms(result *EnsembleResult, n int) []AlgorithmSummary {
	var agreeing []Vote
	for _, v := range result.Predictions {
		if v.Prediction == result.FinalPrediction {
			agreeing = append(agreeing, v)
		}
	}

	sort.SliceStable(agreeing, func(i, j int) bool {
		return agreeing[i].Confidence > agreeing[j].Confidence
	})

	if len(agreeing) > n {
		agreeing = agreeing[:n]
	}

	top := make([]AlgorithmSummary, 0, len(agreeing))
	for _, v := range agreeing {
		top = append(top, AlgorithmSummary{Method: v.Method, Confidence: round2(v.Confidence)})
	}
	return top
}

// GetSummary 获取预测器摘要信息
func (e *Ensemble) GetSummary(history []database.DrawResult) map[string]interface{} {
	return map[string]interface{}{
		"algorithm":      e.GetName(),
		"version":        e.GetVersion(),
		"algorithms":     AlgorithmCount(),
		"history_size":   len(history),
		"required_size":  e.GetRequiredHistorySize(),
		"analysis_ready": len(history) >= e.GetRequiredHistorySize(),
	}
}
