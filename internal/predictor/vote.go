package predictor

import (
	"math"

	"wingo-bot/internal/database"
)

// Method 算法方法标签，决定投票权重
type Method string

const (
	MethodMAContrarian        Method = "MA_CONTRARIAN"
	MethodMAMomentum          Method = "MA_MOMENTUM"
	MethodStreakBreak         Method = "STREAK_BREAK"
	MethodStreakContinue      Method = "STREAK_CONTINUE"
	MethodStreakNeutral       Method = "STREAK_NEUTRAL"
	MethodPatternMatch        Method = "PATTERN_MATCH"
	MethodPatternDefault      Method = "PATTERN_DEFAULT"
	MethodFibonacciCycle      Method = "FIBONACCI_CYCLE"
	MethodDistributionRevert  Method = "DISTRIBUTION_MEAN_REVERT"
	MethodDistributionNeutral Method = "DISTRIBUTION_NEUTRAL"
	MethodMarkovChain         Method = "MARKOV_CHAIN"
	MethodMarkovDefault       Method = "MARKOV_DEFAULT"
	MethodRecentBiasContrary  Method = "RECENT_BIAS_CONTRARIAN"
	MethodRecentBiasFollow    Method = "RECENT_BIAS_FOLLOW"
	MethodAlternationHigh     Method = "ALTERNATION_HIGH"
	MethodAlternationLow      Method = "ALTERNATION_LOW"
	MethodAlternationNeutral  Method = "ALTERNATION_NEUTRAL"
	MethodTimeBasedHigh       Method = "TIME_BASED_HIGH"
	MethodTimeBasedLow        Method = "TIME_BASED_LOW"
	MethodNeuralSim           Method = "NEURAL_SIM"
	MethodLSTMMemory          Method = "LSTM_MEMORY"
	MethodGradientBoost       Method = "GRADIENT_BOOST"
	MethodRandomForest        Method = "RANDOM_FOREST"
	MethodSVMLinear           Method = "SVM_LINEAR"
	MethodKNNWeighted         Method = "KNN_WEIGHTED"
)

// methodWeights 可靠度权重表，未列出的方法权重为1.0
var methodWeights = map[Method]float64{
	MethodStreakBreak:        1.5,
	MethodPatternMatch:       1.4,
	MethodMarkovChain:        1.3,
	MethodLSTMMemory:         1.4,
	MethodGradientBoost:      1.3,
	MethodRandomForest:       1.35,
	MethodSVMLinear:          1.2,
	MethodKNNWeighted:        1.25,
	MethodNeuralSim:          1.3,
	MethodDistributionRevert: 1.2,
	MethodAlternationHigh:    1.15,
}

// MethodWeight 获取方法的投票权重
func MethodWeight(m Method) float64 {
	if w, ok := methodWeights[m]; ok {
		return w
	}
	return 1.0
}

// Vote 单个算法的投票结果
type Vote struct {
	Method     Method                 `json:"method"`
	Prediction database.Category      `json:"prediction"`
	Confidence float64                `json:"confidence"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Weight 投票的实际权重 = 置信度/100 × 方法权重
func (v Vote) Weight() float64 {
	return v.Confidence / 100 * MethodWeight(v.Method)
}

// newVote 构造投票，置信度总是限制在[0,100]
func newVote(method Method, prediction database.Category, confidence float64, details map[string]interface{}) Vote {
	return Vote{
		Method:     method,
		Prediction: prediction,
		Confidence: clamp(confidence, 0, 100),
		Details:    details,
	}
}

// pick 大于则BIG，否则SMALL（平局为SMALL）
func pick(big, small float64) database.Category {
	if big > small {
		return database.CategoryBig
	}
	return database.CategorySmall
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// head 取最近n期（历史不足时返回全部）
func head(history []database.DrawResult, n int) []database.DrawResult {
	if n > len(history) {
		n = len(history)
	}
	if n < 0 {
		n = 0
	}
	return history[:n]
}

// window 安全切片 history[from:to]
func window(history []database.DrawResult, from, to int) []database.DrawResult {
	if from > len(history) {
		from = len(history)
	}
	if to > len(history) {
		to = len(history)
	}
	if from > to {
		from = to
	}
	return history[from:to]
}

func countBig(history []database.DrawResult) int {
	n := 0
	for _, r := range history {
		if r.IsBig() {
			n++
		}
	}
	return n
}
