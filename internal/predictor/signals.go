package predictor

import (
	"math"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	"wingo-bot/internal/database"
)

const (
	movingAverageWindow = 10
	patternDepth        = 5
	patternLookback     = 50
	distributionWindow  = 20
	alternationWindow   = 10
	neuralWindow        = 15
)

var (
	fibonacciLags     = []int{1, 2, 3, 5, 8, 13, 21, 34}
	recentBiasWeights = []float64{10, 8, 6, 5, 4, 3, 2, 1.5, 1, 0.5}
)

// MovingAverage 移动平均：极端比例时反向，否则跟随多数
func MovingAverage(history []database.DrawResult, size int) Vote {
	recent := head(history, size)
	if len(recent) == 0 {
		return newVote(MethodMAMomentum, database.CategoryBig, 50, nil)
	}

	bigCount := countBig(recent)
	smallCount := len(recent) - bigCount
	ratio := float64(bigCount) / float64(len(recent))

	switch {
	case ratio > 0.7:
		return newVote(MethodMAContrarian, database.CategorySmall, ratio*100, nil)
	case ratio < 0.3:
		return newVote(MethodMAContrarian, database.CategoryBig, (1-ratio)*100, nil)
	}

	return newVote(MethodMAMomentum, pick(float64(bigCount), float64(smallCount)),
		math.Abs(0.5-ratio)*200, nil)
}

// Streak 连开分析：长龙预测断龙，短龙预测延续
func Streak(history []database.DrawResult) Vote {
	if len(history) == 0 {
		return newVote(MethodStreakNeutral, database.CategoryBig, 50, nil)
	}

	first := history[0].Category
	streak := 1
	for i := 1; i < len(history); i++ {
		if history[i].Category != first {
			break
		}
		streak++
	}

	details := map[string]interface{}{"streakLength": streak}

	if streak >= 4 {
		return newVote(MethodStreakBreak, first.Opposite(),
			math.Min(95, 60+float64(streak)*8), details)
	}
	if streak <= 2 {
		return newVote(MethodStreakContinue, first, 55+float64(streak)*5, details)
	}
	return newVote(MethodStreakNeutral, first.Opposite(), 50+float64(streak)*5, details)
}

// Pattern 深度模式匹配：统计最近50期内每个5期序列之后出现的结果
func Pattern(history []database.DrawResult, depth int) Vote {
	if depth <= 0 || len(history) < depth {
		return newVote(MethodPatternDefault, database.CategoryBig, 50, nil)
	}

	recent := head(history, patternLookback)
	followers := make(map[string][2]int)

	// recent[start-1] 是紧跟在序列 recent[start:start+depth] 之后开出的一期
	// 最旧的一个窗口不参与统计
	for start := 1; start+depth < len(recent); start++ {
		key := patternKey(recent[start : start+depth])
		counts := followers[key]
		if recent[start-1].IsBig() {
			counts[0]++
		} else {
			counts[1]++
		}
		followers[key] = counts
	}

	current := patternKey(history[:depth])
	counts, ok := followers[current]
	total := counts[0] + counts[1]
	if !ok || total == 0 {
		return newVote(MethodPatternDefault, database.CategoryBig, 50, nil)
	}

	best := math.Max(float64(counts[0]), float64(counts[1]))
	return newVote(MethodPatternMatch, pick(float64(counts[0]), float64(counts[1])),
		math.Min(90, best/float64(total)*100),
		map[string]interface{}{
			"patternFound": current,
			"occurrences":  total,
		})
}

func patternKey(seq []database.DrawResult) string {
	parts := make([]string, len(seq))
	for i, r := range seq {
		parts[i] = string(r.Category)
	}
	return strings.Join(parts, "-")
}

// Fibonacci 斐波那契周期：按斐波那契间隔抽样加权，预测得分较少的一方
func Fibonacci(history []database.DrawResult) Vote {
	recent := head(history, fibonacciLags[len(fibonacciLags)-1])

	var bigScore, smallScore float64
	for idx, lag := range fibonacciLags {
		if lag-1 >= len(recent) {
			continue
		}
		weight := float64(len(fibonacciLags)-idx) / float64(len(fibonacciLags))
		if recent[lag-1].IsBig() {
			bigScore += weight
		} else {
			smallScore += weight
		}
	}

	total := bigScore + smallScore
	if total == 0 {
		return newVote(MethodFibonacciCycle, database.CategoryBig, 50, nil)
	}

	// 反向：多数为大则预测小
	prediction := database.CategoryBig
	if bigScore > smallScore {
		prediction = database.CategorySmall
	}
	confidence := math.Abs(bigScore-smallScore)/total*100 + 50

	return newVote(MethodFibonacciCycle, prediction, math.Min(85, confidence), nil)
}

// Distribution 号码分布均值回归
func Distribution(history []database.DrawResult) Vote {
	recent := head(history, distributionWindow)
	if len(recent) == 0 {
		return newVote(MethodDistributionNeutral, database.CategoryBig, 55, nil)
	}

	numbers := make([]float64, len(recent))
	for i, r := range recent {
		numbers[i] = float64(r.Number)
	}
	mean := talib.Sma(numbers, len(numbers))[len(numbers)-1]
	stdDev := talib.StdDev(numbers, len(numbers), 1)[len(numbers)-1]

	details := map[string]interface{}{
		"average": round2(mean),
		"stdDev":  round2(stdDev),
	}

	switch {
	case mean > 5.5:
		return newVote(MethodDistributionRevert, database.CategorySmall,
			math.Min(85, 50+(mean-4.5)*10), details)
	case mean < 3.5:
		return newVote(MethodDistributionRevert, database.CategoryBig,
			math.Min(85, 50+(4.5-mean)*10), details)
	}

	prediction := database.CategoryBig
	if mean > 4.5 {
		prediction = database.CategorySmall
	}
	return newVote(MethodDistributionNeutral, prediction, 55,
		map[string]interface{}{"average": round2(mean)})
}

// Markov 一阶马尔可夫链：以最新一期为条件预测更常见的后继
func Markov(history []database.DrawResult) Vote {
	if len(history) == 0 {
		return newVote(MethodMarkovDefault, database.CategoryBig, 50, nil)
	}

	// transitions[from][to]，from 为较早的一期，to 为紧随其后的一期
	transitions := map[database.Category]map[database.Category]int{
		database.CategoryBig:   {},
		database.CategorySmall: {},
	}
	for i := 0; i < len(history)-1; i++ {
		from := history[i+1].Category
		to := history[i].Category
		transitions[from][to]++
	}

	last := history[0].Category
	bigCount := float64(transitions[last][database.CategoryBig])
	smallCount := float64(transitions[last][database.CategorySmall])
	total := bigCount + smallCount
	if total == 0 {
		return newVote(MethodMarkovDefault, database.CategoryBig, 50, nil)
	}

	return newVote(MethodMarkovChain, pick(bigCount, smallCount),
		math.Min(88, math.Max(bigCount, smallCount)/total*100),
		map[string]interface{}{"transitionFrom": string(last)})
}

// RecentBias 近期加权偏向
func RecentBias(history []database.DrawResult) Vote {
	var weightedBig, totalWeight float64
	for i, r := range head(history, len(recentBiasWeights)) {
		w := recentBiasWeights[i]
		if r.IsBig() {
			weightedBig += w
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return newVote(MethodRecentBiasFollow, database.CategoryBig, 50, nil)
	}

	ratio := weightedBig / totalWeight

	switch {
	case ratio > 0.65:
		return newVote(MethodRecentBiasContrary, database.CategorySmall, ratio*100, nil)
	case ratio < 0.35:
		return newVote(MethodRecentBiasContrary, database.CategoryBig, (1-ratio)*100, nil)
	}

	return newVote(MethodRecentBiasFollow, pick(ratio, 0.5), 50+math.Abs(0.5-ratio)*100, nil)
}

// Alternation 交替频率分析
func Alternation(history []database.DrawResult) Vote {
	if len(history) == 0 {
		return newVote(MethodAlternationNeutral, database.CategoryBig, 55, nil)
	}

	pairs := alternationWindow - 1
	flips := 0
	for i := 0; i < pairs && i < len(history)-1; i++ {
		if history[i].Category != history[i+1].Category {
			flips++
		}
	}

	rate := float64(flips) / float64(pairs)
	last := history[0].Category

	switch {
	case rate > 0.7:
		return newVote(MethodAlternationHigh, last.Opposite(), rate*95, nil)
	case rate < 0.3:
		return newVote(MethodAlternationLow, last, (1-rate)*80, nil)
	}
	return newVote(MethodAlternationNeutral, last.Opposite(), 55, nil)
}

// TimeBased 时间周期分析，唯一依赖调用时间的算法
func TimeBased(history []database.DrawResult, now time.Time) Vote {
	timeScore := float64((now.Hour()*60+now.Minute())%120) / 120
	bigCount := countBig(head(history, 5))

	if timeScore > 0.5 {
		prediction := database.CategoryBig
		if bigCount > 2 {
			prediction = database.CategorySmall
		}
		return newVote(MethodTimeBasedHigh, prediction, 60+timeScore*20, nil)
	}

	prediction := database.CategorySmall
	if bigCount <= 2 {
		prediction = database.CategoryBig
	}
	return newVote(MethodTimeBasedLow, prediction, 55+(1-timeScore)*20, nil)
}

// NeuralSim 神经网络模拟：指数衰减加权后经过sigmoid
func NeuralSim(history []database.DrawResult) Vote {
	var hidden, totalWeight float64
	for i, r := range head(history, neuralWindow) {
		w := math.Exp(-float64(i) * 0.2)
		if r.IsBig() {
			hidden += w
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return newVote(MethodNeuralSim, database.CategoryBig, 50, nil)
	}

	activation := hidden / totalWeight
	s := sigmoid((activation - 0.5) * 5)

	return newVote(MethodNeuralSim, pick(s, 0.5),
		math.Min(90, 50+math.Abs(s-0.5)*200),
		map[string]interface{}{"activation": round4(s)})
}
