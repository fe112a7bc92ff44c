package predictor

import (
	"math"
	"sort"

	"wingo-bot/internal/database"
)

const (
	lstmCells      = 10
	lstmWindow     = 20
	boostLearners  = 5
	boostWindow    = 4
	forestTrees    = 7
	svmWindow      = 20
	svmMarginSpan  = 5
	knnVectorSize  = 3
	knnDefaultK    = 5
	knnDistanceEps = 0.1
)

// encode 大为+1，小为-1
func encode(r database.DrawResult) float64 {
	if r.IsBig() {
		return 1
	}
	return -1
}

// LSTM 记忆单元模拟：10个单元按门控规则滚动更新
func LSTM(history []database.DrawResult) Vote {
	var cell, hidden [lstmCells]float64

	for idx, r := range head(history, lstmWindow) {
		x := encode(r)
		j := idx % lstmCells

		forget := sigmoid(x*0.5 + hidden[j]*0.3)
		input := sigmoid(x*0.7 - hidden[j]*0.2)
		candidate := math.Tanh(x * 0.9)

		cell[j] = forget*cell[j] + input*candidate
		hidden[j] = math.Tanh(cell[j])
	}

	var output float64
	for _, h := range hidden {
		output += h
	}
	output /= lstmCells

	return newVote(MethodLSTMMemory, pick(output, 0),
		math.Min(92, 50+math.Abs(output)*50), nil)
}

// GradientBoost 梯度提升模拟：5个不重叠窗口作为弱学习器
func GradientBoost(history []database.DrawResult) Vote {
	var totalVote, totalWeight float64

	for i := 0; i < boostLearners; i++ {
		w := window(history, i*boostWindow, (i+1)*boostWindow)
		if len(w) == 0 {
			break
		}

		vote := -1.0
		if countBig(w) > boostWindow/2 {
			vote = 1.0
		}
		weight := 1 / float64(i+1)

		totalVote += vote * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return newVote(MethodGradientBoost, database.CategoryBig, 50, nil)
	}

	final := totalVote / totalWeight

	// 极端时反向
	prediction := pick(final, 0)
	if math.Abs(final) > 0.7 {
		prediction = prediction.Opposite()
	}

	return newVote(MethodGradientBoost, prediction,
		math.Min(88, 55+math.Abs(final)*40),
		map[string]interface{}{"aggregateVote": round4(final)})
}

// treeRule 决策树规则
type treeRule func(sample []database.DrawResult, bigRatio float64) database.Category

// forestRules 按树序号循环使用的固定规则
var forestRules = []treeRule{
	func(_ []database.DrawResult, bigRatio float64) database.Category {
		return pick(bigRatio, 0.5)
	},
	func(_ []database.DrawResult, bigRatio float64) database.Category {
		if bigRatio > 0.6 {
			return database.CategorySmall
		}
		return database.CategoryBig
	},
	func(_ []database.DrawResult, bigRatio float64) database.Category {
		if bigRatio < 0.4 {
			return database.CategoryBig
		}
		return database.CategorySmall
	},
	func(sample []database.DrawResult, _ float64) database.Category {
		return sample[0].Category.Opposite()
	},
}

// RandomForest 随机森林模拟：7棵树使用确定性的采样窗口
func RandomForest(history []database.DrawResult) Vote {
	var bigVotes, smallVotes int

	for tree := 0; tree < forestTrees; tree++ {
		size := 8 + tree%5
		start := tree % 3
		sample := window(history, start, start+size)
		if len(sample) == 0 {
			continue
		}

		bigRatio := float64(countBig(sample)) / float64(len(sample))
		if forestRules[tree%len(forestRules)](sample, bigRatio) == database.CategoryBig {
			bigVotes++
		} else {
			smallVotes++
		}
	}

	if bigVotes+smallVotes == 0 {
		return newVote(MethodRandomForest, database.CategoryBig, 50, nil)
	}

	best := math.Max(float64(bigVotes), float64(smallVotes))
	return newVote(MethodRandomForest, pick(float64(bigVotes), float64(smallVotes)),
		math.Min(90, best/forestTrees*100),
		map[string]interface{}{
			"votes": map[string]int{
				string(database.CategoryBig):   bigVotes,
				string(database.CategorySmall): smallVotes,
			},
		})
}

// SVM 线性支持向量机模拟
func SVM(history []database.DrawResult) Vote {
	recent := head(history, svmWindow)
	if len(recent) == 0 {
		return newVote(MethodSVMLinear, database.CategoryBig, 50, nil)
	}

	var sumX, margin float64
	for i, r := range recent {
		x := encode(r)
		y := float64(i) / svmWindow
		sumX += x * (1 - y)
		if i < svmMarginSpan {
			margin += x * math.Exp(-y*2)
		}
	}

	decision := sumX / float64(len(recent))
	final := decision + margin*0.3

	return newVote(MethodSVMLinear, pick(final, 0),
		math.Min(87, 50+math.Abs(final)*25), nil)
}

type neighbour struct {
	dist float64
	next database.Category
}

// KNN K近邻：以最新3期为向量，在历史中寻找最相近的窗口
func KNN(history []database.DrawResult, k int) Vote {
	if k <= 0 {
		k = knnDefaultK
	}
	if len(history) < knnVectorSize+1 {
		return newVote(MethodKNNWeighted, database.CategoryBig, 50, nil)
	}

	current := binaryVector(history[:knnVectorSize])

	var neighbours []neighbour
	for i := knnVectorSize; i+knnVectorSize <= len(history); i++ {
		candidate := binaryVector(history[i : i+knnVectorSize])

		var dist float64
		for j := range current {
			dist += math.Pow(current[j]-candidate[j], 2)
		}

		neighbours = append(neighbours, neighbour{
			dist: math.Sqrt(dist),
			next: history[i-1].Category,
		})
	}

	if len(neighbours) == 0 {
		return newVote(MethodKNNWeighted, database.CategoryBig, 50, nil)
	}

	sort.SliceStable(neighbours, func(a, b int) bool {
		return neighbours[a].dist < neighbours[b].dist
	})
	if len(neighbours) > k {
		neighbours = neighbours[:k]
	}

	var bigVotes, smallVotes float64
	for _, n := range neighbours {
		weight := 1 / (n.dist + knnDistanceEps)
		if n.next == database.CategoryBig {
			bigVotes += weight
		} else {
			smallVotes += weight
		}
	}

	total := bigVotes + smallVotes
	return newVote(MethodKNNWeighted, pick(bigVotes, smallVotes),
		math.Min(89, math.Max(bigVotes, smallVotes)/total*100),
		map[string]interface{}{"neighbours": len(neighbours)})
}

func binaryVector(seq []database.DrawResult) []float64 {
	v := make([]float64, len(seq))
	for i, r := range seq {
		if r.IsBig() {
			v[i] = 1
		}
	}
	return v
}
