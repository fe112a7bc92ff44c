package predictor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingo-bot/internal/database"
)

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC)
}

func TestAggregate_TieResolvesToSmall(t *testing.T) {
	result := Aggregate([]Vote{
		{Method: MethodMAMomentum, Prediction: database.CategoryBig, Confidence: 60},
		{Method: MethodAlternationLow, Prediction: database.CategorySmall, Confidence: 60},
	})

	assert.Equal(t, database.CategorySmall, result.FinalPrediction)
	assert.Equal(t, 50, result.AgreementRatio)
	assert.InDelta(t, 50, result.Confidence, 1e-9)
	assert.Equal(t, 0.6, result.Votes.Big)
	assert.Equal(t, 0.6, result.Votes.Small)
}

func TestAggregate_UsesMethodWeights(t *testing.T) {
	// 0.6×1.5 = 0.9 > 0.8×1.0
	result := Aggregate([]Vote{
		{Method: MethodStreakBreak, Prediction: database.CategorySmall, Confidence: 60},
		{Method: MethodMAMomentum, Prediction: database.CategoryBig, Confidence: 80},
	})

	assert.Equal(t, database.CategorySmall, result.FinalPrediction)
	assert.Equal(t, 0.9, result.Votes.Small)
	assert.Equal(t, 0.8, result.Votes.Big)
	assert.Equal(t, 1, result.AgreeCount)
	assert.Equal(t, 2, result.AlgorithmsUsed)
}

func TestAggregate_ConfidenceCapped(t *testing.T) {
	votes := make([]Vote, 15)
	for i := range votes {
		votes[i] = Vote{Method: MethodNeuralSim, Prediction: database.CategoryBig, Confidence: 100}
	}

	result := Aggregate(votes)
	assert.Equal(t, database.CategoryBig, result.FinalPrediction)
	assert.Equal(t, 95.0, result.Confidence)
	assert.Equal(t, 100, result.AgreementRatio)
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(nil)
	assert.Equal(t, database.CategorySmall, result.FinalPrediction)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 0, result.AgreementRatio)
}

func TestEnsemble_Predict(t *testing.T) {
	e := NewEnsemble(MinHistorySize, fixedClock)

	for seed := int64(1); seed <= 50; seed++ {
		history := randomHistory(seed, 60)

		result, err := e.Predict(history)
		require.NoError(t, err)

		require.Len(t, result.Predictions, 15)
		assert.Equal(t, 15, result.AlgorithmsUsed)
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 95.0)

		var big, small float64
		agree := 0
		for _, v := range result.Predictions {
			if v.Prediction == database.CategoryBig {
				big += v.Weight()
			} else {
				small += v.Weight()
			}
			if v.Prediction == result.FinalPrediction {
				agree++
			}
		}

		if big > small {
			assert.Equal(t, database.CategoryBig, result.FinalPrediction)
		} else {
			assert.Equal(t, database.CategorySmall, result.FinalPrediction)
		}
		assert.Equal(t, agree, result.AgreeCount)
		assert.Equal(t, int(math.Round(float64(agree)/15*100)), result.AgreementRatio)
	}
}

func TestEnsemble_Idempotent(t *testing.T) {
	e := NewEnsemble(MinHistorySize, fixedClock)
	history := randomHistory(42, 100)

	first, err := e.Predict(history)
	require.NoError(t, err)
	second, err := e.Predict(history)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsemble_ValidateInput(t *testing.T) {
	e := NewEnsemble(0, nil)
	assert.Equal(t, MinHistorySize, e.GetRequiredHistorySize())
	assert.Equal(t, "ensemble", e.GetName())
	assert.NotEmpty(t, e.GetVersion())

	_, err := e.Predict(randomHistory(1, 19))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	history := randomHistory(1, 20)
	history[3].Number = 12
	assert.Error(t, e.ValidateInput(history))

	history = randomHistory(1, 20)
	history[0].Period = ""
	assert.Error(t, e.ValidateInput(history))

	assert.NoError(t, e.ValidateInput(randomHistory(1, 20)))
}

func TestTopAlgorithms(t *testing.T) {
	result := Aggregate([]Vote{
		{Method: MethodStreakBreak, Prediction: database.CategoryBig, Confidence: 70},
		{Method: MethodMarkovChain, Prediction: database.CategoryBig, Confidence: 88.456},
		{Method: MethodSVMLinear, Prediction: database.CategorySmall, Confidence: 99},
		{Method: MethodKNNWeighted, Prediction: database.CategoryBig, Confidence: 70},
		{Method: MethodLSTMMemory, Prediction: database.CategoryBig, Confidence: 52},
	})
	require.Equal(t, database.CategoryBig, result.FinalPrediction)

	top := TopAlgorithms(&result, 3)
	assert.Equal(t, []AlgorithmSummary{
		{Method: MethodMarkovChain, Confidence: 88.46},
		{Method: MethodStreakBreak, Confidence: 70},
		{Method: MethodKNNWeighted, Confidence: 70},
	}, top)

	assert.Len(t, TopAlgorithms(&result, 10), 4)
}

func TestEnsemble_GetSummary(t *testing.T) {
	e := NewEnsemble(30, fixedClock)

	summary := e.GetSummary(randomHistory(1, 25))
	assert.Equal(t, "ensemble", summary["algorithm"])
	assert.Equal(t, EnsembleVersion, summary["version"])
	assert.Equal(t, 15, summary["algorithms"])
	assert.Equal(t, 30, summary["required_size"])
	assert.Equal(t, false, summary["analysis_ready"])
}
