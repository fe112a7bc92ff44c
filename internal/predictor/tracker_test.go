package predictor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingo-bot/internal/database"
)

func newTestTracker() *Tracker {
	return NewTracker(NewEnsemble(MinHistorySize, fixedClock),
		NewSequencer(DefaultMaxDailySequence, DefaultSequenceDigits), fixedClock)
}

func TestTracker_CycleWin(t *testing.T) {
	history := randomHistory(3, 30)
	history[1] = database.NewDrawResult(history[1].Period, 8, fixedObservedAt)

	state := &TrackerState{
		Pending: &PendingPrediction{TargetPeriod: history[1].Period, Prediction: database.CategoryBig},
		Stats:   Stats{Total: 2, Wins: 1, Losses: 1, CurrentStreak: 1, BestStreak: 1},
	}

	result, err := newTestTracker().Cycle(state, history)
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	assert.Equal(t, database.OutcomeWin, result.Outcome.Status)
	assert.Equal(t, 8, result.Outcome.ActualNumber)
	assert.Equal(t, database.CategoryBig, result.Outcome.ActualResult)

	assert.Equal(t, 2, state.Stats.Wins)
	assert.Equal(t, 1, state.Stats.Losses)
	assert.Equal(t, 3, state.Stats.Total)
	assert.Equal(t, 2, state.Stats.CurrentStreak)
	assert.Equal(t, 2, state.Stats.BestStreak)
}

func TestTracker_CycleLoss(t *testing.T) {
	history := randomHistory(5, 30)
	history[1] = database.NewDrawResult(history[1].Period, 6, fixedObservedAt)

	state := &TrackerState{
		Pending: &PendingPrediction{TargetPeriod: history[1].Period, Prediction: database.CategorySmall},
		Stats:   Stats{Total: 3, Wins: 3, CurrentStreak: 3, BestStreak: 3},
	}

	result, err := newTestTracker().Cycle(state, history)
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	assert.Equal(t, database.OutcomeLoss, result.Outcome.Status)
	assert.Equal(t, 3, state.Stats.Wins)
	assert.Equal(t, 1, state.Stats.Losses)
	assert.Equal(t, 4, state.Stats.Total)
	assert.Equal(t, 0, state.Stats.CurrentStreak)
	assert.Equal(t, 3, state.Stats.BestStreak)
}

func TestTracker_NewestTargetWaitsForNextDraw(t *testing.T) {
	history := randomHistory(5, 30)
	history[0] = database.NewDrawResult(history[0].Period, 6, fixedObservedAt)

	before := Stats{Total: 3, Wins: 3, CurrentStreak: 3, BestStreak: 3}
	state := &TrackerState{
		Pending: &PendingPrediction{TargetPeriod: history[0].Period, Prediction: database.CategorySmall},
		Stats:   before,
	}

	result, err := newTestTracker().Cycle(state, history)
	require.NoError(t, err)

	assert.Nil(t, result.Outcome)
	assert.Equal(t, before, state.Stats)
	assert.Equal(t, before, result.Stats)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "202401010101", state.Pending.TargetPeriod)
}

func TestTracker_TargetNotYetObserved(t *testing.T) {
	history := randomHistory(9, 30)
	state := &TrackerState{
		Pending: &PendingPrediction{TargetPeriod: "202401010101", Prediction: database.CategoryBig},
		Stats:   Stats{Total: 1, Wins: 1, CurrentStreak: 1, BestStreak: 1},
	}

	result, err := newTestTracker().Cycle(state, history)
	require.NoError(t, err)

	assert.Nil(t, result.Outcome)
	assert.Equal(t, Stats{Total: 1, Wins: 1, CurrentStreak: 1, BestStreak: 1}, state.Stats)

	// 待结算预测被新的预测覆盖
	require.NotNil(t, state.Pending)
	assert.Equal(t, "202401010101", state.Pending.TargetPeriod)
	assert.Equal(t, result.Ensemble.FinalPrediction, state.Pending.Prediction)
	assert.Equal(t, history[0], result.Latest)
	assert.Equal(t, fixedClock(), state.Pending.IssuedAt)
}

func TestTracker_FirstCycleHasNoOutcome(t *testing.T) {
	state := &TrackerState{}

	result, err := newTestTracker().Cycle(state, randomHistory(11, 25))
	require.NoError(t, err)

	assert.Nil(t, result.Outcome)
	assert.Equal(t, 0, state.Stats.Total)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "202401010101", result.Pending.TargetPeriod)
}

func TestTracker_FailureLeavesStateUnchanged(t *testing.T) {
	pending := &PendingPrediction{TargetPeriod: "202401010100", Prediction: database.CategoryBig}
	state := &TrackerState{Pending: pending, Stats: Stats{Total: 1, Losses: 1}}

	_, err := newTestTracker().Cycle(state, randomHistory(1, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.Same(t, pending, state.Pending)
	assert.Equal(t, 1, state.Stats.Total)

	history := randomHistory(1, 30)
	history[0].Period = "bad-period"
	_, err = newTestTracker().Cycle(state, history)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPeriod))
	assert.Same(t, pending, state.Pending)
	assert.Equal(t, 1, state.Stats.Total)
}

func TestStats_WinRate(t *testing.T) {
	var s Stats
	assert.Equal(t, "0.00%", s.FormatWinRate())
	assert.Equal(t, 0.0, s.WinRate())

	s.RecordWin()
	s.RecordWin()
	s.RecordLoss()
	assert.Equal(t, "66.67%", s.FormatWinRate())
	assert.InDelta(t, 66.6667, s.WinRate(), 0.001)
	assert.Equal(t, 2, s.BestStreak)
	assert.Equal(t, 0, s.CurrentStreak)

	s.RecordWin()
	assert.Equal(t, "75.00%", s.FormatWinRate())
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.BestStreak)
}

func TestStats_Trend(t *testing.T) {
	var s Stats
	assert.Equal(t, "insufficient_data", s.Trend(10))

	for i := 0; i < 10; i++ {
		s.RecordLoss()
	}
	s.RecordWin()
	assert.Equal(t, []float64{0, 10}, s.MovingAverage(10))
	assert.Equal(t, "improving", s.Trend(10))

	s.RecordLoss()
	assert.Equal(t, "stable", s.Trend(10))

	for i := 0; i < 60; i++ {
		s.RecordWin()
	}
	assert.Len(t, s.Recent, recentOutcomeLimit)

	snap := s.Snapshot()
	snap.Recent[0] = false
	assert.True(t, s.Recent[0])
}

func TestResolve_NilPending(t *testing.T) {
	outcome, ok := Resolve(nil, randomHistory(1, 20))
	assert.False(t, ok)
	assert.Nil(t, outcome)
}

func TestResolve_SkipsNewestPeriod(t *testing.T) {
	history := randomHistory(2, 20)

	outcome, ok := Resolve(&PendingPrediction{TargetPeriod: history[0].Period, Prediction: database.CategoryBig}, history)
	assert.False(t, ok)
	assert.Nil(t, outcome)

	outcome, ok = Resolve(&PendingPrediction{TargetPeriod: history[1].Period, Prediction: database.CategoryBig}, history)
	require.True(t, ok)
	assert.Equal(t, history[1].Period, outcome.PredictedPeriod)
	assert.Equal(t, history[1].Number, outcome.ActualNumber)
}
