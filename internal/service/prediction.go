package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
	"wingo-bot/internal/metrics"
	"wingo-bot/internal/predictor"
)

const (
	recentHistorySize = 10
	topAlgorithmCount = 5
	recordTimeout     = 5 * time.Second
)

// Fetcher 开奖历史来源
type Fetcher interface {
	FetchHistory(ctx context.Context) ([]database.DrawResult, error)
}

// Recorder 审计记录，写入失败只记日志不影响预测
type Recorder interface {
	SaveDrawResults(ctx context.Context, results []database.DrawResult) error
	SavePrediction(ctx context.Context, rec *database.PredictionRecord) error
	ResolvePrediction(ctx context.Context, period string, actual database.DrawResult, status database.OutcomeStatus) error
}

// NopRecorder 未启用数据库时使用
type NopRecorder struct{}

func (NopRecorder) SaveDrawResults(context.Context, []database.DrawResult) error { return nil }

func (NopRecorder) SavePrediction(context.Context, *database.PredictionRecord) error { return nil }

func (NopRecorder) ResolvePrediction(context.Context, string, database.DrawResult, database.OutcomeStatus) error {
	return nil
}

// CycleReport 一轮预测的完整结果
type CycleReport struct {
	CycleID       string
	Timestamp     time.Time
	Duration      time.Duration
	Outcome       *predictor.Outcome
	Latest        database.DrawResult
	Prediction    predictor.PendingPrediction
	Ensemble      *predictor.EnsembleResult
	TopAlgorithms []predictor.AlgorithmSummary
	Stats         predictor.Stats
	RecentHistory []database.DrawResult
	NewTarget     bool
}

// Listener 新预测回调
type Listener func(report *CycleReport)

// PredictionService 串行化 抓取-结算-预测 流程，持有唯一的预测状态
type PredictionService struct {
	mu       sync.Mutex
	fetcher  Fetcher
	engine   predictor.Predictor
	tracker  *predictor.Tracker
	version  string
	recorder Recorder
	metrics  *metrics.Metrics
	clock    predictor.Clock

	fetchTimeout time.Duration

	state   predictor.TrackerState
	last    *CycleReport
	history []database.DrawResult

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewPredictionService 创建预测服务，recorder和m可以为nil
func NewPredictionService(fetcher Fetcher, p predictor.Predictor, seq predictor.Sequencer,
	recorder Recorder, m *metrics.Metrics, clock predictor.Clock) *PredictionService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &PredictionService{
		fetcher:  fetcher,
		engine:   p,
		tracker:  predictor.NewTracker(p, seq, clock),
		version:  p.GetVersion(),
		recorder: recorder,
		metrics:  m,
		clock:    clock,
	}
}

// OnNewPrediction 注册回调，目标期号变化时触发
func (s *PredictionService) OnNewPrediction(fn Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetFetchTimeout 限制单轮抓取总耗时（含重试），0表示只受调用方ctx约束
func (s *PredictionService) SetFetchTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchTimeout = d
}

// RunCycle 执行一轮完整流程
// 审计写入和回调都在释放锁之后进行
func (s *PredictionService) RunCycle(ctx context.Context) (*CycleReport, error) {
	report, history, err := s.runLocked(ctx)
	if err != nil {
		return nil, err
	}

	s.record(history, report)

	if report.NewTarget {
		s.notify(report)
	}
	return report, nil
}

func (s *PredictionService) runLocked(ctx context.Context) (*CycleReport, []database.DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock()
	cycleID := uuid.NewString()
	log := logger.WithFields(logger.Fields{"cycle_id": cycleID})

	history, err := s.fetch(ctx)
	if err != nil {
		s.recordCycle("fetch_error", start)
		log.Warnf("Failed to fetch draw history: %v", err)
		return nil, nil, err
	}

	var previousTarget string
	if s.state.Pending != nil {
		previousTarget = s.state.Pending.TargetPeriod
	}

	result, err := s.tracker.Cycle(&s.state, history)
	if err != nil {
		s.recordCycle("error", start)
		log.Warnf("Prediction cycle failed: %v", err)
		return nil, nil, err
	}

	report := &CycleReport{
		CycleID:       cycleID,
		Timestamp:     start,
		Duration:      s.clock().Sub(start),
		Outcome:       result.Outcome,
		Latest:        result.Latest,
		Prediction:    result.Pending,
		Ensemble:      result.Ensemble,
		TopAlgorithms: predictor.TopAlgorithms(result.Ensemble, topAlgorithmCount),
		Stats:         result.Stats,
		RecentHistory: append([]database.DrawResult(nil), history[:min(recentHistorySize, len(history))]...),
		NewTarget:     result.Pending.TargetPeriod != previousTarget,
	}
	s.last = report
	s.history = history

	s.observe(report)
	s.recordCycle("success", start)

	log.WithFields(logger.Fields{
		"period":     report.Prediction.TargetPeriod,
		"prediction": report.Prediction.Prediction,
		"confidence": report.Prediction.Confidence,
	}).Info("Prediction issued")

	return report, history, nil
}

func (s *PredictionService) fetch(ctx context.Context) ([]database.DrawResult, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	history, err := s.fetcher.FetchHistory(ctx)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordFetch(status, time.Since(start).Seconds())
	}
	return history, err
}

// record 写入审计记录，使用独立的超时ctx，请求取消不会中断写入
func (s *PredictionService) record(history []database.DrawResult, report *CycleReport) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.recorder.SaveDrawResults(ctx, history); err != nil {
		s.recorderFailed("save_draws", err)
	}

	if o := report.Outcome; o != nil {
		actual := database.NewDrawResult(o.PredictedPeriod, o.ActualNumber, report.Timestamp)
		if err := s.recorder.ResolvePrediction(ctx, o.PredictedPeriod, actual, o.Status); err != nil {
			s.recorderFailed("resolve_prediction", err)
		}
	}

	rec := &database.PredictionRecord{
		TargetPeriod:      report.Prediction.TargetPeriod,
		PredictedCategory: report.Prediction.Prediction,
		Confidence:        report.Ensemble.Confidence,
		AgreementRatio:    report.Ensemble.AgreementRatio,
		AlgorithmVersion:  s.version,
		PredictedAt:       report.Prediction.IssuedAt,
	}
	if err := s.recorder.SavePrediction(ctx, rec); err != nil {
		s.recorderFailed("save_prediction", err)
	}
}

func (s *PredictionService) recorderFailed(op string, err error) {
	logger.Errorf("Audit %s failed: %v", op, err)
	if s.metrics != nil {
		s.metrics.RecordRecorderError(op)
	}
}

func (s *PredictionService) observe(report *CycleReport) {
	if s.metrics == nil {
		return
	}

	if report.NewTarget {
		s.metrics.RecordPrediction(report.Ensemble.Confidence, report.Ensemble.AgreementRatio)
		for _, v := range report.Ensemble.Predictions {
			s.metrics.RecordVote(string(v.Method), string(v.Prediction))
		}
	}
	if report.Outcome != nil {
		s.metrics.RecordOutcome(string(report.Outcome.Status), report.Stats.WinRate(), report.Stats.CurrentStreak)
	}
}

func (s *PredictionService) recordCycle(status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCycle(status, s.clock().Sub(start).Seconds())
	}
}

func (s *PredictionService) notify(report *CycleReport) {
	s.listenersMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(report)
	}
}

// Stats 当前战绩快照
func (s *PredictionService) Stats() predictor.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Stats.Snapshot()
}

// Pending 当前待结算预测
func (s *PredictionService) Pending() *predictor.PendingPrediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Pending == nil {
		return nil
	}
	p := *s.state.Pending
	return &p
}

// LastReport 最近一次成功的轮次
func (s *PredictionService) LastReport() *CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Summary 预测器摘要，基于最近一次成功轮次的历史
func (s *PredictionService) Summary() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.GetSummary(s.history)
}
