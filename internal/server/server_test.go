package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingo-bot/internal/config"
	"wingo-bot/internal/database"
	"wingo-bot/internal/metrics"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/service"
)

var testNow = time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type feed struct {
	mu     sync.Mutex
	newest int
	err    error
}

func (f *feed) FetchHistory(context.Context) ([]database.DrawResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	history := make([]database.DrawResult, 0, 30)
	for seq := f.newest; seq > f.newest-30; seq-- {
		history = append(history, database.NewDrawResult(fmt.Sprintf("20240101%04d", seq), (seq*3)%10, testNow))
	}
	return history, nil
}

type auditStub struct {
	stats *database.PredictionStats
	err   error
}

func (a auditStub) GetPredictionStats(context.Context) (*database.PredictionStats, error) {
	return a.stats, a.err
}

func testConfig() config.Server {
	cfg := config.Default().Server
	cfg.RateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, f service.Fetcher, cfg config.Server, hub *Hub, audit AuditSource) *Server {
	t.Helper()
	svc := service.NewPredictionService(f,
		predictor.NewEnsemble(predictor.MinHistorySize, fixedClock),
		predictor.NewSequencer(predictor.DefaultMaxDailySequence, predictor.DefaultSequenceDigits),
		nil, metrics.New(), fixedClock)
	s := New(cfg, svc, hub, metrics.New(), audit, "WinGo 1 Minute")
	s.now = fixedClock
	return s
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPredict_Success(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/predict")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-cache")

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Nil(t, raw["previousResult"])
	assert.Contains(t, raw, "previousResult")

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.CycleID)
	assert.Equal(t, "2024-01-01T10:45:00.000Z", resp.Timestamp)
	assert.True(t, strings.HasSuffix(resp.ResponseTime, "ms"))
	assert.Equal(t, "202401010100", resp.CurrentPeriod.Period)
	assert.Equal(t, "202401010101", resp.Prediction.Period)
	assert.Contains(t, []database.Category{database.CategoryBig, database.CategorySmall}, resp.Prediction.Prediction)
	assert.True(t, strings.HasSuffix(resp.Prediction.AgreementRatio, "%"))
	assert.True(t, strings.HasSuffix(resp.Prediction.AlgorithmsAgree, "/15"))
	assert.LessOrEqual(t, resp.Prediction.Confidence, 95.0)
	assert.Len(t, resp.RecentHistory, 10)
	assert.Equal(t, "0.00%", resp.Statistics.WinRate)
	assert.Equal(t, APIInfo{
		Version:    "2.0.0",
		Algorithms: 15,
		DataSource: "WinGo 1 Minute",
		NextUpdate: "Real-time on next request",
	}, resp.APIInfo)
}

func TestPredict_PostAndOptions(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/predict").Code)

	rec := do(t, h, http.MethodOptions, "/api/predict")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/api/predict").Code)
}

func TestPredict_UpstreamFailure(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100, err: errors.New("connection refused")}, testConfig(), nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/predict")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "connection refused", resp.Error)
	assert.Equal(t, "Please try again in a few seconds", resp.Suggestion)
	assert.Equal(t, "2024-01-01T10:45:00.000Z", resp.Timestamp)
}

func TestPredict_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	s := newTestServer(t, &feed{newest: 100}, cfg, nil, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/predict").Code)

	rec := do(t, h, http.MethodGet, "/api/predict")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp.Error)
}

func TestPredict_PreviousResultAfterDraw(t *testing.T) {
	f := &feed{newest: 100}
	s := newTestServer(t, f, testConfig(), nil, nil)
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/predict").Code)

	// 101 和 102 都已开出
	f.mu.Lock()
	f.newest += 2
	f.mu.Unlock()

	rec := do(t, h, http.MethodGet, "/api/predict")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.PreviousResult)
	assert.Equal(t, "202401010101", resp.PreviousResult.PredictedPeriod)
	assert.Equal(t, 1, resp.Statistics.TotalPredictions)
	assert.Equal(t, "202401010103", resp.Prediction.Period)
	assert.Contains(t, resp.PreviousResult.Message, "Previous prediction")
}

func TestStats(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	audit := auditStub{stats: &database.PredictionStats{TotalPredictions: 4, Wins: 3, WinRate: 75, FirstPrediction: &first}}
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, audit)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var empty struct {
		Success    bool                         `json:"success"`
		Trend      string                       `json:"trend"`
		Pending    *predictor.PendingPrediction `json:"pendingPrediction"`
		Statistics Statistics                   `json:"statistics"`
		Audit      database.PredictionStats     `json:"audit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.True(t, empty.Success)
	assert.Equal(t, "insufficient_data", empty.Trend)
	assert.Nil(t, empty.Pending)
	assert.Equal(t, 4, empty.Audit.TotalPredictions)

	do(t, h, http.MethodGet, "/api/predict")
	rec = do(t, h, http.MethodGet, "/api/stats")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	require.NotNil(t, empty.Pending)
	assert.Equal(t, "202401010101", empty.Pending.TargetPeriod)
}

func TestStats_AuditFailureIsOmitted(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, auditStub{err: errors.New("db down")})

	rec := do(t, s.Handler(), http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"audit"`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), NewHub(nil), nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"websocketClients":0`)

	var body struct {
		Predictor map[string]interface{} `json:"predictor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ensemble", body.Predictor["algorithm"])
	assert.Equal(t, float64(predictor.AlgorithmCount()), body.Predictor["algorithms"])
	assert.Equal(t, false, body.Predictor["analysis_ready"])

	rec = do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wingo_")
}

func TestWebsocket_ReceivesNewPrediction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	s := newTestServer(t, &feed{newest: 100}, testConfig(), hub, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/api/predict")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event struct {
			Type EventType       `json:"type"`
			Data PredictResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &event))
		if event.Type != EventTypePrediction {
			continue
		}
		assert.Equal(t, "202401010101", event.Data.Prediction.Period)
		return
	}
}

func TestHub_CloseOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	// Run退出后的广播不会阻塞
	hub.Broadcast(Event{Type: EventTypeHeartbeat})
}

func TestHealth_IncludesInfo(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, nil)
	s.AddInfo("api", func() map[string]interface{} {
		return map[string]interface{}{"cache_entries": 3}
	})
	h := s.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/predict").Code)

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		API       map[string]interface{} `json:"api"`
		Predictor map[string]interface{} `json:"predictor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body.API["cache_entries"])
	assert.Equal(t, float64(30), body.Predictor["history_size"])
	assert.Equal(t, true, body.Predictor["analysis_ready"])
}

func TestHealth_DegradedWhenCheckFails(t *testing.T) {
	s := newTestServer(t, &feed{newest: 100}, testConfig(), nil, nil)
	s.AddHealthCheck("upstream", func(context.Context) error { return nil })
	s.AddHealthCheck("database", func(context.Context) error { return errors.New("connection refused") })

	rec := do(t, s.Handler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"upstream": "ok", "database": "connection refused"}, body.Services)
}
