package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"wingo-bot/internal/config"
	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
	"wingo-bot/internal/metrics"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/service"
)

const (
	trendWindow      = 10
	auditTimeout     = 5 * time.Second
	healthTimeout    = 5 * time.Second
	defaultNextCycle = "Real-time on next request"
)

var errRateLimited = errors.New("rate limit exceeded")

// AuditSource 可选的数据库统计来源
type AuditSource interface {
	GetPredictionStats(ctx context.Context) (*database.PredictionStats, error)
}

// HealthCheck 依赖检查，返回nil表示正常
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

// InfoProvider 附加在健康检查里的运行信息
type InfoProvider func() map[string]interface{}

type namedInfo struct {
	name string
	info InfoProvider
}

// Server HTTP接口
type Server struct {
	cfg     config.Server
	svc     *service.PredictionService
	hub     *Hub
	metrics *metrics.Metrics
	limiter *rate.Limiter
	info    APIInfo
	audit   AuditSource
	now     func() time.Time
	checks  []namedCheck
	infos   []namedInfo

	httpServer *http.Server
}

// New 创建HTTP服务，hub/m/audit可以为nil
func New(cfg config.Server, svc *service.PredictionService, hub *Hub, m *metrics.Metrics, audit AuditSource, dataSource string) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		hub:     hub,
		metrics: m,
		audit:   audit,
		now:     time.Now,
		info: APIInfo{
			Version:    predictor.EnsembleVersion,
			Algorithms: predictor.AlgorithmCount(),
			DataSource: dataSource,
			NextUpdate: defaultNextCycle,
		},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if hub != nil {
		svc.OnNewPrediction(func(report *service.CycleReport) {
			hub.Broadcast(Event{
				Type:      EventTypePrediction,
				Timestamp: report.Timestamp,
				Data:      BuildPredictResponse(report, s.info, report.Duration),
			})
		})
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler 路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	if s.hub != nil && s.cfg.EnableWS {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
	return withCORS(mux)
}

// AddHealthCheck 注册依赖检查，需在服务启动前调用
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// AddInfo 注册健康检查中展示的运行信息，需在服务启动前调用
func (s *Server) AddInfo(name string, info InfoProvider) {
	s.infos = append(s.infos, namedInfo{name: name, info: info})
}

// ListenAndServe 阻塞直到服务关闭
func (s *Server) ListenAndServe() error {
	logger.Infof("HTTP server listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, NewErrorResponse(errors.New("method not allowed"), s.now()))
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, NewErrorResponse(errRateLimited, s.now()))
		return
	}

	start := time.Now()
	report, err := s.svc.RunCycle(r.Context())
	if err != nil {
		logger.Warnf("[API] Predict request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err, s.now()))
		return
	}

	writeJSON(w, http.StatusOK, BuildPredictResponse(report, s.info, time.Since(start)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, NewErrorResponse(errors.New("method not allowed"), s.now()))
		return
	}

	stats := s.svc.Stats()
	resp := StatsResponse{
		Success:    true,
		Timestamp:  s.now().UTC().Format(isoLayout),
		Statistics: BuildStatistics(stats),
		Trend:      stats.Trend(trendWindow),
		Pending:    s.svc.Pending(),
	}

	if s.audit != nil {
		ctx, cancel := context.WithTimeout(r.Context(), auditTimeout)
		defer cancel()
		audit, err := s.audit.GetPredictionStats(ctx)
		if err != nil {
			logger.Warnf("[API] Failed to load audit stats: %v", err)
		} else {
			resp.Audit = audit
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(isoLayout),
		"predictor": s.svc.Summary(),
	}
	if s.hub != nil {
		body["websocketClients"] = s.hub.ClientCount()
	}
	for _, i := range s.infos {
		body[i.name] = i.info()
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		services := make(map[string]string, len(s.checks))
		for _, c := range s.checks {
			if err := c.check(ctx); err != nil {
				services[c.name] = err.Error()
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			services[c.name] = "ok"
		}
		body["services"] = services
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[API] Failed to encode response: %v", err)
	}
}
