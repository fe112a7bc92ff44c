package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"wingo-bot/internal/api"
	"wingo-bot/internal/cache"
	"wingo-bot/internal/config"
	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
	"wingo-bot/internal/metrics"
	"wingo-bot/internal/predictor"
	"wingo-bot/internal/server"
	"wingo-bot/internal/service"
	"wingo-bot/internal/telegram"
)

const (
	cacheMaxSize         = 128
	cacheCleanupInterval = time.Minute
	cleanupInterval      = time.Hour
	auditStatsTTL        = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// App 应用程序主结构
type App struct {
	config    *config.Config
	mysql     *database.MySQLDB
	cache     *cache.MemoryCache
	apiClient *api.Client
	metrics   *metrics.Metrics
	service   *service.PredictionService
	hub       *server.Hub
	server    *server.Server
	bot       *telegram.Bot
}

// NewApp 创建应用程序实例
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	logger.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	fmt.Println("🚀 启动WinGo预测服务...")

	app := &App{
		config:  cfg,
		cache:   cache.NewMemoryCache(cacheMaxSize, cacheCleanupInterval),
		metrics: metrics.New(),
	}

	var recorder service.Recorder = service.NopRecorder{}
	if cfg.Database.Enabled {
		mysql, err := database.NewMySQLDB(&cfg.Database)
		if err != nil {
			app.cache.Close()
			return nil, fmt.Errorf("failed to initialize database: %v", err)
		}
		app.mysql = mysql
		recorder = mysql
		fmt.Println("✅ 数据库连接成功")
	}

	app.apiClient = api.NewClient(&cfg.API, app.cache)
	logger.WithFields(app.apiClient.GetAPIStats()).Info("Upstream client configured")

	ensemble := predictor.NewEnsemble(cfg.Predictor.MinHistory, time.Now)
	sequencer := predictor.NewSequencer(cfg.Predictor.MaxDailySequence, cfg.Predictor.SequenceDigits)
	app.service = service.NewPredictionService(app.apiClient, ensemble, sequencer, recorder, app.metrics, time.Now)
	app.service.SetFetchTimeout(cfg.API.Timeout)

	if cfg.Server.EnableWS {
		app.hub = server.NewHub(app.metrics)
	}

	var audit server.AuditSource
	if app.mysql != nil {
		stats := cache.NewStatsManager(app.cache, app.mysql, auditStatsTTL)
		app.service.OnNewPrediction(func(report *service.CycleReport) {
			if report.Outcome != nil {
				stats.OnPredictionVerified()
			}
		})
		audit = stats
	}
	app.server = server.New(cfg.Server, app.service, app.hub, app.metrics, audit, cfg.Predictor.DataSource)
	app.server.AddHealthCheck("upstream", app.apiClient.HealthCheck)
	app.server.AddInfo("api", app.apiClient.GetAPIStats)
	if app.mysql != nil {
		app.server.AddHealthCheck("database", app.mysql.Ping)
	}

	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(&cfg.Telegram, app.service)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize telegram bot: %v", err)
		}
		app.bot = bot
		app.service.OnNewPrediction(func(report *service.CycleReport) {
			go bot.BroadcastNewPrediction(report)
		})
		fmt.Println("✅ Telegram机器人连接成功")
	}

	fmt.Println("🎯 应用程序初始化完成")
	return app, nil
}

// Run 启动所有服务，ctx取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.hub != nil {
		g.Go(func() error {
			a.hub.Run(ctx)
			return nil
		})
	}

	g.Go(a.server.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.config.App.PollingInterval > 0 {
		g.Go(func() error {
			a.monitorLoop(ctx)
			return nil
		})
	}

	if a.mysql != nil {
		g.Go(func() error {
			a.cleanupLoop(ctx)
			return nil
		})
	}

	if a.bot != nil {
		g.Go(func() error {
			return a.bot.Run(ctx)
		})
	}

	fmt.Println("✅ 所有服务启动完成")
	fmt.Printf("📡 HTTP接口: %s/api/predict\n", a.config.Server.Addr)
	if a.config.App.PollingInterval > 0 {
		fmt.Printf("⏰ 轮询间隔: %v\n", a.config.App.PollingInterval)
	}
	fmt.Println("💡 按 Ctrl+C 停止程序")

	return g.Wait()
}

// Close 释放资源
func (a *App) Close() {
	a.cache.Close()
	if a.mysql != nil {
		if err := a.mysql.Close(); err != nil {
			logger.Errorf("Failed to close database: %v", err)
		}
	}
}

// monitorLoop 定时执行预测轮次，使推送不依赖外部请求
func (a *App) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.App.PollingInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := a.service.RunCycle(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				consecutiveErrors++
				// 只在第一次和每30次失败时输出
				if consecutiveErrors == 1 {
					fmt.Printf("⚠️  数据获取失败: %v\n", err)
				} else if consecutiveErrors%30 == 0 {
					fmt.Printf("❌ 连续失败 %d 次，仍在重试...\n", consecutiveErrors)
				}
				continue
			}
			if consecutiveErrors > 0 {
				fmt.Printf("✅ 数据连接已恢复（失败了 %d 次）\n", consecutiveErrors)
				consecutiveErrors = 0
			}
		}
	}
}

// cleanupLoop 每小时清理过期审计数据
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	retention := time.Duration(a.config.Database.RetentionHours) * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if retention <= 0 {
				continue
			}
			removed, err := a.mysql.CleanOldData(ctx, retention)
			if err != nil {
				logger.Errorf("Data cleanup failed: %v", err)
				continue
			}
			logger.Infof("Data cleanup removed %d rows", removed)
		}
	}
}

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	app, err := NewApp(configPath)
	if err != nil {
		fmt.Printf("❌ 应用初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Printf("❌ 运行出错: %v\n", err)
		app.Close()
		os.Exit(1)
	}
	fmt.Println("✅ 应用程序已安全停止")
}
