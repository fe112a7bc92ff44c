package cache

import (
	"context"
	"time"

	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
)

const statsKey = "stats:accuracy"

// StatsLoader 统计数据的来源，通常是数据库
type StatsLoader interface {
	GetPredictionStats(ctx context.Context) (*database.PredictionStats, error)
}

// StatsManager 审计统计的读穿透缓存
type StatsManager struct {
	memory *MemoryCache
	loader StatsLoader
	ttl    time.Duration
}

// NewStatsManager 创建统计缓存管理器
func NewStatsManager(memory *MemoryCache, loader StatsLoader, ttl time.Duration) *StatsManager {
	return &StatsManager{
		memory: memory,
		loader: loader,
		ttl:    ttl,
	}
}

// GetPredictionStats 优先读缓存，未命中时回源并回填
func (cm *StatsManager) GetPredictionStats(ctx context.Context) (*database.PredictionStats, error) {
	var stats database.PredictionStats
	if err := cm.memory.Get(statsKey, &stats); err == nil {
		return &stats, nil
	}

	loaded, err := cm.loader.GetPredictionStats(ctx)
	if err != nil {
		return nil, err
	}

	if err := cm.memory.Set(statsKey, loaded, cm.ttl); err != nil {
		logger.Warnf("Failed to cache prediction stats: %v", err)
	}
	return loaded, nil
}

// OnPredictionVerified 有新结算时失效统计缓存
func (cm *StatsManager) OnPredictionVerified() {
	cm.memory.Delete(statsKey)
}
