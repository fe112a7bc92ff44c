package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wingo-bot/internal/logger"
)

var (
	// ErrCacheMiss 缓存不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
)

const defaultCleanupInterval = time.Minute

// MemoryItem 内存缓存项
type MemoryItem struct {
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// isExpired 检查是否过期
func (item *MemoryItem) isExpired(now time.Time) bool {
	return !now.Before(item.ExpiresAt)
}

// MemoryCache 内存缓存实现
// 值以JSON形式保存，读取时反序列化到调用方提供的目标，避免共享引用
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]*MemoryItem
	maxSize int
	now     func() time.Time

	hits   int64
	misses int64

	stop chan struct{}
	once sync.Once
}

// NewMemoryCache 创建新的内存缓存，并启动过期清理协程
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	cache := &MemoryCache{
		items:   make(map[string]*MemoryItem),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go cache.startCleanup(cleanupInterval)

	logger.Debugf("Memory cache initialized (max size %d)", maxSize)
	return cache
}

// Set 设置缓存值
func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxSize {
		m.evictOldest()
	}

	m.items[key] = &MemoryItem{
		Value:     data,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	logger.Debugf("Memory cache set: %s", key)
	return nil
}

// Get 获取缓存值，未命中返回 ErrCacheMiss
func (m *MemoryCache) Get(key string, dest interface{}) error {
	now := m.now()

	m.mu.Lock()
	item, exists := m.items[key]
	if exists && item.isExpired(now) {
		delete(m.items, key)
		exists = false
	}
	if !exists {
		m.misses++
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	m.hits++
	data := item.Value
	m.mu.Unlock()

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	logger.Debugf("Memory cache hit: %s", key)
	return nil
}

// Delete 删除缓存
func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// GetTTL 获取缓存剩余过期时间
func (m *MemoryCache) GetTTL(key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}

	remaining := item.ExpiresAt.Sub(m.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Clear 清空所有缓存
func (m *MemoryCache) Clear() {
	m.mu.Lock()
	m.items = make(map[string]*MemoryItem)
	m.mu.Unlock()
	logger.Debug("Memory cache cleared")
}

// Size 获取缓存大小
func (m *MemoryCache) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Stats 获取缓存统计信息
func (m *MemoryCache) Stats() map[string]interface{} {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var valid, expired int
	for _, item := range m.items {
		if item.isExpired(now) {
			expired++
		} else {
			valid++
		}
	}

	return map[string]interface{}{
		"total_size":    len(m.items),
		"valid_items":   valid,
		"expired_items": expired,
		"max_size":      m.maxSize,
		"hits":          m.hits,
		"misses":        m.misses,
	}
}

// Close 停止清理协程并清空缓存，可重复调用
func (m *MemoryCache) Close() {
	m.once.Do(func() {
		close(m.stop)
		m.Clear()
	})
}

// startCleanup 启动定期清理过期缓存
func (m *MemoryCache) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stop:
			return
		}
	}
}

// cleanupExpired 清理过期的缓存项
func (m *MemoryCache) cleanupExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			count++
		}
	}

	if count > 0 {
		logger.Debugf("Memory cache cleanup: removed %d expired items", count)
	}
	return count
}

// evictOldest 淘汰最旧的缓存项，调用方需持有写锁
func (m *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range m.items {
		if oldestKey == "" || item.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(m.items, oldestKey)
		logger.Debugf("Memory cache evicted oldest: %s", oldestKey)
	}
}
