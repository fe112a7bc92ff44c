package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"wingo-bot/internal/cache"
	"wingo-bot/internal/config"
	"wingo-bot/internal/database"
	"wingo-bot/internal/logger"
)

var (
	// ErrUpstreamFetch 上游请求失败（网络错误、超时、非200状态码）
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrMalformedData 上游数据格式错误
	ErrMalformedData = errors.New("invalid data format")
)

const (
	historyCacheKey = "wingo:history"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Client API客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	retryCount int
	retryDelay time.Duration
	cacheTTL   time.Duration
	cache      *cache.MemoryCache
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient 创建新的API客户端，store为nil时不缓存
func NewClient(cfg *config.API, store *cache.MemoryCache) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    cfg.URL,
		pageSize:   cfg.PageSize,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		cacheTTL:   cfg.CacheTTL,
		cache:      store,
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// FetchHistory 获取开奖历史（从新到旧），短时间内的重复请求走缓存
func (c *Client) FetchHistory(ctx context.Context) ([]database.DrawResult, error) {
	if c.cache != nil && c.cacheTTL > 0 {
		var cached []database.DrawResult
		if err := c.cache.Get(historyCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	resp, err := c.FetchPage(ctx)
	if err != nil {
		return nil, err
	}

	results, err := ParseResults(resp, c.now())
	if err != nil {
		return nil, err
	}

	if c.pageSize > 0 && len(results) > c.pageSize {
		results = results[:c.pageSize]
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(historyCacheKey, results, c.cacheTTL); err != nil {
			logger.Warnf("Failed to cache draw history: %v", err)
		}
	}

	logger.Debugf("Fetched %d draw results, latest period %s", len(results), results[0].Period)
	return results, nil
}

// FetchPage 获取一页原始数据，失败时按配置重试
func (c *Client) FetchPage(ctx context.Context) (*database.APIResponse, error) {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.retryCount > 0 {
		exp := backoff.NewExponentialBackOff()
		if c.retryDelay > 0 {
			exp.InitialInterval = c.retryDelay
		}
		exp.MaxElapsedTime = 0
		policy = backoff.WithMaxRetries(exp, uint64(c.retryCount))
	}

	var result *database.APIResponse
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			logger.Warnf("API request retry attempt %d/%d", attempt-1, c.retryCount)
		}

		resp, err := c.makeRequest(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformedData) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = resp
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		// 上下文取消时backoff直接返回ctx.Err()
		if !errors.Is(err, ErrUpstreamFetch) && !errors.Is(err, ErrMalformedData) {
			err = fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
		}
		return nil, err
	}
	return result, nil
}

// makeRequest 执行HTTP请求
func (c *Client) makeRequest(ctx context.Context) (*database.APIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	logger.Debugf("Making API request to: %s", c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUpstreamFetch, err)
	}

	var apiResponse database.APIResponse
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	return &apiResponse, nil
}

// ParseResults 转换上游数据为内部开奖记录
func ParseResults(resp *database.APIResponse, observedAt time.Time) ([]database.DrawResult, error) {
	if resp == nil || resp.Data == nil || resp.Data.List == nil {
		return nil, ErrMalformedData
	}
	if len(resp.Data.List) == 0 {
		return nil, fmt.Errorf("%w: empty draw list", ErrMalformedData)
	}

	results := make([]database.DrawResult, 0, len(resp.Data.List))
	for i, item := range resp.Data.List {
		if item.IssueNumber == "" {
			return nil, fmt.Errorf("%w: empty issue number at index %d", ErrMalformedData, i)
		}

		number, err := strconv.Atoi(strings.TrimSpace(item.Number))
		if err != nil || number < 0 || number > 9 {
			return nil, fmt.Errorf("%w: invalid number %q for period %s",
				ErrMalformedData, item.Number, item.IssueNumber)
		}

		at := observedAt
		if t, ok := parseOpenTime(item.OpenTime); ok {
			at = t
		}
		results = append(results, database.NewDrawResult(item.IssueNumber, number, at))
	}

	return results, nil
}

var openTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseOpenTime 解析开奖时间，支持Unix秒/毫秒和常见日期格式
func parseOpenTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if len(raw) > 10 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	for _, layout := range openTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// HealthCheck 检查API健康状态
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.makeRequest(ctx)
	if err != nil {
		return fmt.Errorf("API health check failed: %w", err)
	}
	if _, err := ParseResults(resp, c.now()); err != nil {
		return fmt.Errorf("API health check failed: %w", err)
	}

	logger.Debug("API health check passed")
	return nil
}

// GetAPIStats 获取API统计信息
func (c *Client) GetAPIStats() map[string]interface{} {
	stats := map[string]interface{}{
		"base_url":    c.baseURL,
		"timeout":     c.httpClient.Timeout.String(),
		"retry_count": c.retryCount,
		"retry_delay": c.retryDelay.String(),
		"cache_ttl":   c.cacheTTL.String(),
	}
	if c.cache != nil {
		stats["cache"] = c.cache.Stats()
		stats["cache_entries"] = c.cache.Size()
		if ttl, err := c.cache.GetTTL(historyCacheKey); err == nil {
			stats["history_ttl"] = ttl.String()
		}
	}
	return stats
}
