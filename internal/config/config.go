package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config 应用程序配置结构
type Config struct {
	Server    Server    `yaml:"server"`
	API       API       `yaml:"api"`
	Database  Database  `yaml:"database"`
	Telegram  Telegram  `yaml:"telegram"`
	Predictor Predictor `yaml:"predictor"`
	App       App       `yaml:"app"`
}

// Server HTTP服务配置
type Server struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	RateLimit    float64       `yaml:"rate_limit" validate:"gte=0"`
	RateBurst    int           `yaml:"rate_burst" validate:"gte=0"`
	EnableWS     bool          `yaml:"enable_ws"`
}

// API 上游开奖接口配置
type API struct {
	URL            string        `yaml:"url" validate:"required,url"`
	PageSize       int           `yaml:"page_size" validate:"gte=20,lte=100"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheTTL       time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	RetryCount     int           `yaml:"retry_count" validate:"gte=0,lte=10"`
	RetryDelay     time.Duration `yaml:"retry_delay" validate:"gte=0"`
	RequestsPerSec float64       `yaml:"requests_per_sec" validate:"gte=0"`
}

// Database 数据库配置
type Database struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host" validate:"required_if=Enabled true"`
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	Username        string        `yaml:"username" validate:"required_if=Enabled true"`
	Database        string        `yaml:"database" validate:"required_if=Enabled true"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
	RetentionHours  int           `yaml:"retention_hours" validate:"gte=0"`
}

// Telegram Bot配置
type Telegram struct {
	Enabled          bool          `yaml:"enabled"`
	Token            string        `yaml:"token" validate:"required_if=Enabled true"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	BroadcastChatIDs []int64       `yaml:"broadcast_chat_ids"`
}

// Predictor 预测引擎配置
type Predictor struct {
	MinHistory       int    `yaml:"min_history" validate:"gte=20"`
	MaxDailySequence int    `yaml:"max_daily_sequence" validate:"gt=0"`
	SequenceDigits   int    `yaml:"sequence_digits" validate:"gte=1,lte=8"`
	DataSource       string `yaml:"data_source"`
}

// App 应用程序配置
type App struct {
	PollingInterval time.Duration `yaml:"polling_interval" validate:"gte=0"`
	LogLevel        string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat       string        `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

var validate = validator.New()

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    5,
			RateBurst:    10,
			EnableWS:     true,
		},
		API: API{
			URL:            "https://draw.ar-lottery01.com/WinGo/WinGo_1M/GetHistoryIssuePage.json",
			PageSize:       50,
			Timeout:        10 * time.Second,
			CacheTTL:       5 * time.Second,
			RetryCount:     0,
			RetryDelay:     time.Second,
			RequestsPerSec: 2,
		},
		Database: Database{
			Port:            3306,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			RetentionHours:  24,
		},
		Telegram: Telegram{
			Timeout: 60 * time.Second,
		},
		Predictor: Predictor{
			MinHistory:       20,
			MaxDailySequence: 1440,
			SequenceDigits:   4,
			DataSource:       "WinGo 1 Minute",
		},
		App: App{
			PollingInterval: 0,
			LogLevel:        "info",
			LogFormat:       "text",
		},
	}
}

// LoadConfig 加载配置文件，随后应用环境变量覆盖并校验
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	// .env 不存在不算错误
	_ = godotenv.Load()

	return Parse(data)
}

// Parse 解析yaml内容
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides 敏感信息优先从环境变量读取
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("BROADCAST_CHAT_IDS"); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		c.Telegram.BroadcastChatIDs = ids
	}
}

// GetDSN 获取数据库连接字符串
func (d *Database) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
