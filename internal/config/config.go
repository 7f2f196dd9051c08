package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 外部调用超时的允许区间
const (
	MinExternalTimeout = 5 * time.Second
	MaxExternalTimeout = 30 * time.Second
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	FAQ       FAQConfig       `yaml:"faq"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	AI        AIConfig        `yaml:"ai"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// RedisConfig Redis 配置（Host 为空表示不启用）
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled 是否配置了 Redis
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// EventsConfig 活动后端配置
type EventsConfig struct {
	BackendURL      string        `yaml:"backendUrl"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	RefreshInterval time.Duration `yaml:"refreshInterval"` // 0 表示不定时刷新
	TopK            int           `yaml:"topK"`
}

// FAQConfig FAQ 语料配置
type FAQConfig struct {
	Path        string  `yaml:"path"`
	MaxDistance float64 `yaml:"maxDistance"` // 0 表示总是返回最近的 FAQ
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // local, openai
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// AIConfig 生成式 AI 增强配置（APIKey 为空时禁用）
type AIConfig struct {
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseUrl"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig 限流配置（RequestsPerSecond 为 0 表示不限流）
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LoadConfig 加载配置文件，随后应用默认值和环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	return cfg, nil
}

// Parse 解析 YAML 配置（不读取环境变量）
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Name == "" {
		c.Server.Name = "campverse-chatbot"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Events.BackendURL == "" {
		c.Events.BackendURL = "http://localhost:5000"
	}
	if c.Events.FetchTimeout == 0 {
		c.Events.FetchTimeout = MinExternalTimeout
	}
	c.Events.FetchTimeout = ClampTimeout(c.Events.FetchTimeout)
	if c.Events.TopK <= 0 {
		c.Events.TopK = 5
	}
	if c.FAQ.Path == "" {
		c.FAQ.Path = "data/faq.json"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-1.5-flash"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 15 * time.Second
	}
	c.AI.Timeout = ClampTimeout(c.AI.Timeout)
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnv 用环境变量覆盖配置
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("BACKEND_URL"); v != "" {
		c.Events.BackendURL = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := getenv("EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Host = v
		if host, port, ok := splitHostPort(v); ok {
			c.Redis.Host = host
			c.Redis.Port = port
		}
	}
	if v := getenv("CHATBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// ClampTimeout 将外部调用超时限制在 5-30 秒之间
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinExternalTimeout {
		return MinExternalTimeout
	}
	if d > MaxExternalTimeout {
		return MaxExternalTimeout
	}
	return d
}

func splitHostPort(addr string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}
