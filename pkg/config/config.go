// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultConfigPath 默认配置文件，可由 TUTOR_CONFIG 覆盖
const DefaultConfigPath = "configs/api.yaml"

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Router     RouterConfig     `mapstructure:"router"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Session    SessionConfig    `mapstructure:"session"`
	Model      ModelConfig      `mapstructure:"model"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"` // 单次查询整体截止时间，如 "120s"
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	Grpc       GrpcConfig       `mapstructure:"grpc"`
}

// GrpcConfig gRPC 服务配置
type GrpcConfig struct {
	Enable         bool   `mapstructure:"enable"`
	Port           int    `mapstructure:"port"`
	HealthInterval string `mapstructure:"health_interval"` // 健康状态刷新间隔
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool              `mapstructure:"auth"`
	RateLimit     bool              `mapstructure:"rate_limit"`
	RateLimitRPS  int               `mapstructure:"rate_limit_rps"`
	JWTKey        string            `mapstructure:"jwt_key"`
	JWTTimeout    string            `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string            `mapstructure:"jwt_max_refresh"` // 如 "1h"
	Clients       map[string]string `mapstructure:"clients"`         // client_id -> client_secret，登录换取 token
}

// RouterConfig 问题分类配置
type RouterConfig struct {
	Margin    float64 `mapstructure:"margin"`    // 前两名分差小于该值视为歧义
	Threshold float64 `mapstructure:"threshold"` // 最低置信度，低于则回落 general
	Delegate  bool    `mapstructure:"delegate"`  // 歧义时是否请求 Completion Service 裁决
}

// AgentConfig 子 Agent 工具循环配置
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	CallTimeout   string `mapstructure:"call_timeout"`  // 每次模型/工具调用超时，如 "30s"
	MaxRetries    int    `mapstructure:"max_retries"`   // 瞬时错误重试次数（不含首次）
	RetryBackoff  string `mapstructure:"retry_backoff"` // 首次重试等待，如 "500ms"
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Store        string         `mapstructure:"store"` // memory | redis | postgres | mongo
	HistoryLimit int            `mapstructure:"history_limit"`
	TTL          string         `mapstructure:"ttl"` // redis 过期时间，空则不过期
	Redis        RedisConfig    `mapstructure:"redis"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	Mongo        MongoConfig    `mapstructure:"mongo"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig Postgres 连接配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MongoConfig MongoDB 连接配置
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ModelConfig Completion Service 配置
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"` // gemini | openai | claude | rules
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"` // 支持 ${ENV} 与 secret 引用（secret:key / env:NAME）
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RateLimitsConfig 限流配置
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// SecretsConfig 密钥来源配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level           string `mapstructure:"level"`
	Format          string `mapstructure:"format"`
	File            string `mapstructure:"file"`
	RedactQuestions string `mapstructure:"redact_questions"` // 日志中问题文本：none | redact | hash | remove
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.timeout", "120s")
	v.SetDefault("api.cors.enable", true)
	v.SetDefault("api.cors.allow_origins", []string{"*"})
	v.SetDefault("api.middleware.rate_limit_rps", 20)
	v.SetDefault("api.middleware.jwt_timeout", "1h")
	v.SetDefault("api.middleware.jwt_max_refresh", "1h")
	v.SetDefault("api.grpc.port", 9090)
	v.SetDefault("api.grpc.health_interval", "15s")

	v.SetDefault("router.margin", 0.1)
	v.SetDefault("router.threshold", 0.4)
	v.SetDefault("router.delegate", true)

	v.SetDefault("agent.max_iterations", 5)
	v.SetDefault("agent.call_timeout", "30s")
	v.SetDefault("agent.max_retries", 2)
	v.SetDefault("agent.retry_backoff", "500ms")

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.history_limit", 10)
	v.SetDefault("session.redis.key_prefix", "tutor:session:")
	v.SetDefault("session.mongo.database", "tutor")
	v.SetDefault("session.mongo.collection", "sessions")

	v.SetDefault("model.provider", "rules")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.max_tokens", 1024)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.vault.path_prefix", "secret")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.redact_questions", "hash")

	v.SetDefault("monitoring.prometheus.path", "/metrics")
	v.SetDefault("monitoring.tracing.service_name", "tutor-api")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 缺失不是错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置：TUTOR_CONFIG 指定的文件，否则 configs/api.yaml（不存在时仅用默认值）
func LoadAPIConfig() (*Config, error) {
	if p := os.Getenv("TUTOR_CONFIG"); p != "" {
		return LoadConfig(p)
	}
	if _, err := os.Stat(DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return LoadConfig("")
	}
	return LoadConfig(DefaultConfigPath)
}

// replaceEnvVars 替换配置中的 ${VAR} 环境变量引用
func replaceEnvVars(config *Config) {
	config.Model.APIKey = expandEnv(config.Model.APIKey)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
	config.Session.Redis.Password = expandEnv(config.Session.Redis.Password)
	config.Session.Postgres.DSN = expandEnv(config.Session.Postgres.DSN)
	config.Session.Mongo.URI = expandEnv(config.Session.Mongo.URI)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	for id, secret := range config.API.Middleware.Clients {
		config.API.Middleware.Clients[id] = expandEnv(secret)
	}
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); val != "" {
		return val
	}
	return s
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
