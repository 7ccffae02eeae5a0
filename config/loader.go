// =============================================================================
// 📦 Chronicler 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CHRONICLER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fableloom/chronicler/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Chronicler 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Pipeline 上下文装配管线配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Memory 分层记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Visibility 可见性过滤配置
	Visibility VisibilityConfig `yaml:"visibility" env:"VISIBILITY"`

	// Engine 回合调度引擎配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Tokenizer Token 计数配置
	Tokenizer TokenizerConfig `yaml:"tokenizer" env:"TOKENIZER"`

	// Index 外部知识索引配置
	Index IndexConfig `yaml:"index" env:"INDEX"`

	// Cache 检索缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis 缓存后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 记忆快照持久化配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Archive 简报归档配置
	Archive ArchiveConfig `yaml:"archive" env:"ARCHIVE"`

	// Stream 简报推送配置
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus 指标端口（与业务端口分离）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每客户端限流速率（请求/秒）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// PipelineConfig 装配管线配置
type PipelineConfig struct {
	// 每份简报的 Token 预算
	TokenBudget int `yaml:"token_budget" env:"TOKEN_BUDGET"`
	// 简报最多包含的知识片段数
	MaxSnippets int `yaml:"max_snippets" env:"MAX_SNIPPETS"`
	// MMR 多样性权衡参数 λ ∈ [0,1]
	MMRLambda float64 `yaml:"mmr_lambda" env:"MMR_LAMBDA"`
	// 检索候选数（送入 MMR 前）
	RetrievalTopK int `yaml:"retrieval_top_k" env:"RETRIEVAL_TOP_K"`
	// 单次检索超时
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout" env:"RETRIEVAL_TIMEOUT"`
	// 简报最多包含的记忆条数
	MaxMemories int `yaml:"max_memories" env:"MAX_MEMORIES"`
	// 预算压缩时摘要截断长度（字符）
	SummaryMaxChars int `yaml:"summary_max_chars" env:"SUMMARY_MAX_CHARS"`
}

// MemoryConfig 分层记忆配置
type MemoryConfig struct {
	// 工作记忆容量（7±2）
	WorkingCapacity int `yaml:"working_capacity" env:"WORKING_CAPACITY"`
	// 情节记忆容量
	EpisodicCapacity int `yaml:"episodic_capacity" env:"EPISODIC_CAPACITY"`
	// 语义记忆容量
	SemanticCapacity int `yaml:"semantic_capacity" env:"SEMANTIC_CAPACITY"`
	// 情感记忆容量
	EmotionalCapacity int `yaml:"emotional_capacity" env:"EMOTIONAL_CAPACITY"`
	// 淘汰衰减半衰期（回合）
	DecayHalfLifeTurns int `yaml:"decay_half_life_turns" env:"DECAY_HALF_LIFE_TURNS"`
	// 工作记忆晋升为情节记忆的相关性阈值
	PromotionThreshold float64 `yaml:"promotion_threshold" env:"PROMOTION_THRESHOLD"`
	// 语义记忆去重的相似度阈值
	MergeSimilarity float64 `yaml:"merge_similarity" env:"MERGE_SIMILARITY"`
	// 整合周期（每 N 回合一次）
	ConsolidateEvery int `yaml:"consolidate_every" env:"CONSOLIDATE_EVERY"`
}

// VisibilityConfig 可见性配置
type VisibilityConfig struct {
	// 最后目击置信度半衰期（回合）
	LastKnownHalfLifeTurns int `yaml:"last_known_half_life_turns" env:"LAST_KNOWN_HALF_LIFE_TURNS"`
	// 低于该置信度的最后目击记录被丢弃
	ConfidenceFloor float64 `yaml:"confidence_floor" env:"CONFIDENCE_FLOOR"`
}

// EngineConfig 回合引擎配置
type EngineConfig struct {
	// 并行装配的工作者数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 任务队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 提交阶段超时
	CommitTimeout time.Duration `yaml:"commit_timeout" env:"COMMIT_TIMEOUT"`
}

// TokenizerConfig Token 计数配置
type TokenizerConfig struct {
	// 后端: estimator, tiktoken
	Backend string `yaml:"backend" env:"BACKEND"`
	// tiktoken 编码名
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// IndexConfig 外部知识索引配置
type IndexConfig struct {
	// 后端: memory, http
	Backend string `yaml:"backend" env:"BACKEND"`
	// http 后端的基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 对索引的限流速率（查询/秒，0 表示不限）
	RateLimitQPS float64 `yaml:"rate_limit_qps" env:"RATE_LIMIT_QPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// CacheConfig 检索缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 内存后端最大条目数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// 条目存活时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置（记忆快照持久化）
type DatabaseConfig struct {
	// 是否启用持久化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ArchiveConfig 简报归档配置
type ArchiveConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: memory, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// Mongo 连接串
	URI string `yaml:"uri" env:"URI"`
	// Mongo 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// Mongo 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 操作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// StreamConfig 简报推送配置
type StreamConfig struct {
	// 是否启用 WebSocket 推送
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 每个订阅者的发送缓冲区
	SendBuffer int `yaml:"send_buffer" env:"SEND_BUFFER"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CHRONICLER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 启动期校验（INVALID_CONFIGURATION 在此为致命错误）
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 5. 运行附加验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 启动期校验
// =============================================================================

// Validate 验证配置。零或负的容量与预算、越界的 λ 等一律视为
// INVALID_CONFIGURATION：启动即失败，绝不进入回合循环。
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "server.http_port out of range")
	}

	if c.Pipeline.TokenBudget <= 0 {
		errs = append(errs, "pipeline.token_budget must be positive")
	}
	if c.Pipeline.MaxSnippets < 1 {
		errs = append(errs, "pipeline.max_snippets must be at least 1")
	}
	if c.Pipeline.MMRLambda < 0 || c.Pipeline.MMRLambda > 1 {
		errs = append(errs, "pipeline.mmr_lambda must be within [0,1]")
	}
	if c.Pipeline.RetrievalTopK < 1 {
		errs = append(errs, "pipeline.retrieval_top_k must be at least 1")
	}
	if c.Pipeline.RetrievalTimeout <= 0 {
		errs = append(errs, "pipeline.retrieval_timeout must be positive")
	}
	if c.Pipeline.MaxMemories < 0 {
		errs = append(errs, "pipeline.max_memories must not be negative")
	}

	if c.Memory.WorkingCapacity <= 0 {
		errs = append(errs, "memory.working_capacity must be positive")
	}
	if c.Memory.EpisodicCapacity <= 0 {
		errs = append(errs, "memory.episodic_capacity must be positive")
	}
	if c.Memory.SemanticCapacity <= 0 {
		errs = append(errs, "memory.semantic_capacity must be positive")
	}
	if c.Memory.EmotionalCapacity <= 0 {
		errs = append(errs, "memory.emotional_capacity must be positive")
	}
	if c.Memory.DecayHalfLifeTurns <= 0 {
		errs = append(errs, "memory.decay_half_life_turns must be positive")
	}
	if c.Memory.PromotionThreshold < 0 || c.Memory.PromotionThreshold > 1 {
		errs = append(errs, "memory.promotion_threshold must be within [0,1]")
	}
	if c.Memory.MergeSimilarity < 0 || c.Memory.MergeSimilarity > 1 {
		errs = append(errs, "memory.merge_similarity must be within [0,1]")
	}
	if c.Memory.ConsolidateEvery < 0 {
		errs = append(errs, "memory.consolidate_every must not be negative")
	}

	if c.Visibility.LastKnownHalfLifeTurns <= 0 {
		errs = append(errs, "visibility.last_known_half_life_turns must be positive")
	}
	if c.Visibility.ConfidenceFloor < 0 || c.Visibility.ConfidenceFloor >= 1 {
		errs = append(errs, "visibility.confidence_floor must be within [0,1)")
	}

	if c.Engine.Workers <= 0 {
		errs = append(errs, "engine.workers must be positive")
	}
	if c.Engine.QueueSize < 0 {
		errs = append(errs, "engine.queue_size must not be negative")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfiguration, strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
