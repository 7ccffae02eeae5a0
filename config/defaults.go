// =============================================================================
// 📦 Chronicler 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Memory:     DefaultMemoryConfig(),
		Visibility: DefaultVisibilityConfig(),
		Engine:     DefaultEngineConfig(),
		Tokenizer:  DefaultTokenizerConfig(),
		Index:      DefaultIndexConfig(),
		Cache:      DefaultCacheConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Archive:    DefaultArchiveConfig(),
		Stream:     DefaultStreamConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TokenBudget:      2500,
		MaxSnippets:      8,
		MMRLambda:        0.7,
		RetrievalTopK:    24,
		RetrievalTimeout: 2 * time.Second,
		MaxMemories:      10,
		SummaryMaxChars:  120,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		WorkingCapacity:    7,
		EpisodicCapacity:   1000,
		SemanticCapacity:   5000,
		EmotionalCapacity:  500,
		DecayHalfLifeTurns: 20,
		PromotionThreshold: 0.6,
		MergeSimilarity:    0.9,
		ConsolidateEvery:   5,
	}
}

// DefaultVisibilityConfig 返回默认可见性配置
func DefaultVisibilityConfig() VisibilityConfig {
	return VisibilityConfig{
		LastKnownHalfLifeTurns: 4,
		ConfidenceFloor:        0.05,
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:       8,
		QueueSize:     64,
		CommitTimeout: 10 * time.Second,
	}
}

// DefaultTokenizerConfig 返回默认 Token 计数配置
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		Backend:  "estimator",
		Encoding: "cl100k_base",
	}
}

// DefaultIndexConfig 返回默认索引配置
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Backend:        "memory",
		BaseURL:        "",
		RateLimitQPS:   50,
		RateLimitBurst: 100,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		Backend:    "memory",
		MaxEntries: 1024,
		TTL:        2 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "chronicler",
		Password:        "",
		Name:            "chronicler.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultArchiveConfig 返回默认归档配置
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:    true,
		Backend:    "memory",
		URI:        "mongodb://localhost:27017",
		Database:   "chronicler",
		Collection: "briefs",
		Timeout:    5 * time.Second,
	}
}

// DefaultStreamConfig 返回默认推送配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:    true,
		SendBuffer: 16,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "chronicler",
		SampleRate:   0.1,
	}
}
