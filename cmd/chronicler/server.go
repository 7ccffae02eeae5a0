package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/agent"
	"github.com/fableloom/chronicler/api/handlers"
	"github.com/fableloom/chronicler/archive"
	"github.com/fableloom/chronicler/brief"
	"github.com/fableloom/chronicler/config"
	"github.com/fableloom/chronicler/engine"
	"github.com/fableloom/chronicler/internal/cache"
	"github.com/fableloom/chronicler/internal/database"
	"github.com/fableloom/chronicler/internal/metrics"
	"github.com/fableloom/chronicler/internal/server"
	"github.com/fableloom/chronicler/internal/telemetry"
	"github.com/fableloom/chronicler/memory"
	"github.com/fableloom/chronicler/registry"
	"github.com/fableloom/chronicler/retrieval"
	"github.com/fableloom/chronicler/stream"
	"github.com/fableloom/chronicler/tokenizer"
	"github.com/fableloom/chronicler/types"
	"github.com/fableloom/chronicler/visibility"
	"github.com/fableloom/chronicler/world"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Chronicler 的主服务器
type Server struct {
	cfg          *config.Config
	scenarioPath string
	logger       *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 回合引擎与可选外围
	engine  *engine.Engine
	hub     *stream.Hub
	archive archive.Archive

	// 持久化
	pool *database.PoolManager

	// Handlers
	healthHandler *handlers.HealthHandler
	turnsHandler  *handlers.TurnsHandler
	briefsHandler *handlers.BriefsHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, scenarioPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:          cfg,
		scenarioPath: scenarioPath,
		logger:       logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("chronicler", s.logger)

	// 2. 初始化遥测
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otelProviders = providers

	// 3. 组装管线与引擎
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("stream_enabled", s.hub != nil),
		zap.Bool("archive_enabled", s.archive != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 从场景文件构建整条装配管线：世界状态、溯源注册表、
// 检索链、Agent 阵容、回合引擎，以及归档、推送、持久化这些可选外围。
func (s *Server) initPipeline() error {
	ctx := context.Background()

	// 场景：整体加载，失败即拒绝启动
	sc, err := world.LoadScenario(s.scenarioPath)
	if err != nil {
		return err
	}
	state := sc.BuildState()

	// 溯源注册表
	sources := make([]registry.Source, 0, len(sc.Sources))
	for _, src := range sc.Sources {
		sources = append(sources, registry.Source{
			ID:      src.ID,
			Version: src.Version,
			Title:   src.Title,
			Trust:   src.Trust,
		})
	}
	reg, err := registry.NewStatic(sources...)
	if err != nil {
		return err
	}

	// 检索链：Cached → Verified → RateLimited → 索引后端
	cacheBackend, err := s.initCacheBackend()
	if err != nil {
		return err
	}
	seeds := make([]types.KnowledgeSnippet, 0, len(sc.Snippets))
	for _, sn := range sc.Snippets {
		seeds = append(seeds, sn.Snippet())
	}
	retriever, err := retrieval.NewRetrieverFromConfig(s.cfg, reg, cacheBackend, seeds, s.logger)
	if err != nil {
		return err
	}

	// Token 计数
	tok, err := tokenizer.New(s.cfg.Tokenizer.Backend, s.cfg.Tokenizer.Encoding)
	if err != nil {
		return err
	}
	counter := tokenizer.NewCounterAdapter(tok, s.logger)

	// 装配管线
	filter := visibility.NewFilter(s.cfg.Visibility, s.logger)
	enforcer, err := brief.NewBudgetEnforcer(counter, s.cfg.Pipeline.SummaryMaxChars, s.logger)
	if err != nil {
		return err
	}
	assembler, err := brief.NewAssembler(
		s.cfg.Pipeline,
		filter,
		retriever,
		retrieval.NewDiversityPruner(s.logger),
		memory.NewQueryEngine(s.logger),
		enforcer,
		s.logger,
	)
	if err != nil {
		return err
	}

	// 持久化：快照存储 + 回合记录
	var snapshots *memory.SnapshotStore
	var recorder *engine.TurnRecorder
	if s.cfg.Database.Enabled {
		db, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), s.logger)
		if err != nil {
			return err
		}
		// AutoMigrate 兜底建表；正式环境用 chronicler migrate up 管理 schema
		if err := db.AutoMigrate(&memory.MemoryRecord{}, &engine.TurnRecord{}); err != nil {
			s.logger.Error("database auto-migrate failed", zap.Error(err))
		}
		pm, err := database.NewPoolManager(db, database.PoolConfig{
			MaxIdleConns:    s.cfg.Database.MaxIdleConns,
			MaxOpenConns:    s.cfg.Database.MaxOpenConns,
			ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
		}, s.logger)
		if err != nil {
			return err
		}
		s.pool = pm
		if snapshots, err = memory.NewSnapshotStore(pm, s.logger); err != nil {
			return err
		}
		if recorder, err = engine.NewTurnRecorder(pm, s.logger); err != nil {
			return err
		}
	}

	// Agent 阵容：场景声明 + 可选的快照恢复
	agents := make([]*agent.Agent, 0, len(sc.Agents))
	for _, spec := range sc.Agents {
		a, err := agent.FromSpec(spec, state, s.cfg.Memory, s.logger)
		if err != nil {
			return err
		}
		if snapshots != nil {
			items, err := snapshots.LoadSnapshot(ctx, a.ID)
			if err != nil {
				s.logger.Warn("memory snapshot restore failed",
					zap.String("agent_id", a.ID), zap.Error(err))
			} else if len(items) > 0 {
				a.Memory.Restore(items)
				s.logger.Info("memory restored from snapshot",
					zap.String("agent_id", a.ID), zap.Int("items", len(items)))
			}
		}
		agents = append(agents, a)
	}
	roster, err := agent.NewRoster(agents...)
	if err != nil {
		return err
	}

	// 归档与推送
	arch, err := archive.NewFromConfig(ctx, s.cfg.Archive, s.logger)
	if err != nil {
		return err
	}
	s.archive = arch
	if s.cfg.Stream.Enabled {
		s.hub = stream.NewHub(s.cfg.Stream, s.metricsCollector, s.logger)
	}

	// 回合引擎
	opts := engine.Options{
		Archive:          s.archive,
		Snapshots:        snapshots,
		Recorder:         recorder,
		Collector:        s.metricsCollector,
		Scenario:         sc.Name,
		ConsolidateEvery: s.cfg.Memory.ConsolidateEvery,
	}
	if s.hub != nil {
		opts.Publisher = s.hub
	}
	eng, err := engine.New(s.cfg.Engine, assembler, filter, roster, opts, s.logger)
	if err != nil {
		return err
	}
	s.engine = eng

	// Handlers
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", s.pool.Ping))
	}
	if r, ok := cacheBackend.(*cache.Redis); ok {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("cache", r.Ping))
	}
	if s.turnsHandler, err = handlers.NewTurnsHandler(eng, state, s.logger); err != nil {
		return err
	}
	s.briefsHandler = handlers.NewBriefsHandler(s.archive, s.logger)

	s.logger.Info("Pipeline initialized",
		zap.String("scenario", sc.Name),
		zap.Int("agents", roster.Len()),
		zap.Int("seed_snippets", len(seeds)),
		zap.Bool("persistence", s.pool != nil),
	)
	return nil
}

// initCacheBackend 按配置构建检索缓存后端，未启用时返回 nil。
func (s *Server) initCacheBackend() (cache.Cache, error) {
	if !s.cfg.Cache.Enabled {
		return nil, nil
	}
	switch s.cfg.Cache.Backend {
	case "", "memory":
		return cache.NewLRU(cache.LRUConfig{
			MaxEntries: s.cfg.Cache.MaxEntries,
			DefaultTTL: s.cfg.Cache.TTL,
		}), nil
	case "redis":
		return cache.NewRedis(cache.RedisConfig{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Cache.TTL,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", s.cfg.Cache.Backend)
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("POST /v1/turns", s.turnsHandler.HandleRunTurns)
	mux.HandleFunc("GET /v1/briefs/{agent_id}", s.briefsHandler.HandleGetBrief)
	mux.HandleFunc("GET /v1/turns/{turn_id}/briefs", s.briefsHandler.HandleListTurn)

	if s.hub != nil {
		mux.Handle("GET /v1/stream", stream.Handler(s.hub, s.logger))
		s.logger.Info("Stream endpoint registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，先停外部流量
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭回合引擎（排空工作池）
	if s.engine != nil {
		s.engine.Close()
	}

	// 3. 关闭推送 Hub，踢掉所有订阅者
	if s.hub != nil {
		s.hub.Close()
	}

	// 4. 关闭归档后端（Mongo 持有连接）
	if closer, ok := s.archive.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			s.logger.Error("Archive shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭数据库连接池
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 7. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 8. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
