package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/consult-sh/consult"
	"github.com/consult-sh/consult/api/handlers"
	"github.com/consult-sh/consult/config"
	"github.com/consult-sh/consult/feedback"
	"github.com/consult-sh/consult/internal/cache"
	"github.com/consult-sh/consult/internal/database"
	"github.com/consult-sh/consult/internal/metrics"
	"github.com/consult-sh/consult/internal/server"
	"github.com/consult-sh/consult/internal/telemetry"
	"github.com/consult-sh/consult/providers/ollama"
	"github.com/consult-sh/consult/registry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是咨询服务的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心服务
	service      *consult.Service
	store        feedback.Store
	cacheManager *cache.Manager
	generator    *ollama.Client
	dbPool       *database.PoolManager

	// Handlers
	healthHandler   *handlers.HealthHandler
	consultHandler  *handlers.ConsultHandler
	feedbackHandler *handlers.FeedbackHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 专家表热更新
	watcher *config.FileWatcher

	// 遥测
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, dbPool *database.PoolManager) *Server {
	return &Server{
		cfg:           cfg,
		configPath:    configPath,
		logger:        logger,
		otelProviders: otelProviders,
		dbPool:        dbPool,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("consult", s.logger)

	// 2. 初始化咨询服务
	if err := s.initService(); err != nil {
		return fmt.Errorf("failed to init consultation service: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 初始化专家表热更新
	if err := s.initWatcher(); err != nil {
		return fmt.Errorf("failed to init expert table watcher: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("expert_table_reload", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initService 组装咨询服务：生成端点、专家表、反馈日志和可选缓存
func (s *Server) initService() error {
	// 生成端点
	s.generator = ollama.NewClient(ollama.Config{BaseURL: s.cfg.Ollama.BaseURL}, s.logger)

	// 反馈日志：数据库不可用时降级为内存存储
	if s.dbPool != nil {
		store, err := feedback.NewGormStore(s.dbPool.DB(), s.logger)
		if err != nil {
			s.logger.Warn("feedback store migration failed, using in-memory store", zap.Error(err))
			s.store = feedback.NewMemoryStore()
		} else {
			s.store = store
		}
	} else {
		s.logger.Warn("database not available, feedback will not survive restarts")
		s.store = feedback.NewMemoryStore()
	}

	// 专家表：配置覆盖内置表
	reg, err := buildRegistry(s.cfg)
	if err != nil {
		return err
	}

	// 响应缓存（可选）
	if s.cfg.Cache.Enabled {
		manager, err := cache.NewManager(cacheConfig(s.cfg.Cache), s.logger)
		if err != nil {
			s.logger.Warn("response cache unavailable, continuing without cache", zap.Error(err))
		} else {
			s.cacheManager = manager
		}
	}

	opts := []consult.Option{
		consult.WithMetrics(s.metricsCollector),
		consult.WithLimits(s.cfg.Dispatch.MaxConcurrent, s.cfg.Dispatch.MaxExperts),
	}
	if s.cacheManager != nil {
		opts = append(opts, consult.WithCache(s.cacheManager))
	}

	s.service = consult.NewService(reg, s.generator, s.store, s.logger, opts...)

	s.logger.Info("Consultation service initialized",
		zap.Int("experts", reg.Len()),
		zap.Bool("cache_enabled", s.cacheManager != nil),
	)
	return nil
}

// buildRegistry 从配置构建专家注册表；未覆盖时使用内置 19 个专家
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	experts := cfg.ExpertConfigs()
	if experts == nil {
		return registry.Default(), nil
	}
	return registry.New(experts, cfg.Keywords)
}

// cacheConfig 将加载器配置转换为缓存管理器配置
func cacheConfig(c config.CacheConfig) cache.Config {
	out := cache.DefaultConfig()
	out.Enabled = c.Enabled
	if c.Addr != "" {
		out.Addr = c.Addr
	}
	out.Password = c.Password
	out.DB = c.DB
	if c.TTL > 0 {
		out.TTL = c.TTL
	}
	if c.PoolSize > 0 {
		out.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		out.MinIdleConns = c.MinIdleConns
	}
	if c.MaxRetries > 0 {
		out.MaxRetries = c.MaxRetries
	}
	return out
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.consultHandler = handlers.NewConsultHandler(s.service, s.logger)
	s.feedbackHandler = handlers.NewFeedbackHandler(s.store, s.metricsCollector, s.logger)

	// 就绪检查探针
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("ollama", func(ctx context.Context) error {
		_, err := s.generator.HealthCheck(ctx)
		return err
	}))
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.dbPool.Ping))
	}
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cacheManager.Ping))
	}

	s.logger.Info("Handlers initialized")
}

// initWatcher 监视配置文件变更并热替换专家表。
// 热替换只影响后续咨询；进行中的咨询继续使用其启动时的快照。
func (s *Server) initWatcher() error {
	if s.configPath == "" {
		return nil
	}

	watcher, err := config.NewFileWatcher([]string{s.configPath},
		config.WithWatcherLogger(s.logger),
	)
	if err != nil {
		return err
	}

	watcher.OnChange(func(event config.FileEvent) {
		s.logger.Info("Config file changed, rebuilding expert table",
			zap.String("path", event.Path),
			zap.String("op", event.Op.String()),
		)
		cfg, err := config.NewLoader().WithConfigPath(s.configPath).Load()
		if err != nil {
			s.logger.Error("Config reload failed, keeping current expert table", zap.Error(err))
			return
		}
		reg, err := buildRegistry(cfg)
		if err != nil {
			s.logger.Error("Expert table rebuild failed, keeping current expert table", zap.Error(err))
			return
		}
		s.service.ReloadRegistry(reg)
	})

	if err := watcher.Start(context.Background()); err != nil {
		return err
	}

	s.watcher = watcher
	return nil
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
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 咨询 API
	// ========================================
	mux.HandleFunc("POST /api/v1/consult", s.consultHandler.HandleConsult)
	mux.HandleFunc("POST /api/v1/consult/{expert}", s.consultHandler.HandleConsultExpert)
	mux.HandleFunc("GET /api/v1/experts", s.consultHandler.HandleListExperts)
	mux.HandleFunc("GET /api/v1/domains", s.consultHandler.HandleListDomains)
	mux.HandleFunc("GET /api/v1/domains/{domain}", s.consultHandler.HandleExpertsByDomain)

	// ========================================
	// 反馈 API
	// ========================================
	mux.HandleFunc("POST /api/v1/feedback/{queryID}", s.feedbackHandler.HandleUpdate)
	mux.HandleFunc("GET /api/v1/feedback/stats", s.feedbackHandler.HandleStats)
	mux.HandleFunc("GET /api/v1/feedback/recent", s.feedbackHandler.HandleRecent)
	mux.HandleFunc("GET /api/v1/feedback/patterns", s.feedbackHandler.HandlePatterns)

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
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// 写入超时必须覆盖最慢专家（180s）的同步等待
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

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
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
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

	// 1. 停止专家表监视器
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("Expert table watcher shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭遥测
	if s.otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		cancel()
	}

	// 5. 关闭缓存连接
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭反馈数据库连接池
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
