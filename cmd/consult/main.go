// =============================================================================
// Consult 主入口
// =============================================================================
// 多专家咨询服务入口点，包含 HTTP 服务、本地 CLI 咨询、健康检查、Prometheus 指标
//
// 使用方法:
//
//	consult serve                        # 启动服务
//	consult serve --config config.yaml   # 指定配置文件
//	consult ask "question"               # 本地咨询（不经过 HTTP 服务）
//	consult experts                      # 列出专家表
//	consult feedback <query-id> [...]    # 记录咨询反馈
//	consult stats                        # 专家评分统计
//	consult recent                       # 最近的咨询记录
//	consult patterns                     # 反馈模式分析
//	consult health                       # 健康检查
//	consult version                      # 显示版本信息
// =============================================================================

// @title Consult API
// @version 1.0.0
// @description Consult fans a question out to a panel of specialist experts in parallel and synthesizes their responses into themes, conflicts, and prioritized actions.
// @description
// @description ## Features
// @description - Keyword-routed expert panel selection across six domains
// @description - Bounded-concurrency fan-out with per-expert timeouts
// @description - Heuristic cross-expert synthesis (themes, conflicts, consensus score)
// @description - Feedback journal with expert rating aggregates

// @contact.name Consult Team
// @contact.url https://github.com/consult-sh/consult

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8765
// @BasePath /
// @schemes http

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/consult-sh/consult/config"
	"github.com/consult-sh/consult/internal/database"
	"github.com/consult-sh/consult/internal/telemetry"
	"github.com/consult-sh/consult/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "ask":
		runAsk(os.Args[2:])
	case "experts":
		runExperts(os.Args[2:])
	case "feedback":
		runFeedback(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "recent":
		runRecent(os.Args[2:])
	case "patterns":
		runPatterns(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting consult",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 初始化反馈数据库
	pool, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Warn("Database not available, feedback falls back to memory", zap.Error(err))
	}

	// 创建服务器（传入配置文件路径以支持专家表热更新）
	server := NewServer(cfg, *configPath, logger, otelProviders, pool)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	server.WaitForShutdown()

	logger.Info("consult stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8765", "Server address")
	fs.Parse(args)

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("consult %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`consult - multi-expert consultation engine

Usage:
  consult <command> [options]

Commands:
  serve     Start the consultation server
  ask       Consult the expert panel locally
  experts   List the expert table
  feedback  Record feedback for a past consultation
  stats     Show expert rating statistics
  recent    Show recent consultations
  patterns  Analyze feedback patterns
  health    Check server health
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'ask':
  --config <path>        Path to configuration file (YAML)
  --experts <id,id,...>  Query an explicit expert panel
  --domains <d,d,...>    Restrict routing to the given domains
  --all                  Query every expert in the table
  --max-experts <n>      Panel size cap for keyword routing
  --max-concurrent <n>   In-flight expert call cap
  --synthesize           Synthesize responses into themes, conflicts and actions
  --json                 Print the consultation as JSON

Options for 'feedback':
  --helpful / --not-helpful   Rate the synthesis
  --best <expert-id>          Mark the most useful expert
  --worst <expert-id>         Mark the least useful expert
  --action <text>             Record the action you took
  --notes <text>              Free-form notes

Examples:
  consult serve --config /etc/consult/config.yaml
  consult ask --synthesize "Should I use index funds or managed funds?"
  consult ask --all --json "What am I missing?"
  consult ask --experts business-tax-2026,passive-income-expert "How do I structure this?"
  consult feedback a1b2c3d4e5f6 --helpful --best passive-income-expert
  consult health --addr http://localhost:8765`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	// 构建 logger
	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// openDatabase 根据配置打开反馈数据库连接并配置连接池
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*database.PoolManager, error) {
	var dialector gorm.Dialector
	poolCfg := database.DefaultPoolConfig()
	switch dbCfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(dbCfg.Path)
		poolCfg = database.SQLitePoolConfig()
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return database.NewPoolManager(db, poolCfg, logger)
}
