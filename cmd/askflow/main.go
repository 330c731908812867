// =============================================================================
// AskFlow 命令行入口
// =============================================================================
// 使用方法:
//
//	askflow run --query "查询订单接口说明"           # 运行新任务
//	askflow run --task t1 --query "查询订单接口说明" # 有检查点则续跑，否则新建
//	askflow resume --task t1                         # 从检查点续跑
//	askflow trace --task t1                          # 输出执行轨迹
//	askflow batch --workers 4 queries.txt            # 并发批量运行
//	askflow migrate up                               # 应用检查点表迁移
//	askflow version                                  # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/askflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码。任务以 fail 阶段结束时同样返回 exitError。
const (
	exitOK           = 0
	exitError        = 1
	exitUsage        = 2
	exitNoCheckpoint = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 分发子命令并返回退出码
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout, stderr)
	case "resume":
		return resumeCommand(ctx, args[1:], stdout, stderr)
	case "trace":
		return traceCommand(ctx, args[1:], stdout, stderr)
	case "batch":
		return batchCommand(ctx, args[1:], stdin, stdout, stderr)
	case "migrate":
		return migrateCommand(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "AskFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `AskFlow - critic-driven retrieval QA pipeline

Usage:
  askflow <command> [options]

Commands:
  run       Run a task for a query
  resume    Resume a task from its latest checkpoint
  trace     Print the execution trace of a task
  batch     Run one task per input line concurrently
  migrate   Manage the checkpoint table schema (up, down, status, version)
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --query <text>    User query (required)
  --task <id>       Reuse a task id; resumes when a checkpoint exists
  --json            Print the final state as JSON

Options for 'resume' and 'trace':
  --task <id>       Task id (required)

Options for 'batch':
  --workers <n>     Concurrent tasks (default 4)

Exit codes:
  0  task passed
  1  task ended in the fail stage, or a runtime error
  2  usage error
  3  no checkpoint (resume, trace)

Examples:
  askflow run --query "查询订单接口说明"
  askflow run --config /etc/askflow/config.yaml --json --query "订单详情页面布局"
  askflow resume --task 3f2a9c1e-...
  askflow batch --workers 8 queries.txt`)
}

// =============================================================================
// 🔧 配置与日志
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
