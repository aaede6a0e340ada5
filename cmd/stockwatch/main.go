package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stockwatch/internal/config"
	"stockwatch/internal/logger"
)

const usage = `stockwatch <command> [flags]

commands:
  analyze    计算指标、信号与逐日决策
  backtest   回测并输出绩效，可保存记录与生成 HTML 报告
  batch      并发评估多个 CSV 文件
  import     将 CSV 行情导入行情库
  serve      启动 HTTP API

全局配置文件由 -config 或环境变量 STOCKWATCH_CONFIG 指定。`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("stockwatch: %v", err)
	}
}

type command func(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error

var commands = map[string]command{
	"analyze":  cmdAnalyze,
	"backtest": cmdBacktest,
	"batch":    cmdBatch,
	"import":   cmdImport,
	"serve":    cmdServe,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprintln(stderr, usage)
		return flag.ErrHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	cfgPath, rest := splitConfigFlag(args[1:])
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	logger.SetOutput(stderr)
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return cmd(ctx, cfg, rest, stdout)
}

// splitConfigFlag 取出 -config，其余参数交给子命令。
func splitConfigFlag(args []string) (string, []string) {
	path := os.Getenv("STOCKWATCH_CONFIG")
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "-config="), strings.HasPrefix(a, "--config="):
			path = a[strings.Index(a, "=")+1:]
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
