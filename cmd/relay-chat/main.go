package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay-chat/internal/agent"
	anthropicmodel "relay-chat/internal/agent/anthropic"
	openaimodel "relay-chat/internal/agent/openai"
	"relay-chat/internal/config"
	"relay-chat/internal/history"
	"relay-chat/internal/logger"
	"relay-chat/internal/server"
	"relay-chat/internal/task"
	"relay-chat/internal/tools"
)

var log = logger.Named("main")

func main() {
	logger.Configure()
	if logFile, _, err := logger.SetupFile(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}
	if toolsCloser, _, err := tools.SetupToolsLog(tools.DefaultToolsLogPath); err != nil {
		log.Warnf("failed to initialize tools log (%s): %v", tools.DefaultToolsLogPath, err)
	} else if toolsCloser != nil {
		defer toolsCloser.Close()
	}

	fs := flag.NewFlagSet("relay-chat", flag.ExitOnError)
	var cfgPath string
	var addr string
	var overrides stringSlice
	var ping bool
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.relay-chat/config.toml)")
	fs.StringVar(&addr, "addr", "", "Listen address override")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	fs.BoolVar(&ping, "ping", false, "Probe the engine endpoint and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg = config.ApplyKVOverrides(cfg, overrides)
	if strings.TrimSpace(addr) != "" {
		cfg.Addr = addr
	}

	// 首次运行时落一份模板配置，不包含环境变量带来的密钥。
	if cfg.Source != "" {
		if _, statErr := os.Stat(cfg.Source); errors.Is(statErr, os.ErrNotExist) {
			if err := config.Save(cfg.Source, config.Default()); err != nil {
				log.Warnf("failed to write default config %s: %v", cfg.Source, err)
			}
		}
	}

	if ping {
		runPing(cfg)
		return
	}

	client := buildModelClient(cfg)

	historyDir := strings.TrimSpace(cfg.History.Dir)
	var hist *history.Store
	if historyDir == "" {
		hist, err = history.NewDefault()
		if err != nil {
			log.Fatalf("failed to resolve history dir: %v", err)
		}
	} else {
		hist = &history.Store{Dir: historyDir}
	}

	reg := task.NewRegistry()
	broker := task.NewBroker(reg)
	toolRegistry := tools.NewRegistry(
		&tools.WebSearchTool{APIKey: cfg.Search.APIKey, BaseURL: cfg.Search.BaseURL},
		&tools.ExecutePythonTool{Timeout: time.Duration(cfg.Python.TimeoutSeconds) * time.Second},
	)
	runner := &task.Runner{
		Client:        client,
		Model:         cfg.Engine.Model,
		Tools:         toolRegistry,
		Sink:          hist,
		Broker:        broker,
		Registry:      reg,
		MaxIterations: cfg.Tasks.MaxIterations,
		Heartbeat:     time.Duration(cfg.Tasks.HeartbeatSeconds) * time.Second,
		Retention:     time.Duration(cfg.Tasks.RetentionMinutes) * time.Minute,
	}
	srv := &server.Server{
		Runner:   runner,
		Broker:   broker,
		Registry: reg,
		History:  hist,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, cfg.Addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
	log.Info("shutdown complete")
}

// runPing 验证引擎端点是否可用。OpenAI 兼容端点会发一条最小请求，
// 其他提供方只做 TCP 可达性检查。
func runPing(cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if strings.EqualFold(strings.TrimSpace(cfg.Engine.Provider), "anthropic") {
		if err := openaimodel.CheckBaseURLReachable(ctx, cfg.Engine.BaseURL); err != nil {
			log.Fatalf("ping failed: %v", err)
		}
		fmt.Println("ok")
		return
	}
	text, err := openaimodel.CheckChatEndpoint(ctx, cfg.Engine.BaseURL, cfg.Engine.APIKey, cfg.Engine.Model)
	if err != nil {
		log.Fatalf("ping failed: %v", err)
	}
	fmt.Println(text)
}

func buildModelClient(cfg config.Config) agent.ModelClient {
	token := strings.TrimSpace(cfg.Engine.APIKey)
	if token == "" {
		log.Warnf("no engine api key configured; falling back to echo mode")
		return agent.EchoClient{Prefix: "assistant: "}
	}

	if base := strings.TrimSpace(cfg.Engine.BaseURL); base != "" {
		checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := openaimodel.CheckBaseURLReachable(checkCtx, base); err != nil {
			log.Warnf("engine base_url check: %v", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Engine.Provider)) {
	case "anthropic":
		client, err := anthropicmodel.New(anthropicmodel.Options{
			Token:   token,
			BaseURL: cfg.Engine.BaseURL,
			Model:   cfg.Engine.Model,
		})
		if err != nil {
			log.Fatalf("failed to init anthropic client: %v", err)
		}
		return client
	case "", "openai":
		client, err := openaimodel.New(openaimodel.Options{
			APIKey:  token,
			BaseURL: cfg.Engine.BaseURL,
			Model:   cfg.Engine.Model,
		})
		if err != nil {
			log.Fatalf("failed to init openai client: %v", err)
		}
		return client
	default:
		log.Fatalf("unknown engine provider %q (use openai or anthropic)", cfg.Engine.Provider)
		return nil
	}
}
