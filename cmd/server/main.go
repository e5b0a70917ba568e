package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/chat-bridge/internal/attachment"
	"github.com/lk2023060901/chat-bridge/internal/backup"
	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	chatdata "github.com/lk2023060901/chat-bridge/internal/chat/data"
	"github.com/lk2023060901/chat-bridge/internal/chat/service"
	"github.com/lk2023060901/chat-bridge/internal/chat/tokenizer"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/data"
	"github.com/lk2023060901/chat-bridge/internal/guardrail"
	"github.com/lk2023060901/chat-bridge/internal/notify"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/sse"
	"github.com/lk2023060901/chat-bridge/internal/proxy/openai"
	"github.com/lk2023060901/chat-bridge/internal/proxy/registry"
	"github.com/lk2023060901/chat-bridge/internal/proxy/retry"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
	"github.com/lk2023060901/chat-bridge/internal/server"
	"github.com/lk2023060901/chat-bridge/internal/tooling"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Proxy transport
	proxyCfg := &proxytypes.Config{
		BaseURL: config.Proxy.BaseURL,
		APIKey:  config.Proxy.APIKey,
		Model:   config.Proxy.Model,
		Timeout: config.Proxy.Timeout,
	}
	transport, err := openai.New(proxyCfg)
	if err != nil {
		log.Fatal("failed to create proxy client", zap.Error(err))
	}
	defer transport.Close()

	// Collaborators
	repo := chatdata.NewSessionRepo(d.DB, d.Queue, log)
	executor := tooling.NewCommandExecutor(config.Tools, log)

	var guard biz.Guardrail
	if config.Agent.Guardrail.Enabled {
		g, err := guardrail.NewClient(config.Agent.Guardrail)
		if err != nil {
			log.Fatal("failed to create guardrail client", zap.Error(err))
		}
		guard = g
	}

	var notifier biz.Notifier
	if config.Notify.Enabled {
		switch config.Notify.Backend {
		case "email":
			n, err := notify.NewEmailNotifier(&config.Notify.Email, log)
			if err != nil {
				log.Fatal("failed to create email notifier", zap.Error(err))
			}
			notifier = n
		default:
			notifier = notify.NewLogNotifier(log)
		}
	}

	var exporter biz.Exporter
	if config.Backup.Enabled {
		e, err := backup.NewExporter(context.Background(), config.Backup, log)
		if err != nil {
			log.Fatal("failed to create backup exporter", zap.Error(err))
		}
		exporter = e
	}

	hub := sse.NewHub()
	publisher := service.NewHubPublisher(hub)
	policy := retry.New(config.Retry.MaxRetries, config.Retry.Delay, log)
	estimator := tokenizer.New("")

	// Use case and HTTP surface
	chatUseCase := biz.NewChatUseCase(
		repo,
		transport,
		executor,
		guard,
		notifier,
		publisher,
		exporter,
		policy,
		estimator,
		config,
		log,
	)

	processor := attachment.NewProcessor(config.Attachment, log)
	models := registry.New(config.Registry.TTL, log)
	chatService := service.NewChatService(chatUseCase, processor, hub, models, proxyCfg, log)

	httpServer := server.NewHTTPServer(config, log, d.DB, chatService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
