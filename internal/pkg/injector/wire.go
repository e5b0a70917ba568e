//go:build wireinject
// +build wireinject

package injector

import (
	"context"

	"github.com/google/wire"
	"github.com/lk2023060901/chat-bridge/internal/attachment"
	"github.com/lk2023060901/chat-bridge/internal/backup"
	"github.com/lk2023060901/chat-bridge/internal/chat/biz"
	chatdata "github.com/lk2023060901/chat-bridge/internal/chat/data"
	chatservice "github.com/lk2023060901/chat-bridge/internal/chat/service"
	"github.com/lk2023060901/chat-bridge/internal/chat/tokenizer"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/data"
	"github.com/lk2023060901/chat-bridge/internal/guardrail"
	"github.com/lk2023060901/chat-bridge/internal/notify"
	"github.com/lk2023060901/chat-bridge/internal/pkg/database"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/sse"
	"github.com/lk2023060901/chat-bridge/internal/proxy/openai"
	"github.com/lk2023060901/chat-bridge/internal/proxy/registry"
	"github.com/lk2023060901/chat-bridge/internal/proxy/retry"
	proxytypes "github.com/lk2023060901/chat-bridge/internal/proxy/types"
	"github.com/lk2023060901/chat-bridge/internal/server"
	"github.com/lk2023060901/chat-bridge/internal/tooling"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Proxy transport
	proxyProviderSet,

	// Turn collaborators
	collaboratorProviderSet,

	// Use cases
	biz.NewChatUseCase,

	// HTTP services
	chatservice.NewChatService,

	// Servers
	server.NewHTTPServer,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	data.NewData,
	provideDB,
	provideSessionRepo,
)

// Proxy providers
var proxyProviderSet = wire.NewSet(
	provideProxyConfig,
	provideTransport,
	provideRetryPolicy,
	provideRegistry,
)

// Collaborator providers
var collaboratorProviderSet = wire.NewSet(
	provideExecutor,
	provideGuardrail,
	provideNotifier,
	provideExporter,
	sse.NewHub,
	providePublisher,
	provideEstimator,
	provideProcessor,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}

// Provider functions

func provideDB(d *data.Data) *database.DB {
	return d.DB
}

func provideSessionRepo(d *data.Data, log *logger.Logger) biz.SessionRepo {
	return chatdata.NewSessionRepo(d.DB, d.Queue, log)
}

func provideProxyConfig(config *conf.Config) *proxytypes.Config {
	return &proxytypes.Config{
		BaseURL: config.Proxy.BaseURL,
		APIKey:  config.Proxy.APIKey,
		Model:   config.Proxy.Model,
		Timeout: config.Proxy.Timeout,
	}
}

func provideTransport(proxyCfg *proxytypes.Config) (biz.Transport, func(), error) {
	client, err := openai.New(proxyCfg)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Close() }, nil
}

func provideRetryPolicy(config *conf.Config, log *logger.Logger) *retry.Policy {
	return retry.New(config.Retry.MaxRetries, config.Retry.Delay, log)
}

func provideRegistry(config *conf.Config, log *logger.Logger) *registry.Registry {
	return registry.New(config.Registry.TTL, log)
}

func provideExecutor(config *conf.Config, log *logger.Logger) biz.ToolExecutor {
	return tooling.NewCommandExecutor(config.Tools, log)
}

func provideGuardrail(config *conf.Config) (biz.Guardrail, error) {
	if !config.Agent.Guardrail.Enabled {
		return nil, nil
	}
	return guardrail.NewClient(config.Agent.Guardrail)
}

func provideNotifier(config *conf.Config, log *logger.Logger) (biz.Notifier, error) {
	if !config.Notify.Enabled {
		return nil, nil
	}
	if config.Notify.Backend == "email" {
		return notify.NewEmailNotifier(&config.Notify.Email, log)
	}
	return notify.NewLogNotifier(log), nil
}

func provideExporter(config *conf.Config, log *logger.Logger) (biz.Exporter, error) {
	if !config.Backup.Enabled {
		return nil, nil
	}
	return backup.NewExporter(context.Background(), config.Backup, log)
}

func providePublisher(hub *sse.Hub) biz.Publisher {
	return chatservice.NewHubPublisher(hub)
}

func provideEstimator() *tokenizer.Estimator {
	return tokenizer.New("")
}

func provideProcessor(config *conf.Config, log *logger.Logger) *attachment.Processor {
	return attachment.NewProcessor(config.Attachment, log)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
) (*App, func()) {
	cleanup := func() {}

	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		cleanup:    cleanup,
	}, cleanup
}
