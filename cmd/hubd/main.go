// Command hubd is the hub's process entry point: it constructs the one
// Agent Registry, Secret Store, Permission Store, Session Manager, and
// zero-or-more Gateways, then starts each configured Gateway (spec §2
// "Process wiring lives in cmd/hubd").
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hybridchat/hub/pkg/agent"
	"github.com/hybridchat/hub/pkg/config"
	"github.com/hybridchat/hub/pkg/gateway/console"
	"github.com/hybridchat/hub/pkg/gateway/dingtalk"
	"github.com/hybridchat/hub/pkg/gateway/discord"
	"github.com/hybridchat/hub/pkg/gateway/lark"
	"github.com/hybridchat/hub/pkg/gateway/qq"
	"github.com/hybridchat/hub/pkg/gateway/slack"
	"github.com/hybridchat/hub/pkg/gateway/telegram"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/metrics"
	"github.com/hybridchat/hub/pkg/permission"
	"github.com/hybridchat/hub/pkg/providers"
	"github.com/hybridchat/hub/pkg/reqchannel"
	"github.com/hybridchat/hub/pkg/secretstore"
	"github.com/hybridchat/hub/pkg/selector"
	"github.com/hybridchat/hub/pkg/session"
	"github.com/hybridchat/hub/pkg/tools"
)

// toolSymbols is the small in-process symbol table agent registry records'
// tool_refs resolve against (spec §4.1d); Go has no runtime dynamic import,
// so this stands in for the source's importlib-based rebind.
func toolSymbols() map[string]agent.ToolFactory {
	return map[string]agent.ToolFactory{
		"tools.think":   func() tools.Tool { return tools.NewThinkTool() },
		"tools.respond": func() tools.Tool { return tools.NewRespondTool() },
	}
}

func main() {
	logger.Configure(os.Stderr, logger.LevelInfo, false)

	cfg, err := config.Load()
	if err != nil {
		logger.ErrorCF("hubd", "failed to load config", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	llmProviders, selectorProvider := buildProviders(cfg)

	tracker := metrics.NewTracker(cfg.DataDir)

	registry := agent.NewRegistry(cfg.DataDir+"/agents.json", toolSymbols(), llmProviders, tracker)

	permStore, err := permission.New(cfg.DataDir)
	if err != nil {
		logger.ErrorCF("hubd", "failed to open permission store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	secrets, err := secretstore.New(cfg.DataDir)
	if err != nil {
		logger.ErrorCF("hubd", "failed to open secret store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	requests, remoteChannel := buildRequestChannel(cfg, secrets)

	manager := session.NewManager(ctx, cfg.DataDir+"/sessions", session.Dependencies{
		Registry:    registry,
		Secrets:     secrets,
		Permissions: permStore,
		Requests:    requests,
		NewSelector: func() session.Selector {
			return selector.New(registry, selectorProvider, cfg.SelectorModel)
		},
		AgentFactory: nil, // freshly created sessions start with no default agents; addressing loads them from registry
	})

	gateways := startGateways(ctx, cfg, manager)
	if remoteChannel != nil {
		startRemoteChannelServer(ctx, cfg, remoteChannel)
	}

	if len(gateways) == 0 {
		logger.WarnCF("hubd", "no gateways configured", nil)
	}

	<-ctx.Done()
	logger.InfoCF("hubd", "shutting down", nil)

	for _, closer := range gateways {
		if err := closer(); err != nil {
			logger.WarnCF("hubd", "error stopping gateway", map[string]interface{}{"error": err.Error()})
		}
	}
}

func buildProviders(cfg *config.Config) (map[string]providers.LLMProvider, providers.LLMProvider) {
	llmProviders := map[string]providers.LLMProvider{}

	var claude providers.LLMProvider
	if cfg.AnthropicAPIKey != "" {
		claude = providers.NewClaudeProvider(cfg.AnthropicAPIKey)
		llmProviders["claude"] = claude
	}

	var openai providers.LLMProvider
	if cfg.OpenAIAPIKey != "" {
		openai = providers.NewOpenAIProvider(cfg.OpenAIAPIKey)
		llmProviders["openai"] = openai
	}

	if claude != nil && openai != nil {
		llmProviders["fallback"] = providers.NewFallbackProvider(claude, openai, cfg.DefaultModel, cfg.FallbackModel)
	}

	selectorProvider := claude
	if selectorProvider == nil {
		selectorProvider = openai
	}
	return llmProviders, selectorProvider
}

func buildRequestChannel(cfg *config.Config, secrets *secretstore.Store) (reqchannel.Channel, *reqchannel.RemoteChannel) {
	if cfg.UseRemoteChannel {
		rc := reqchannel.NewRemoteChannel(secrets)
		return rc, rc
	}

	console, err := reqchannel.NewConsoleChannel(false)
	if err != nil {
		logger.ErrorCF("hubd", "failed to start console request channel", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	return console, nil
}

func startRemoteChannelServer(ctx context.Context, cfg *config.Config, rc *reqchannel.RemoteChannel) {
	srv := &http.Server{Addr: cfg.RemoteChannelAddr, Handler: rc}
	go func() {
		logger.InfoCF("hubd", "remote request channel listening", map[string]interface{}{"addr": cfg.RemoteChannelAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("hubd", "remote request channel server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// startGateways starts every Gateway whose credentials are configured,
// returning a stop function per gateway for teardown.
func startGateways(ctx context.Context, cfg *config.Config, manager *session.Manager) []func() error {
	var stoppers []func() error
	var defaultFactory session.AgentFactory // nil: addressed agents load from the registry on demand

	if !cfg.UseRemoteChannel {
		gw, err := console.New(manager, defaultFactory, cfg.ConsoleSessionID, cfg.ConsoleUser)
		if err != nil {
			logger.WarnCF("hubd", "failed to start console gateway", map[string]interface{}{"error": err.Error()})
		} else {
			go gw.Start(ctx)
			stoppers = append(stoppers, func() error { return nil })
		}
	}

	if cfg.DiscordBotToken != "" {
		gw := discord.New(manager, defaultFactory, cfg.DiscordBotToken)
		if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start discord gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, gw.Stop)
		}
	}

	if cfg.TelegramBotToken != "" {
		gw, err := telegram.New(manager, defaultFactory, cfg.TelegramBotToken)
		if err != nil {
			logger.WarnCF("hubd", "failed to create telegram gateway", map[string]interface{}{"error": err.Error()})
		} else if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start telegram gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, gw.Stop)
		}
	}

	if cfg.SlackBotToken != "" && cfg.SlackAppToken != "" {
		gw := slack.New(manager, defaultFactory, cfg.SlackBotToken, cfg.SlackAppToken)
		if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start slack gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, gw.Stop)
		}
	}

	if cfg.LarkAppID != "" && cfg.LarkAppSecret != "" {
		gw := lark.New(manager, defaultFactory, cfg.LarkAppID, cfg.LarkAppSecret)
		if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start lark gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, func() error { return nil })
		}
	}

	if cfg.DingTalkClientID != "" && cfg.DingTalkSecret != "" {
		gw := dingtalk.New(manager, defaultFactory, cfg.DingTalkClientID, cfg.DingTalkSecret)
		if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start dingtalk gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, func() error { return nil })
		}
	}

	if cfg.QQAppID != "" && cfg.QQToken != "" {
		gw := qq.New(manager, defaultFactory, cfg.QQAppID, cfg.QQToken)
		if err := gw.Start(ctx); err != nil {
			logger.WarnCF("hubd", "failed to start qq gateway", map[string]interface{}{"error": err.Error()})
		} else {
			stoppers = append(stoppers, func() error { return nil })
		}
	}

	return stoppers
}
