// Package config loads process configuration from the environment, the
// same way picoclaw's top-level config package does.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide configuration for cmd/hubd.
type Config struct {
	DataDir string `env:"HUB_DATA_DIR" envDefault:".data"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`

	SelectorModel string `env:"HUB_SELECTOR_MODEL" envDefault:"claude-haiku-4-5-20251001"`
	DefaultModel  string `env:"HUB_DEFAULT_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	FallbackModel string `env:"HUB_FALLBACK_MODEL" envDefault:"gpt-4o-mini"`

	// SyncInterval is a Go duration ("3s") in the shape Manager.Sync takes
	// for its periodic checkpoint loop (spec §4.4 `sync(interval)`).
	SyncInterval time.Duration `env:"HUB_SYNC_INTERVAL" envDefault:"3s"`
	// SyncCron, if non-empty, is a cron expression (adhocore/gronx) in the
	// shape Manager.SyncCron takes; that loop checks it once per second and
	// saves whenever it is due.
	//
	// cmd/hubd loads SyncInterval and SyncCron but starts no checkpoint loop:
	// it calls neither Manager.Sync nor Manager.SyncCron, so sessions are not
	// saved periodically by the running hub.
	SyncCron string `env:"HUB_SYNC_CRON"`

	// UseRemoteChannel selects the websocket-backed Remote Request Channel
	// (spec §4.7) over the in-process Console channel; the console gateway
	// is only started when this is false, and then shares the terminal with
	// the Console channel.
	UseRemoteChannel  bool   `env:"HUB_USE_REMOTE_CHANNEL" envDefault:"false"`
	RemoteChannelAddr string `env:"HUB_REMOTE_CHANNEL_ADDR" envDefault:":8787"`

	ConsoleUser      string `env:"HUB_CONSOLE_USER" envDefault:"local"`
	ConsoleSessionID string `env:"HUB_CONSOLE_SESSION_ID" envDefault:"console"`

	DiscordBotToken   string `env:"HUB_DISCORD_BOT_TOKEN"`
	TelegramBotToken  string `env:"HUB_TELEGRAM_BOT_TOKEN"`
	SlackBotToken     string `env:"HUB_SLACK_BOT_TOKEN"`
	SlackAppToken     string `env:"HUB_SLACK_APP_TOKEN"`
	LarkAppID         string `env:"HUB_LARK_APP_ID"`
	LarkAppSecret     string `env:"HUB_LARK_APP_SECRET"`
	DingTalkClientID  string `env:"HUB_DINGTALK_CLIENT_ID"`
	DingTalkSecret    string `env:"HUB_DINGTALK_CLIENT_SECRET"`
	QQAppID           string `env:"HUB_QQ_APP_ID"`
	QQToken           string `env:"HUB_QQ_TOKEN"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}
