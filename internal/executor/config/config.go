package config

import (
	"time"

	"golang-market-insight/internal/analytics"
	schedulerconfig "golang-market-insight/internal/scheduler/config"
	"golang-market-insight/pkg/config"
)

// Executor holds worker pool configuration.
type Executor struct {
	Workers        int           `mapstructure:"workers" default:"4" validate:"gte=1,lte=64"`
	QueueSize      int           `mapstructure:"queue_size" default:"64" validate:"gte=1"`
	MaxRetries     int           `mapstructure:"max_retries" default:"3" validate:"gte=0"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" default:"1s" validate:"gt=0"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" default:"2" validate:"gte=1"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" default:"30s" validate:"gt=0"`
	ShutdownPeriod time.Duration `mapstructure:"shutdown_period" default:"30s"`
}

// Pipeline holds orchestrator configuration.
type Pipeline struct {
	Timeout           time.Duration `mapstructure:"timeout" default:"5m" validate:"gt=0"`
	BarInterval       time.Duration `mapstructure:"bar_interval" default:"24h" validate:"gt=0"`
	ReconcileSchedule string        `mapstructure:"reconcile_schedule" default:"@every 10m"`
	StaleAfter        time.Duration `mapstructure:"stale_after" default:"10m"`
	NotifyFailures    bool          `mapstructure:"notify_failures"`
	NotifyInsights    bool          `mapstructure:"notify_insights"`
}

// Store selects the time-series store backend.
type Store struct {
	Driver string `mapstructure:"driver" default:"postgres" validate:"oneof=postgres clickhouse memory"`
}

// Polygon holds the configuration for the Polygon aggregates API.
type Polygon struct {
	BaseURL             string        `mapstructure:"base_url" default:"https://api.polygon.io"`
	APIKey              string        `mapstructure:"api_key"`
	Multiplier          int           `mapstructure:"multiplier" default:"1" validate:"gte=1"`
	Timespan            string        `mapstructure:"timespan" default:"day" validate:"oneof=minute hour day week"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute" default:"5" validate:"gte=1"`
	Timeout             time.Duration `mapstructure:"timeout" default:"15s"`
}

// YahooFinance holds the configuration for the Yahoo Finance chart API.
type YahooFinance struct {
	BaseURL             string        `mapstructure:"base_url" default:"https://query1.finance.yahoo.com"`
	Interval            string        `mapstructure:"interval" default:"1d"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute" default:"30" validate:"gte=1"`
	Timeout             time.Duration `mapstructure:"timeout" default:"15s"`
}

// Source selects the market data provider.
type Source struct {
	Provider     string       `mapstructure:"provider" default:"polygon" validate:"oneof=polygon yahoo"`
	Polygon      Polygon      `mapstructure:"polygon"`
	YahooFinance YahooFinance `mapstructure:"yahoo_finance"`
}

// Gemini holds the configuration for the Gemini API.
type Gemini struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model" default:"gemini-2.0-flash"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute" default:"15" validate:"gte=1"`
	MaxTokenPerMinute   int    `mapstructure:"max_token_per_minute" default:"1000000" validate:"gte=1"`
}

// OpenAI holds the configuration for the OpenAI chat completions API.
type OpenAI struct {
	BaseURL             string `mapstructure:"base_url" default:"https://api.openai.com/v1/chat/completions"`
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model" default:"gpt-4o-mini"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute" default:"60" validate:"gte=1"`
}

// Claude holds the configuration for the Anthropic messages API.
type Claude struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model" default:"claude-3-5-haiku-latest"`
	MaxTokens           int    `mapstructure:"max_tokens" default:"1024"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute" default:"50" validate:"gte=1"`
}

// AI holds configuration for insight providers.
type AI struct {
	Provider    string        `mapstructure:"provider" default:"gemini" validate:"oneof=gemini openai claude none"`
	Timeout     time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	MaxRetries  int           `mapstructure:"max_retries" default:"2" validate:"gte=0"`
	BackoffBase time.Duration `mapstructure:"backoff_base" default:"1s"`
	BackoffMax  time.Duration `mapstructure:"backoff_max" default:"10s"`
	Gemini      Gemini        `mapstructure:"gemini"`
	OpenAI      OpenAI        `mapstructure:"openai"`
	Claude      Claude        `mapstructure:"claude"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Query holds output API caching configuration.
type Query struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"30s"`
	MaxRows  int           `mapstructure:"max_rows" default:"1000" validate:"gte=1"`
}

// Config holds the full configuration for the pipeline service.
type Config struct {
	App        config.App                `mapstructure:"app"`
	Logger     config.Logger             `mapstructure:"logger"`
	Database   config.Database           `mapstructure:"database"`
	Redis      config.Redis              `mapstructure:"redis"`
	ClickHouse config.ClickHouse         `mapstructure:"clickhouse"`
	API        config.API                `mapstructure:"api"`
	Scheduler  schedulerconfig.Scheduler `mapstructure:"scheduler"`
	Executor   Executor                  `mapstructure:"executor"`
	Pipeline   Pipeline                  `mapstructure:"pipeline"`
	Store      Store                     `mapstructure:"store"`
	Source     Source                    `mapstructure:"source"`
	Analytics  analytics.Config          `mapstructure:"analytics"`
	AI         AI                        `mapstructure:"ai"`
	Telegram   Telegram                  `mapstructure:"telegram"`
	Query      Query                     `mapstructure:"query"`
}

// Load loads the pipeline configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
