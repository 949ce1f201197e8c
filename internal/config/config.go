package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Line      LineConfig      `yaml:"line"`
	Providers ProvidersConfig `yaml:"providers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port" default:"8080"`
	Host string `yaml:"host" default:"localhost"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite"`
	DSN    string `yaml:"dsn" default:"stock-alert.db" validate:"required"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"console" validate:"oneof=console json"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size" default:"100"` // megabytes
	MaxBackups int    `yaml:"max_backups" default:"7"`
	MaxAge     int    `yaml:"max_age" default:"30"` // days
}

// LineConfig represents the push-notification channel
type LineConfig struct {
	PushURL      string        `yaml:"push_url" default:"https://api.line.me/v2/bot/message/push" validate:"url"`
	ChannelToken string        `yaml:"channel_token"`
	Recipient    string        `yaml:"recipient"`
	PushInterval time.Duration `yaml:"push_interval" default:"800ms" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// ProvidersConfig represents upstream quote provider configuration
type ProvidersConfig struct {
	Timeout        time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	ForeignTimeout time.Duration `yaml:"foreign_timeout" default:"15s" validate:"gt=0"`
	UserAgent      string        `yaml:"user_agent" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	HostInterval   time.Duration `yaml:"host_interval" default:"300ms" validate:"gte=0"`

	TWSELiveURL   string `yaml:"twse_live_url" default:"https://mis.twse.com.tw/stock/api/getStockInfo.jsp" validate:"url"`
	TWSECloseURL  string `yaml:"twse_close_url" default:"https://openapi.twse.com.tw/v1/exchangeReport/STOCK_DAY_ALL" validate:"url"`
	TPExCloseURL  string `yaml:"tpex_close_url" default:"https://www.tpex.org.tw/openapi/v1/tpex_mainboard_daily_close_quotes" validate:"url"`
	YahooTWURL    string `yaml:"yahoo_tw_url" default:"https://tw.stock.yahoo.com/quote" validate:"url"`
	YahooChartURL string `yaml:"yahoo_chart_url" default:"https://query1.finance.yahoo.com/v8/finance/chart" validate:"url"`
	YahooQuoteURL string `yaml:"yahoo_quote_url" default:"https://query1.finance.yahoo.com/v7/finance/quote" validate:"url"`
	YahooSummURL  string `yaml:"yahoo_summary_url" default:"https://query2.finance.yahoo.com/v10/finance/quoteSummary" validate:"url"`
	YahooHTMLURL  string `yaml:"yahoo_html_url" default:"https://finance.yahoo.com/quote" validate:"url"`
	GoogleURL     string `yaml:"google_url" default:"https://www.google.com/finance/quote" validate:"url"`
}

// SchedulerConfig represents sweep cadences and daily jobs
type SchedulerConfig struct {
	Disabled             bool          `yaml:"disabled"`
	IntradayInterval     time.Duration `yaml:"intraday_interval" default:"5m" validate:"gt=0"`
	RiskInterval         time.Duration `yaml:"risk_interval" default:"10m" validate:"gt=0"`
	TechnicalInterval    time.Duration `yaml:"technical_interval" default:"15m" validate:"gt=0"`
	PaceDelay            time.Duration `yaml:"pace_delay" default:"500ms" validate:"gte=0"`
	SummaryTime          string        `yaml:"summary_time" default:"13:45" validate:"datetime=15:04"`
	CleanupTime          string        `yaml:"cleanup_time" default:"02:00" validate:"datetime=15:04"`
	HistoryRetentionDays int           `yaml:"history_retention_days" default:"400" validate:"gt=0"`
}

// LoadConfig loads configuration from a YAML file, applying defaults, .env
// and environment overrides. A missing file yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LINE_CHANNEL_TOKEN"); v != "" {
		cfg.Line.ChannelToken = v
	}
	if v := os.Getenv("LINE_RECIPIENT"); v != "" {
		cfg.Line.Recipient = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
