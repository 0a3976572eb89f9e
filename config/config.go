package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Oiflow    OiflowConfig    `yaml:"oiflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Source    SourceConfig    `yaml:"source"`
	Poller    PollerConfig    `yaml:"poller"`
	Processor ProcessorConfig `yaml:"processor"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OiflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type SourceConfig struct {
	Nse NseSourceConfig `yaml:"nse"`
}

// NseSourceConfig describes the origin site. The handshake pages must be
// visited in order before the API accepts requests; the origin ties cookie
// validity to having browsed them.
type NseSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	HandshakePages []string             `yaml:"handshake_pages"`
	APIPath        string               `yaml:"api_path"`
	Symbol         string               `yaml:"symbol"`
	Referer        string               `yaml:"referer"`
	UserAgent      string               `yaml:"user_agent"`
	CookieTTL      time.Duration        `yaml:"cookie_ttl"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type PollerConfig struct {
	Interval  time.Duration   `yaml:"interval"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ProcessorConfig struct {
	ReportInterval time.Duration `yaml:"report_interval"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	WSPushInterval  time.Duration `yaml:"ws_push_interval"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/116.0.0.0 Safari/537.36"
	defaultBaseURL = "https://www.nseindia.com"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override CloudWatch settings from environment variables if available
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("CW_NAMESPACE"); v != "" {
			config.Metrics.CloudWatch.Namespace = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Channels.RawBuffer == 0 {
		cfg.Channels.RawBuffer = 16
	}
	nse := &cfg.Source.Nse
	if nse.BaseURL == "" {
		nse.BaseURL = defaultBaseURL
	}
	nse.BaseURL = strings.TrimRight(nse.BaseURL, "/")
	if len(nse.HandshakePages) == 0 {
		nse.HandshakePages = []string{"/", "/option-chain"}
	}
	if nse.APIPath == "" {
		nse.APIPath = "/api/option-chain-indices"
	}
	if nse.Symbol == "" {
		nse.Symbol = "NIFTY"
	}
	if nse.Referer == "" {
		nse.Referer = nse.BaseURL + "/option-chain"
	}
	if nse.UserAgent == "" {
		nse.UserAgent = defaultUserAgent
	}
	if nse.CookieTTL == 0 {
		nse.CookieTTL = 10 * time.Minute
	}
	if nse.ConnectionPool.MaxIdleConns == 0 {
		nse.ConnectionPool.MaxIdleConns = 4
	}
	if nse.ConnectionPool.MaxConnsPerHost == 0 {
		nse.ConnectionPool.MaxConnsPerHost = 4
	}
	if nse.ConnectionPool.IdleConnTimeout == 0 {
		nse.ConnectionPool.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = time.Minute
	}
	if cfg.Poller.Timeout == 0 {
		cfg.Poller.Timeout = 10 * time.Second
	}
	if cfg.Processor.ReportInterval == 0 {
		cfg.Processor.ReportInterval = 30 * time.Second
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Server.WSPushInterval == 0 {
		cfg.Server.WSPushInterval = time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Oiflow.Name == "" {
		return fmt.Errorf("oiflow.name is required")
	}

	if cfg.Oiflow.Version == "" {
		return fmt.Errorf("oiflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if !strings.HasPrefix(cfg.Source.Nse.BaseURL, "http://") && !strings.HasPrefix(cfg.Source.Nse.BaseURL, "https://") {
		return fmt.Errorf("source.nse.base_url '%s' is invalid", cfg.Source.Nse.BaseURL)
	}

	for _, page := range cfg.Source.Nse.HandshakePages {
		if !strings.HasPrefix(page, "/") {
			return fmt.Errorf("source.nse.handshake_pages entry '%s' must start with '/'", page)
		}
	}

	if cfg.Source.Nse.Symbol == "" {
		return fmt.Errorf("source.nse.symbol is required")
	}

	if cfg.Source.Nse.CookieTTL <= 0 {
		return fmt.Errorf("source.nse.cookie_ttl must be greater than 0")
	}

	if cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than 0")
	}

	if cfg.Poller.Timeout <= 0 {
		return fmt.Errorf("poller.timeout must be greater than 0")
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
	}

	return nil
}

// APIEndpoint returns the full data URL for the configured symbol.
func (c NseSourceConfig) APIEndpoint() string {
	return fmt.Sprintf("%s%s?symbol=%s", c.BaseURL, c.APIPath, c.Symbol)
}
