package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Decibel   DecibelConfig   `yaml:"decibel"`
	Chain     ChainConfig     `yaml:"chain"`
	Stream    StreamConfig    `yaml:"stream"`
	Database  DatabaseConfig  `yaml:"database"`
	State     StateConfig     `yaml:"state"`
	Auth      AuthConfig      `yaml:"auth"`
	Photon    PhotonConfig    `yaml:"photon"`
	News      NewsConfig      `yaml:"news"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	AI        AIConfig        `yaml:"ai"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	FrontendOrigin  string        `yaml:"frontend_origin"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

type DecibelConfig struct {
	BaseURL string        `yaml:"base_url"`
	Origin  string        `yaml:"origin"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChainConfig struct {
	NodeURL           string        `yaml:"node_url"`
	NodeAPIKey        string        `yaml:"-"`
	PackageAddress    string        `yaml:"package_address"`
	CustodyKey        string        `yaml:"-"`
	MaxGasAmount      uint64        `yaml:"max_gas_amount"`
	GasUnitPrice      uint64        `yaml:"gas_unit_price"`
	TxExpiry          time.Duration `yaml:"tx_expiry"`
	Timeout           time.Duration `yaml:"timeout"`
	DelegationExpiry  time.Duration `yaml:"delegation_expiry"`
	SubmitPollTimeout time.Duration `yaml:"submit_poll_timeout"`
}

type StreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"-"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	IdentityTTL time.Duration `yaml:"identity_ttl"`
}

type PhotonConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

type NewsConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	TrendingTTL time.Duration `yaml:"trending_ttl"`
	MaxItems    int           `yaml:"max_items"`
}

type SentimentConfig struct {
	FearGreedURL string        `yaml:"fear_greed_url"`
	PricesURL    string        `yaml:"prices_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	Referer string        `yaml:"referer"`
	Title   string        `yaml:"title"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled == nil || *m.Enabled
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":3001"
	}
	if cfg.Server.FrontendOrigin == "" {
		cfg.Server.FrontendOrigin = "http://localhost:3000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimitPerMin == 0 {
		cfg.Server.RateLimitPerMin = 100
	}
	if cfg.Decibel.BaseURL == "" {
		cfg.Decibel.BaseURL = "https://api.testnet.decibel.trade"
	}
	if cfg.Decibel.Origin == "" {
		cfg.Decibel.Origin = "https://app.decibel.trade"
	}
	if cfg.Decibel.Timeout == 0 {
		cfg.Decibel.Timeout = 15 * time.Second
	}
	if cfg.Chain.NodeURL == "" {
		cfg.Chain.NodeURL = "https://fullnode.testnet.aptoslabs.com/v1"
	}
	if cfg.Chain.PackageAddress == "" {
		cfg.Chain.PackageAddress = "0x1f513904b7568445e3c291a6c58cb272db017d8a72aea563d5664666221d5f75"
	}
	if cfg.Chain.MaxGasAmount == 0 {
		cfg.Chain.MaxGasAmount = 100000
	}
	if cfg.Chain.GasUnitPrice == 0 {
		cfg.Chain.GasUnitPrice = 100
	}
	if cfg.Chain.TxExpiry == 0 {
		cfg.Chain.TxExpiry = 60 * time.Second
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = 20 * time.Second
	}
	if cfg.Chain.SubmitPollTimeout == 0 {
		cfg.Chain.SubmitPollTimeout = 30 * time.Second
	}
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = deriveStreamURL(cfg.Decibel.BaseURL)
	}
	if cfg.Stream.ReconnectDelay == 0 {
		cfg.Stream.ReconnectDelay = 3 * time.Second
	}
	if cfg.Stream.PingInterval == 0 {
		cfg.Stream.PingInterval = 30 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/alphaflow.db"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.IdentityTTL == 0 {
		cfg.Auth.IdentityTTL = time.Hour
	}
	if cfg.Photon.BaseURL == "" {
		cfg.Photon.BaseURL = "https://api.photon.wallet"
	}
	if cfg.Photon.Timeout == 0 {
		cfg.Photon.Timeout = 15 * time.Second
	}
	if cfg.News.BaseURL == "" {
		cfg.News.BaseURL = "https://cryptonews-api.com/api/v1"
	}
	if cfg.News.Timeout == 0 {
		cfg.News.Timeout = 10 * time.Second
	}
	if cfg.News.CacheTTL == 0 {
		cfg.News.CacheTTL = 5 * time.Minute
	}
	if cfg.News.TrendingTTL == 0 {
		cfg.News.TrendingTTL = 10 * time.Minute
	}
	if cfg.News.MaxItems == 0 {
		cfg.News.MaxItems = 3
	}
	if cfg.Sentiment.FearGreedURL == "" {
		cfg.Sentiment.FearGreedURL = "https://api.alternative.me/fng/"
	}
	if cfg.Sentiment.PricesURL == "" {
		cfg.Sentiment.PricesURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Sentiment.Timeout == 0 {
		cfg.Sentiment.Timeout = 10 * time.Second
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "anthropic/claude-3.5-sonnet"
	}
	if cfg.AI.Referer == "" {
		cfg.AI.Referer = "https://alphaflow.trade"
	}
	if cfg.AI.Title == "" {
		cfg.AI.Title = "AlphaFlow"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Decibel.APIKey = strings.TrimSpace(os.Getenv("DECIBEL_API_KEY"))
	cfg.Chain.NodeAPIKey = strings.TrimSpace(os.Getenv("CHAIN_NODE_API_KEY"))
	cfg.Chain.CustodyKey = strings.TrimSpace(os.Getenv("BACKEND_WALLET_PRIVATE_KEY"))
	cfg.Database.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Auth.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.Photon.APIKey = strings.TrimSpace(os.Getenv("PHOTON_API_KEY"))
	cfg.News.APIKey = strings.TrimSpace(os.Getenv("CRYPTONEWS_API_KEY"))
	cfg.AI.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if url := strings.TrimSpace(os.Getenv("DECIBEL_BASE_URL")); url != "" {
		cfg.Decibel.BaseURL = url
	}
	if url := strings.TrimSpace(os.Getenv("CHAIN_NODE_URL")); url != "" {
		cfg.Chain.NodeURL = url
	}
	if addr := strings.TrimSpace(os.Getenv("DECIBEL_PACKAGE_ADDRESS")); addr != "" {
		cfg.Chain.PackageAddress = addr
	}
}

func deriveStreamURL(baseURL string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func validate(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.Chain.PackageAddress == "" {
		return errors.New("chain.package_address is required")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Server.RateLimitPerMin < 0 {
		return errors.New("server.rate_limit_per_min must be >= 0")
	}
	if cfg.Chain.DelegationExpiry < 0 {
		return errors.New("chain.delegation_expiry must be >= 0")
	}
	return nil
}
