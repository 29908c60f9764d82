package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Database   Database   `mapstructure:"database"`
	Server     Server     `mapstructure:"server"`
	Risk       Risk       `mapstructure:"risk"`
	Reconciler Reconciler `mapstructure:"reconciler"`
	Providers  Providers  `mapstructure:"providers"`
	Account    Account    `mapstructure:"account"`
	Advisor    Advisor    `mapstructure:"advisor"`
	Trading    Trading    `mapstructure:"trading"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Risk holds the configurable admission thresholds. The stop-distance cap,
// minimum risk:reward and minimum position size are strategy constants in
// the risk package and are deliberately not configurable.
type Risk struct {
	RiskPercent         float64 `mapstructure:"risk_percent"`
	MaxTradesPerDay     int     `mapstructure:"max_trades_per_day"`
	MaxDailyLossPercent float64 `mapstructure:"max_daily_loss_percent"`
}

// Reconciler holds the configuration for the outcome reconciliation loop.
type Reconciler struct {
	MinTradeAge  time.Duration `mapstructure:"min_trade_age"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Resolution   string        `mapstructure:"resolution"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Providers holds the configuration for the price-data source cascade.
// Order lists provider names in preference order, fastest first.
type Providers struct {
	Order          []string      `mapstructure:"order"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Account holds the configuration for the broker account-state API.
type Account struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	PaperEquity   float64       `mapstructure:"paper_equity"`
	PaperFallback bool          `mapstructure:"paper_fallback"`
}

// Advisor holds the configuration for the optional second-opinion service.
type Advisor struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Trading holds the general pipeline settings.
type Trading struct {
	Instrument string `mapstructure:"instrument"`
	Mode       string `mapstructure:"mode"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("database.dsn", "trades.db")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("risk.risk_percent", 1.0)
	viper.SetDefault("risk.max_trades_per_day", 5)
	viper.SetDefault("risk.max_daily_loss_percent", 3.0)
	viper.SetDefault("reconciler.min_trade_age", time.Minute)
	viper.SetDefault("reconciler.poll_interval", 5*time.Minute)
	viper.SetDefault("reconciler.resolution", "1m")
	viper.SetDefault("reconciler.timeout", 30*time.Second)
	viper.SetDefault("providers.order", []string{"binance", "coinbase", "bitstamp"})
	viper.SetDefault("providers.request_timeout", 10*time.Second)
	viper.SetDefault("providers.rate_limit", 10) // requests per second
	viper.SetDefault("providers.rate_limit_burst", 5)
	viper.SetDefault("account.token_ttl", 10*time.Minute)
	viper.SetDefault("account.paper_equity", 1000)
	viper.SetDefault("account.paper_fallback", true)
	viper.SetDefault("advisor.enabled", false)
	viper.SetDefault("advisor.timeout", 5*time.Second)
	viper.SetDefault("trading.instrument", "BTCUSDT")
	viper.SetDefault("trading.mode", "paper")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
