package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Bot      Bot      `mapstructure:"bot"`
	Market   Market   `mapstructure:"market"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Tracing  Tracing  `mapstructure:"tracing"`
	Telegram Telegram `mapstructure:"telegram"`
}

// Bot holds the configuration for the simulated trading sessions.
type Bot struct {
	SimulationDuration time.Duration     `mapstructure:"simulation_duration"`
	TickInterval       time.Duration     `mapstructure:"tick_interval"`
	GraceDelay         time.Duration     `mapstructure:"grace_delay"`
	SampleInterval     time.Duration     `mapstructure:"sample_interval"`
	Steps              []string          `mapstructure:"steps"`
	ProfitMinPercent   float64           `mapstructure:"profit_min_percent"`
	ProfitMaxPercent   float64           `mapstructure:"profit_max_percent"`
	SpreadMin          float64           `mapstructure:"spread_min"`
	SpreadMax          float64           `mapstructure:"spread_max"`
	SafetyBuffer       float64           `mapstructure:"safety_buffer"`
	Strategy           string            `mapstructure:"strategy"`
	StrategyTag        string            `mapstructure:"strategy_tag"`
	ExecutorTimeout    time.Duration     `mapstructure:"executor_timeout"`
	QuotaTimezone      string            `mapstructure:"quota_timezone"`
	AutoAcknowledge    bool              `mapstructure:"auto_acknowledge"`
	SessionGuard       string            `mapstructure:"session_guard"` // "memory" or "database"
	Ranks              []models.RankTier `mapstructure:"ranks"`
	Stablecoins        []string          `mapstructure:"stablecoins"`
}

// Market holds the configuration for the price catalog.
type Market struct {
	BaseURL        string         `mapstructure:"base_url"`
	QuoteAsset     string         `mapstructure:"quote_asset"`
	MaxAssets      int            `mapstructure:"max_assets"`
	RateLimit      float64        `mapstructure:"rate_limit"`
	RateLimitBurst int            `mapstructure:"rate_limit_burst"`
	StaticAssets   []models.Asset `mapstructure:"static_assets"`
}

// Server holds the configuration for the web servers.
type Server struct {
	Port    int `mapstructure:"port"`
	ApiPort int `mapstructure:"api_port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Tracing holds the OpenTelemetry settings.
type Tracing struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Telegram holds the optional result notifier settings.
type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// DefaultSteps are the named analysis phases shown while a session runs.
var DefaultSteps = []string{
	"Collecting market data",
	"Analyzing price history",
	"Computing technical indicators",
	"Evaluating volume profile",
	"Scanning market sentiment",
	"Comparing asset correlations",
	"Running risk assessment",
	"Optimizing entry point",
	"Validating signal strength",
	"Generating recommendation",
}

// DefaultStablecoins are excluded from the tradable set.
var DefaultStablecoins = []string{"USDT", "USDC", "BUSD", "DAI", "TUSD", "FDUSD", "USDP", "PYUSD", "USDD"}

// DefaultRanks returns the built-in rank table. Upper bounds are exclusive.
func DefaultRanks() []models.RankTier {
	bound := func(v float64) *float64 { return &v }
	return []models.RankTier{
		{Rank: 1, Label: "Starter", MinBalance: 250, MaxBalance: bound(1000), MaxTradesPerDay: 2},
		{Rank: 2, Label: "Trader", MinBalance: 1000, MaxBalance: bound(2500), MaxTradesPerDay: 4},
		{Rank: 3, Label: "Advanced Trader", MinBalance: 2500, MaxBalance: bound(5000), MaxTradesPerDay: 6},
		{Rank: 4, Label: "Expert Trader", MinBalance: 5000, MaxBalance: bound(10000), MaxTradesPerDay: 8},
		{Rank: 5, Label: "Elite Trader", MinBalance: 10000, MaxBalance: bound(25000), MaxTradesPerDay: 12},
		{Rank: 6, Label: "Master Trader", MinBalance: 25000, MaxTradesPerDay: 20},
	}
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	config.applyFallbacks()
	err = config.Validate()
	return
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bot.simulation_duration", 60*time.Second)
	v.SetDefault("bot.tick_interval", 250*time.Millisecond)
	v.SetDefault("bot.grace_delay", time.Second)
	v.SetDefault("bot.sample_interval", time.Second)
	v.SetDefault("bot.profit_min_percent", 3.0)
	v.SetDefault("bot.profit_max_percent", 7.5)
	v.SetDefault("bot.spread_min", 0.001)
	v.SetDefault("bot.spread_max", 0.005)
	v.SetDefault("bot.safety_buffer", 0.01)
	v.SetDefault("bot.strategy", "momentum")
	v.SetDefault("bot.strategy_tag", "ai_bot")
	v.SetDefault("bot.executor_timeout", 10*time.Second)
	v.SetDefault("bot.quota_timezone", "UTC")
	v.SetDefault("bot.session_guard", "memory")

	v.SetDefault("market.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("market.quote_asset", "USDT")
	v.SetDefault("market.max_assets", 50)
	v.SetDefault("market.rate_limit", 20)      // requests per second
	v.SetDefault("market.rate_limit_burst", 5) // burst size

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_port", 8081)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "trader.db")
	v.SetDefault("tracing.service_name", "ai-trade-bot")
}

// Default returns a configuration populated only with defaults.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are well-formed, decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	cfg.applyFallbacks()
	return cfg
}

func (c *Config) applyFallbacks() {
	if len(c.Bot.Steps) == 0 {
		c.Bot.Steps = append([]string(nil), DefaultSteps...)
	}
	if len(c.Bot.Ranks) == 0 {
		c.Bot.Ranks = DefaultRanks()
	}
	if len(c.Bot.Stablecoins) == 0 {
		c.Bot.Stablecoins = append([]string(nil), DefaultStablecoins...)
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	b := c.Bot
	var errs []error
	if b.SimulationDuration <= 0 {
		errs = append(errs, errors.New("bot.simulation_duration must be positive"))
	}
	if b.TickInterval <= 0 || b.TickInterval > b.SimulationDuration {
		errs = append(errs, errors.New("bot.tick_interval must be positive and not exceed the simulation duration"))
	}
	if b.GraceDelay < 0 || b.SampleInterval < 0 {
		errs = append(errs, errors.New("bot.grace_delay and bot.sample_interval must not be negative"))
	}
	if len(b.Steps) == 0 {
		errs = append(errs, errors.New("bot.steps must not be empty"))
	}
	if b.ProfitMinPercent <= 0 || b.ProfitMaxPercent < b.ProfitMinPercent {
		errs = append(errs, fmt.Errorf("invalid profit bounds [%v, %v]", b.ProfitMinPercent, b.ProfitMaxPercent))
	}
	if b.SpreadMin <= 0 || b.SpreadMax < b.SpreadMin || b.SpreadMax >= 1 {
		errs = append(errs, fmt.Errorf("invalid spread bounds [%v, %v]", b.SpreadMin, b.SpreadMax))
	}
	if b.SafetyBuffer < 0 {
		errs = append(errs, errors.New("bot.safety_buffer must not be negative"))
	}
	if b.ExecutorTimeout <= 0 {
		errs = append(errs, errors.New("bot.executor_timeout must be positive"))
	}
	if _, err := time.LoadLocation(b.QuotaTimezone); err != nil {
		errs = append(errs, fmt.Errorf("bot.quota_timezone: %w", err))
	}
	switch b.SessionGuard {
	case "memory", "database":
	default:
		errs = append(errs, fmt.Errorf("unknown bot.session_guard %q", b.SessionGuard))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}
