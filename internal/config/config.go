package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Rollover  RolloverConfig  `mapstructure:"rollover"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"` // 0 disables
	Burst int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	QueryTimeoutMs int    `mapstructure:"query_timeout_ms"`
}

func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	Prefix                string `mapstructure:"prefix"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type StoreConfig struct {
	Backend string        `mapstructure:"backend"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	ConsecutiveFailures int  `mapstructure:"consecutive_failures"`
	OpenTimeoutSeconds  int  `mapstructure:"open_timeout_seconds"`
}

// RiskConfig is the raw risk section. Thresholds are strings so that
// decimal parsing sees exactly what the operator wrote.
type RiskConfig struct {
	DailyMaxLoss         string  `mapstructure:"daily_max_loss"`
	DailyTrailDrawdown   string  `mapstructure:"daily_trail_drawdown"`
	MaxTradesPerDay      int     `mapstructure:"max_trades_per_day"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	CooldownMinutes      float64 `mapstructure:"cooldown_minutes"`
	OnePositionPerSymbol bool    `mapstructure:"one_position_per_symbol"`
	// ConfigFile optionally points at a dedicated YAML document holding the
	// risk section; it wins over the inline values.
	ConfigFile string `mapstructure:"config_file"`
}

type SizingConfig struct {
	RiskPerTrade string `mapstructure:"risk_per_trade"`
}

type ExchangeConfig struct {
	DefaultSymbol string         `mapstructure:"default_symbol"`
	Filters       []FilterConfig `mapstructure:"filters"`
}

type FilterConfig struct {
	Symbol         string `mapstructure:"symbol"`
	TickSize       string `mapstructure:"tick_size"`
	StepSize       string `mapstructure:"step_size"`
	MinQty         string `mapstructure:"min_qty"`
	MaxQty         string `mapstructure:"max_qty"`
	MinNotional    string `mapstructure:"min_notional"`
	ReferencePrice string `mapstructure:"reference_price"`
}

type AuditConfig struct {
	Dir    string `mapstructure:"dir"`
	Buffer int    `mapstructure:"buffer"`
}

type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type RolloverConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

func setDefaults(v *viper.Viper) {
	def := model.DefaultRiskConfig()

	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("ratelimit.qps", 50)
	v.SetDefault("ratelimit.burst", 100)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.query_timeout_ms", 3000)
	v.SetDefault("redis.prefix", "riskgate")
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.breaker.enabled", true)
	v.SetDefault("store.breaker.consecutive_failures", 5)
	v.SetDefault("store.breaker.open_timeout_seconds", 30)
	v.SetDefault("risk.daily_max_loss", def.DailyMaxLoss.String())
	v.SetDefault("risk.daily_trail_drawdown", def.DailyTrailDrawdown.String())
	v.SetDefault("risk.max_trades_per_day", def.MaxTradesPerDay)
	v.SetDefault("risk.max_consecutive_losses", def.MaxConsecutiveLosses)
	v.SetDefault("risk.cooldown_minutes", def.CooldownMinutes)
	v.SetDefault("risk.one_position_per_symbol", def.OnePositionPerSymbol)
	v.SetDefault("risk.config_file", "")
	v.SetDefault("sizing.risk_per_trade", "0.01")
	v.SetDefault("exchange.default_symbol", "BTCUSDT")
	v.SetDefault("audit.dir", "logs")
	v.SetDefault("audit.buffer", 1000)
	v.SetDefault("stream.enabled", false)
	v.SetDefault("rollover.enabled", true)
	v.SetDefault("rollover.schedule", "0 0 * * *")
}

// Load reads config.yaml from . or ./configs, a .env file when present, and
// RISKGATE_* environment variables, e.g. RISKGATE_STORE_BACKEND.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	return load(v)
}

// LoadFile reads an explicit config file instead of searching for one.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("riskgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// A missing or malformed file never blocks startup.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Info("no config file found, using defaults and env vars")
		} else {
			slog.Warn("config file unreadable, using defaults and env vars", "file", v.ConfigFileUsed(), "error", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// RiskConfig resolves the risk thresholds. An unreadable risk.config_file or
// an invalid section never fails startup: the conservative defaults apply
// and the reason is logged.
func (c *Config) RiskConfig(log *slog.Logger) model.RiskConfig {
	if log == nil {
		log = slog.Default()
	}
	section := c.Risk
	if section.ConfigFile != "" {
		fromFile, err := readRiskFile(section.ConfigFile)
		if err != nil {
			log.Warn("risk config file unusable, using defaults", "path", section.ConfigFile, "error", err)
			return model.DefaultRiskConfig()
		}
		section = fromFile
	}
	rc, err := section.toModel()
	if err != nil {
		log.Warn("risk config invalid, using defaults", "error", err)
		return model.DefaultRiskConfig()
	}
	return rc
}

func readRiskFile(path string) (RiskConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return RiskConfig{}, err
	}
	sub := v
	if v.IsSet("risk") {
		sub = v.Sub("risk")
	}
	var rc RiskConfig
	if err := sub.Unmarshal(&rc); err != nil {
		return RiskConfig{}, err
	}
	return rc, nil
}

func (r RiskConfig) toModel() (model.RiskConfig, error) {
	maxLoss, err := decimal.NewFromString(strings.TrimSpace(r.DailyMaxLoss))
	if err != nil {
		return model.RiskConfig{}, fmt.Errorf("daily_max_loss: %w", err)
	}
	trail, err := decimal.NewFromString(strings.TrimSpace(r.DailyTrailDrawdown))
	if err != nil {
		return model.RiskConfig{}, fmt.Errorf("daily_trail_drawdown: %w", err)
	}
	rc := model.RiskConfig{
		DailyMaxLoss:         maxLoss,
		DailyTrailDrawdown:   trail,
		MaxTradesPerDay:      r.MaxTradesPerDay,
		MaxConsecutiveLosses: r.MaxConsecutiveLosses,
		CooldownMinutes:      r.CooldownMinutes,
		OnePositionPerSymbol: r.OnePositionPerSymbol,
	}
	if err := rc.Validate(); err != nil {
		return model.RiskConfig{}, err
	}
	return rc, nil
}

// RiskPerTrade returns zero when unset or malformed; the sizer substitutes its default.
func (c *Config) RiskPerTrade() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Sizing.RiskPerTrade))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ExchangeFilters parses the configured filter overrides.
func (c *Config) ExchangeFilters() ([]model.ExchangeFilter, error) {
	out := make([]model.ExchangeFilter, 0, len(c.Exchange.Filters))
	for i, fc := range c.Exchange.Filters {
		f, err := fc.toModel()
		if err != nil {
			return nil, fmt.Errorf("exchange.filters[%d]: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (fc FilterConfig) toModel() (model.ExchangeFilter, error) {
	symbol := strings.ToUpper(strings.TrimSpace(fc.Symbol))
	if symbol == "" {
		return model.ExchangeFilter{}, errors.New("symbol is required")
	}
	f := model.ExchangeFilter{Symbol: symbol}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
		opt  bool
	}{
		{"tick_size", fc.TickSize, &f.TickSize, false},
		{"step_size", fc.StepSize, &f.StepSize, false},
		{"min_qty", fc.MinQty, &f.MinQty, false},
		{"max_qty", fc.MaxQty, &f.MaxQty, false},
		{"min_notional", fc.MinNotional, &f.MinNotional, false},
		{"reference_price", fc.ReferencePrice, &f.ReferencePrice, true},
	}
	for _, fld := range fields {
		raw := strings.TrimSpace(fld.raw)
		if raw == "" && fld.opt {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.ExchangeFilter{}, fmt.Errorf("%s %s: %w", symbol, fld.name, err)
		}
		*fld.dst = d
	}
	if err := f.Validate(); err != nil {
		return model.ExchangeFilter{}, err
	}
	return f, nil
}
