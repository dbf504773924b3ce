package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Postgres   PostgresConfig        `mapstructure:"postgres"`
	Server     ServerConfig          `mapstructure:"server"`
	Browser    BrowserConfig         `mapstructure:"browser"`
	Scheduler  SchedulerConfig       `mapstructure:"scheduler"`
	FX         FXConfig              `mapstructure:"fx"`
	Classifier ClassifierConfig      `mapstructure:"classifier"`
	Seeds      SeedsConfig           `mapstructure:"seeds"`
	Nodes      []Node                `mapstructure:"nodes"`
	LandedCost map[string]LandedCost `mapstructure:"landed_cost"`
	Logging    LoggingConfig         `mapstructure:"logging"`
}

// PostgresConfig holds the connection parameters for the catalog store.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return "host=" + p.Host +
		" port=" + p.Port +
		" user=" + p.User +
		" password=" + p.Password +
		" dbname=" + p.DBName +
		" sslmode=" + p.SSLMode
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	OfferLogPath    string        `mapstructure:"offer_log_path"`
	OfferLogEnabled bool          `mapstructure:"offer_log_enabled"`
}

// BrowserConfig holds the headless-browser and fetch-executor settings.
type BrowserConfig struct {
	ChromeBin      string        `mapstructure:"chrome_bin"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	SelectorWait   time.Duration `mapstructure:"selector_wait"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffMin     time.Duration `mapstructure:"backoff_min"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	BlockedHosts   []string      `mapstructure:"blocked_hosts"`
	UserAgents     []string      `mapstructure:"user_agents"`
}

// SchedulerConfig holds batch-cycle pacing and sizing.
type SchedulerConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	PacingMin     time.Duration `mapstructure:"pacing_min"`
	PacingMax     time.Duration `mapstructure:"pacing_max"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	CycleBudget   time.Duration `mapstructure:"cycle_budget"`
}

// FXConfig holds the exchange-rate source settings.
type FXConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig holds the condition-grader model endpoint settings.
type ClassifierConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SeedsConfig drives the combinatorial seed keyword generator.
type SeedsConfig struct {
	Brands     []string `mapstructure:"brands"`
	Categories []string `mapstructure:"categories"`
	Modifiers  []string `mapstructure:"modifiers"`
	ShardID    int      `mapstructure:"shard_id"`
	ShardTotal int      `mapstructure:"shard_total"`
	Salt       int64    `mapstructure:"salt"`
}

// Node is one geographic marketplace context: a region with its TLD,
// currency, and the source adapters enabled there.
type Node struct {
	Region   string   `mapstructure:"region"`
	TLD      string   `mapstructure:"tld"`
	Currency string   `mapstructure:"currency"`
	Sources  []string `mapstructure:"sources"`
}

// LandedCost is the per-region import cost formula applied on top of the
// FX-converted USD price.
type LandedCost struct {
	DutyMultiplier  float64 `mapstructure:"duty_multiplier"`
	FlatShippingUSD float64 `mapstructure:"flat_shipping_usd"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads .env, then the YAML config file (optional), then environment
// overrides with the ORACLE_ prefix, and returns a populated Config.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ORACLE")
	// Nested keys map to underscored env names: postgres.host becomes
	// ORACLE_POSTGRES_HOST.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "oracle")
	v.SetDefault("postgres.password", "oracle123")
	v.SetDefault("postgres.dbname", "grail_oracle")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("server.listen_addr", ":8090")
	v.SetDefault("server.freshness_window", "10m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.offer_log_path", "./output/offers.csv")
	v.SetDefault("server.offer_log_enabled", true)

	v.SetDefault("browser.attempt_timeout", "45s")
	v.SetDefault("browser.selector_wait", "12s")
	v.SetDefault("browser.max_attempts", 3)
	v.SetDefault("browser.backoff_min", "1200ms")
	v.SetDefault("browser.backoff_max", "3200ms")
	v.SetDefault("browser.blocked_hosts", []string{
		"google-analytics.com", "googletagmanager.com", "doubleclick.net",
		"facebook.net", "hotjar.com", "criteo.com", "adsrvr.org",
	})
	v.SetDefault("browser.user_agents", []string{
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})

	v.SetDefault("scheduler.batch_size", 10)
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("scheduler.pacing_min", "1500ms")
	v.SetDefault("scheduler.pacing_max", "4s")
	v.SetDefault("scheduler.cycle_interval", "3h")
	v.SetDefault("scheduler.cycle_budget", "0")

	v.SetDefault("fx.endpoint", "https://open.er-api.com/v6/latest/USD")
	v.SetDefault("fx.cache_ttl", "6h")
	v.SetDefault("fx.timeout", "10s")

	v.SetDefault("classifier.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("classifier.model", "llama3")
	v.SetDefault("classifier.timeout", "20s")

	v.SetDefault("seeds.brands", []string{
		"Rolex", "Omega", "Nike", "Jordan", "Supreme", "Leica", "Cartier",
	})
	v.SetDefault("seeds.categories", []string{
		"Submariner", "Speedmaster", "Dunk Low", "1 Retro", "Box Logo Hoodie", "M6",
	})
	v.SetDefault("seeds.modifiers", []string{
		"", "vintage", "2020", "black", "limited",
	})
	v.SetDefault("seeds.shard_id", 0)
	v.SetDefault("seeds.shard_total", 1)
	v.SetDefault("seeds.salt", 7919)

	v.SetDefault("nodes", []map[string]any{
		{"region": "US", "tld": "com", "currency": "USD", "sources": []string{"ebay", "grailed"}},
		{"region": "JP", "tld": "com", "currency": "JPY", "sources": []string{"mercari", "yahooauctions"}},
		{"region": "UK", "tld": "co.uk", "currency": "GBP", "sources": []string{"ebay"}},
		{"region": "AU", "tld": "com.au", "currency": "AUD", "sources": []string{"ebay"}},
	})

	v.SetDefault("landed_cost", map[string]map[string]any{
		"US": {"duty_multiplier": 1.0, "flat_shipping_usd": 0.0},
		"JP": {"duty_multiplier": 1.10, "flat_shipping_usd": 65.0},
		"UK": {"duty_multiplier": 1.05, "flat_shipping_usd": 45.0},
		"AU": {"duty_multiplier": 1.05, "flat_shipping_usd": 55.0},
	})

	v.SetDefault("logging.level", "info")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Browser.MaxAttempts < 1 {
		return fmt.Errorf("browser.max_attempts must be at least 1")
	}
	if c.Browser.BackoffMin > c.Browser.BackoffMax {
		return fmt.Errorf("browser.backoff_min must not exceed browser.backoff_max")
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("scheduler.batch_size must be at least 1")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be at least 1")
	}
	if c.Scheduler.PacingMin > c.Scheduler.PacingMax {
		return fmt.Errorf("scheduler.pacing_min must not exceed scheduler.pacing_max")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one geographic node is required")
	}
	for _, n := range c.Nodes {
		if n.Region == "" || n.Currency == "" {
			return fmt.Errorf("node region and currency are required")
		}
		if len(n.Sources) == 0 {
			return fmt.Errorf("node %s has no sources enabled", n.Region)
		}
		if _, ok := c.LandedCost[n.Region]; !ok {
			return fmt.Errorf("node %s has no landed_cost entry", n.Region)
		}
	}
	if c.Seeds.ShardTotal < 1 {
		return fmt.Errorf("seeds.shard_total must be at least 1")
	}
	if c.Seeds.ShardID < 0 || c.Seeds.ShardID >= c.Seeds.ShardTotal {
		return fmt.Errorf("seeds.shard_id must be in [0, shard_total)")
	}
	if c.FX.Endpoint == "" {
		return fmt.Errorf("fx.endpoint is required")
	}
	if c.Classifier.Endpoint == "" {
		return fmt.Errorf("classifier.endpoint is required")
	}
	return nil
}
