// Package config consolidates the system's recognized options (spec
// §6) into one typed, validated struct loaded at boot — the teacher's
// services each load a YAML Config in main.go; this is the
// single-struct generalization spec §9 Design Notes calls for.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ScoringWeights are the per-component weights from spec §4.1; they
// must sum to 1.0 ± 1e-9 (spec §8 property 4).
type ScoringWeights struct {
	Bill       float64 `yaml:"bill"`
	Ownership  float64 `yaml:"ownership"`
	Timeline   float64 `yaml:"timeline"`
	Location   float64 `yaml:"location"`
	Engagement float64 `yaml:"engagement"`
	Credit     float64 `yaml:"credit"`
	Objections float64 `yaml:"objections"`
	NYCMarket  float64 `yaml:"nyc_market"`
}

// TierThresholds are the score cutoffs for premium/standard/basic
// (spec §4.1; recalibration adjusts these within a ±5 safety band per
// §4.8).
type TierThresholds struct {
	Premium  int `yaml:"premium"`
	Standard int `yaml:"standard"`
	Basic    int `yaml:"basic"`
}

// PricingConfig carries base prices per tier and the surge cap (spec
// §4.3, §6).
type PricingConfig struct {
	BasePremium  decimal.Decimal `yaml:"-"`
	BaseStandard decimal.Decimal `yaml:"-"`
	BaseBasic    decimal.Decimal `yaml:"-"`
	SurgeCap     float64         `yaml:"surge_cap"`

	BasePremiumStr  string `yaml:"base_premium"`
	BaseStandardStr string `yaml:"base_standard"`
	BaseBasicStr    string `yaml:"base_basic"`
}

// RoutingConfig carries routing-level tunables (spec §6).
type RoutingConfig struct {
	MaxDispatchAttemptsPerLead int `yaml:"max_dispatch_attempts_per_lead"`
}

// RetryConfig carries dispatch backoff tunables (spec §4.5, §6).
type RetryConfig struct {
	BaseMS      int `yaml:"base_ms"`
	MaxMS       int `yaml:"max_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// SessionConfig carries conversation-tracker tunables (spec §4.2, §6).
type SessionConfig struct {
	IdleTTLSeconds int `yaml:"idle_ttl_seconds"`
}

// LedgerConfig carries ledger/payment tunables (spec §4.7, §6).
type LedgerConfig struct {
	PaymentTermsDays int `yaml:"payment_terms_days"`
}

// ReconciliationConfig carries reconciliation tunables (spec §4.7,
// §6).
type ReconciliationConfig struct {
	MinorThresholdUSD float64 `yaml:"minor_threshold_usd"`
}

// PlatformConfig mirrors one `platform.{code}.*` block (spec §6).
type PlatformConfig struct {
	Code           string   `yaml:"code"`
	DeliveryMethod string   `yaml:"delivery_method"`
	Endpoint       string   `yaml:"endpoint"`
	Credential     string   `yaml:"credential"`
	AcceptedTiers  []string `yaml:"accepted_tiers"`
	MinScore       int      `yaml:"min_score"`
	MaxScore       int      `yaml:"max_score"`
	MaxDaily       int      `yaml:"max_daily"`
	CommissionRate float64  `yaml:"commission_rate"`
	SLAMinutes     int      `yaml:"sla_minutes"`
}

// RedisConfig and PostgresConfig mirror IAROS's per-service
// connection blocks (services/*/main.go Config).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// KafkaConfig carries event-bus broker/consumer-group tunables (spec
// §2 event bus, §6).
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// MongoConfig carries the snapshot store connection tunables (spec §3
// ScoreSnapshot history).
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// ServerConfig carries cmd/coreserver's two HTTP surfaces: the gin
// inbound event ingress and the gorilla/mux admin/health mux (spec §6,
// §2+ ambient stack).
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AdminPort int    `yaml:"admin_port"`
}

// Config is the single recognized-options struct loaded at boot (spec
// §6, §9 Design Notes).
type Config struct {
	Scoring struct {
		Weights         ScoringWeights `yaml:"weights"`
		TierThresholds  TierThresholds `yaml:"tier_thresholds"`
	} `yaml:"scoring"`

	Pricing         PricingConfig         `yaml:"pricing"`
	Routing         RoutingConfig         `yaml:"routing"`
	DispatchRetry   RetryConfig           `yaml:"dispatch_retry"`
	Session         SessionConfig         `yaml:"session"`
	Ledger          LedgerConfig          `yaml:"ledger"`
	Reconciliation  ReconciliationConfig  `yaml:"reconciliation"`
	Platforms       []PlatformConfig      `yaml:"platforms"`
	Redis           RedisConfig           `yaml:"redis"`
	Postgres        PostgresConfig        `yaml:"postgres"`
	Kafka           KafkaConfig           `yaml:"kafka"`
	Mongo           MongoConfig           `yaml:"mongo"`
	Server          ServerConfig          `yaml:"server"`

	FeedbackTargetConversionRate float64 `yaml:"feedback_target_conversion_rate"`
}

// Default returns the configuration matching spec §6's documented
// defaults.
func Default() *Config {
	var c Config
	c.Scoring.Weights = ScoringWeights{
		Bill: 0.25, Ownership: 0.20, Timeline: 0.15, Location: 0.15,
		Engagement: 0.10, Credit: 0.10, Objections: 0.03, NYCMarket: 0.02,
	}
	c.Scoring.TierThresholds = TierThresholds{Premium: 85, Standard: 70, Basic: 50}
	c.Pricing.BasePremiumStr = "250"
	c.Pricing.BaseStandardStr = "150"
	c.Pricing.BaseBasicStr = "100"
	c.Pricing.SurgeCap = 1.50
	c.Routing.MaxDispatchAttemptsPerLead = 3
	c.DispatchRetry = RetryConfig{BaseMS: 2000, MaxMS: 600_000, MaxAttempts: 5}
	c.Session.IdleTTLSeconds = 1800
	c.Ledger.PaymentTermsDays = 30
	c.Reconciliation.MinorThresholdUSD = 100
	c.Redis.Addr = "localhost:6379"
	c.Postgres.SSLMode = "disable"
	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.ConsumerGroup = "aurum-core"
	c.Mongo.URI = "mongodb://localhost:27017"
	c.Mongo.Database = "aurum_core"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.AdminPort = 9090
	c.FeedbackTargetConversionRate = 0.60
	c.hydrateDecimals()
	return &c
}

func (c *Config) hydrateDecimals() {
	c.Pricing.BasePremium, _ = decimal.NewFromString(nz(c.Pricing.BasePremiumStr, "250"))
	c.Pricing.BaseStandard, _ = decimal.NewFromString(nz(c.Pricing.BaseStandardStr, "150"))
	c.Pricing.BaseBasic, _ = decimal.NewFromString(nz(c.Pricing.BaseBasicStr, "100"))
}

func nz(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Load reads a YAML file at path, layering it over Default(), then
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.hydrateDecimals()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants spec §9 Design Notes requires at
// boot: weights sum to 1.0, thresholds are monotonically increasing,
// retry bounds are sane.
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	sum := w.Bill + w.Ownership + w.Timeline + w.Location + w.Engagement + w.Credit + w.Objections + w.NYCMarket
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("config: scoring weights must sum to 1.0, got %f", sum)
	}

	th := c.Scoring.TierThresholds
	if !(th.Basic < th.Standard && th.Standard < th.Premium) {
		return fmt.Errorf("config: tier thresholds must satisfy basic < standard < premium, got %+v", th)
	}
	if th.Basic < 0 || th.Premium > 100 {
		return fmt.Errorf("config: tier thresholds must lie within [0,100], got %+v", th)
	}

	if c.DispatchRetry.MaxAttempts < 0 {
		return fmt.Errorf("config: dispatch_retry.max_attempts must be >= 0")
	}
	if c.DispatchRetry.BaseMS <= 0 || c.DispatchRetry.MaxMS < c.DispatchRetry.BaseMS {
		return fmt.Errorf("config: dispatch_retry base_ms/max_ms out of order")
	}
	if c.Routing.MaxDispatchAttemptsPerLead <= 0 {
		return fmt.Errorf("config: routing.max_dispatch_attempts_per_lead must be > 0")
	}
	if c.Session.IdleTTLSeconds <= 0 {
		return fmt.Errorf("config: session.idle_ttl_seconds must be > 0")
	}
	if c.Pricing.SurgeCap < 1.0 {
		return fmt.Errorf("config: pricing.surge_cap must be >= 1.0")
	}
	if c.Server.Port <= 0 || c.Server.AdminPort <= 0 {
		return fmt.Errorf("config: server.port and server.admin_port must be > 0")
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("config: server.port and server.admin_port must differ")
	}
	return nil
}
