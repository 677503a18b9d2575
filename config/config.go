package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Promotion PromotionConfig `mapstructure:"promotion"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig 为空 Addr 时关闭已处理事件缓存
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	ProcessedTTL time.Duration `mapstructure:"processed_ttl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type PaymentConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	SuccessURL       string        `mapstructure:"success_url"`
	CancelURL        string        `mapstructure:"cancel_url"`
	Currency         string        `mapstructure:"currency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	Burst            int           `mapstructure:"burst"`
}

// PromotionConfig 推广档位价格，键为档位名，值为十进制金额字符串
type PromotionConfig struct {
	DefaultTier string            `mapstructure:"default_tier"`
	Tiers       map[string]string `mapstructure:"tiers"`
}

type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"` // 逗号分隔，为空时使用日志发送器
	EmailTopic string `mapstructure:"email_topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // host:port of the OTLP HTTP collector
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load 读取配置：.env -> config.yaml -> 环境变量覆盖
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 无默认值的敏感项需显式绑定，否则 Unmarshal 读不到环境变量
	for _, key := range []string{
		"database.dsn", "jwt.secret", "payment.api_key", "payment.webhook_secret",
		"redis.addr", "redis.password", "kafka.brokers", "sentry.dsn",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.processed_ttl", 24*time.Hour)

	v.SetDefault("jwt.issuer", "sale-promotion")

	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.timeout", 15*time.Second)
	v.SetDefault("payment.rate_per_second", 20.0)
	v.SetDefault("payment.burst", 5)
	v.SetDefault("payment.webhook_tolerance", 5*time.Minute)

	v.SetDefault("promotion.default_tier", "featured")
	v.SetDefault("promotion.tiers", map[string]string{
		"featured":  "4.99",
		"spotlight": "9.99",
	})

	v.SetDefault("kafka.email_topic", "sale-emails")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.service_name", "sale-promotion")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate 检查必填项与档位价格
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("payment.webhook_secret is required")
	}
	if _, err := c.Promotion.Prices(); err != nil {
		return err
	}
	if _, ok := c.Promotion.Tiers[c.Promotion.DefaultTier]; !ok {
		return fmt.Errorf("promotion.default_tier %q has no price", c.Promotion.DefaultTier)
	}
	return nil
}

// Prices 解析档位价格
func (p PromotionConfig) Prices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.Tiers))
	for tier, raw := range p.Tiers {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("promotion tier %q: invalid price %q: %w", tier, raw, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("promotion tier %q: price must be positive", tier)
		}
		out[strings.ToLower(tier)] = price
	}
	return out, nil
}

// BrokerList 拆分 Kafka broker 列表
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
