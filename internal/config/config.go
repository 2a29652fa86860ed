package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Billing   BillingConfig   `mapstructure:"billing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Email     EmailConfig     `mapstructure:"email"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	App       AppConfig       `mapstructure:"app"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// BillingConfig holds the Lemon Squeezy integration settings. The
// variant ids decide the billing strategy for every new subscription:
// monthly maps to usage-based, yearly to quantity-based.
type BillingConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	SigningSecret      string  `mapstructure:"signing_secret"`
	BaseURL            string  `mapstructure:"base_url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	MonthlyVariantID   int64   `mapstructure:"monthly_variant_id"`
	YearlyVariantID    int64   `mapstructure:"yearly_variant_id"`
	YearlyPricePerSeat float64 `mapstructure:"yearly_price_per_seat"`
}

type RateLimitConfig struct {
	InvitesPerWindow int `mapstructure:"invites_per_window"`
	WindowSeconds    int `mapstructure:"window_seconds"`
	HTTPRate         int `mapstructure:"http_rate"`
	HTTPBurst        int `mapstructure:"http_burst"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WorkerConfig struct {
	BatchSize            int `mapstructure:"batch_size"`
	PollIntervalSeconds  int `mapstructure:"poll_interval_seconds"`
	RetryAttempts        int `mapstructure:"retry_attempts"`
	RetryDelaySeconds    int `mapstructure:"retry_delay_seconds"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

type AppConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("billing.base_url", "https://api.lemonsqueezy.com")
	viper.SetDefault("billing.timeout_seconds", 10)
	viper.SetDefault("rate_limit.invites_per_window", 20)
	viper.SetDefault("rate_limit.window_seconds", 3600)
	viper.SetDefault("rate_limit.http_rate", 50)
	viper.SetDefault("rate_limit.http_burst", 100)
	viper.SetDefault("worker.batch_size", 100)
	viper.SetDefault("worker.poll_interval_seconds", 5)
	viper.SetDefault("worker.retry_attempts", 3)
	viper.SetDefault("worker.retry_delay_seconds", 2)
	viper.SetDefault("worker.sweep_interval_minutes", 60)
}

func (c *Config) validate() error {
	if c.Billing.MonthlyVariantID == 0 || c.Billing.YearlyVariantID == 0 {
		return fmt.Errorf("billing variant ids must be configured")
	}
	if c.Billing.MonthlyVariantID == c.Billing.YearlyVariantID {
		return fmt.Errorf("monthly and yearly variant ids must differ")
	}
	if c.Billing.YearlyPricePerSeat <= 0 {
		return fmt.Errorf("yearly price per seat must be positive")
	}
	return nil
}
