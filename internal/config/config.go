package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	MySQL        MySQLConfig        `mapstructure:"mysql"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Probe        ProbeConfig        `mapstructure:"probe"`
	Notification NotificationConfig `mapstructure:"notification"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Settings     SettingsConfig     `mapstructure:"settings"`
}

type ServerConfig struct {
	Environment string   `mapstructure:"environment"`
	Port        string   `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageConfig selects the backing store: "mysql" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	DevPass   bool   `mapstructure:"dev_pass"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

type SchedulerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	TickLogSize  int           `mapstructure:"tick_log_size"`
}

type ProbeConfig struct {
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	DefaultInterval   time.Duration `mapstructure:"default_interval"`
	Concurrency       int           `mapstructure:"concurrency"`
	TLSInterval       time.Duration `mapstructure:"tls_interval"`
	TLSPort           int           `mapstructure:"tls_port"`
	TLSTimeout        time.Duration `mapstructure:"tls_timeout"`
	ExpiryWarningDays int           `mapstructure:"expiry_warning_days"`
}

type NotificationConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	TemplateMode  string        `mapstructure:"template_mode"`
	TemplateDir   string        `mapstructure:"template_dir"`
	LogoPath      string        `mapstructure:"logo_path"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TLS      string        `mapstructure:"tls"`
}

type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

type SettingsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("mysql.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("ratelimit.requests_per_second", 5)

	v.SetDefault("scheduler.pool_size", 4)
	v.SetDefault("scheduler.drain_timeout", 10*time.Second)
	v.SetDefault("scheduler.tick_log_size", 500)

	v.SetDefault("probe.http_timeout", 10*time.Second)
	v.SetDefault("probe.default_interval", time.Minute)
	v.SetDefault("probe.concurrency", 16)
	v.SetDefault("probe.tls_interval", 12*time.Hour)
	v.SetDefault("probe.tls_port", 443)
	v.SetDefault("probe.tls_timeout", 10*time.Second)
	v.SetDefault("probe.expiry_warning_days", 7)

	v.SetDefault("notification.check_interval", 10*time.Second)
	v.SetDefault("notification.batch_size", 50)
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.retry_count", 3)
	v.SetDefault("notification.retry_delay", 5*time.Second)
	v.SetDefault("notification.cooldown", 10*time.Minute)
	v.SetDefault("notification.template_mode", "hybrid")
	v.SetDefault("notification.template_dir", "./templates")
	v.SetDefault("notification.drain_timeout", 15*time.Second)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.timeout", 15*time.Second)
	v.SetDefault("smtp.tls", "mandatory")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("webhook.method", "POST")
	v.SetDefault("webhook.timeout", 10*time.Second)

	v.SetDefault("settings.refresh_interval", time.Minute)
}

// Load reads config.yaml from . or ./config, overlaid by PULSE_* environment
// variables. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
