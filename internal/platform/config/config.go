package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Paystack    PaystackConfig    `mapstructure:"paystack"`
	PayFast     PayFastConfig     `mapstructure:"payfast"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Ops         OpsConfig         `mapstructure:"ops"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type IdempotencyConfig struct {
	// Backend is "sqlite" or "redis".
	Backend    string        `mapstructure:"backend"`
	WebhookTTL time.Duration `mapstructure:"webhook_ttl"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PaystackConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	SecretName      string        `mapstructure:"secret_name"`
	Timeout         time.Duration `mapstructure:"timeout"`
	VerifySignature bool          `mapstructure:"verify_signature"`
	CallbackURL     string        `mapstructure:"callback_url"`
}

type PayFastConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ProcessURL        string `mapstructure:"process_url"`
	MerchantIDSecret  string `mapstructure:"merchant_id_secret"`
	MerchantKeySecret string `mapstructure:"merchant_key_secret"`
	PassphraseSecret  string `mapstructure:"passphrase_secret"`
	ReturnURL         string `mapstructure:"return_url"`
	CancelURL         string `mapstructure:"cancel_url"`
	NotifyURL         string `mapstructure:"notify_url"`
}

type NotifyConfig struct {
	DiscordSecretName string        `mapstructure:"discord_secret_name"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type JobsConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
	PurgeBatchSize  int           `mapstructure:"purge_batch_size"`
	PurgeMaxBatches int           `mapstructure:"purge_max_batches"`
	ResyncHour      int           `mapstructure:"resync_hour"`
	ItemTimeout     time.Duration `mapstructure:"item_timeout"`
}

type OpsConfig struct {
	TokenSecretName string        `mapstructure:"token_secret_name"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
}

type RateLimitConfig struct {
	PublicPerMinute int `mapstructure:"public_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "file:data/memberpay.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("idempotency.backend", "sqlite")
	v.SetDefault("idempotency.webhook_ttl", 24*time.Hour)
	v.SetDefault("idempotency.key_prefix", "idem:")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("paystack.enabled", true)
	v.SetDefault("paystack.base_url", "https://api.paystack.co")
	v.SetDefault("paystack.secret_name", "paystack")
	v.SetDefault("paystack.timeout", 10*time.Second)

	v.SetDefault("payfast.enabled", true)
	v.SetDefault("payfast.process_url", "https://www.payfast.co.za/eng/process")
	v.SetDefault("payfast.merchant_id_secret", "payfast_merchant_id")
	v.SetDefault("payfast.merchant_key_secret", "payfast_merchant_key")
	v.SetDefault("payfast.passphrase_secret", "payfast_passphrase")

	v.SetDefault("notify.discord_secret_name", "discord_webhook_url")
	v.SetDefault("notify.timeout", 5*time.Second)

	v.SetDefault("jobs.sweep_interval", time.Hour)
	v.SetDefault("jobs.purge_interval", 6*time.Hour)
	v.SetDefault("jobs.purge_batch_size", 200)
	v.SetDefault("jobs.purge_max_batches", 10)
	v.SetDefault("jobs.resync_hour", 2)
	v.SetDefault("jobs.item_timeout", 15*time.Second)

	v.SetDefault("ops.token_secret_name", "ops_token_secret")
	v.SetDefault("ops.token_ttl", 10*time.Minute)

	v.SetDefault("rate_limit.public_per_minute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path (optional), a .env file in the working
// directory (optional) and the process environment, in increasing precedence.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Viper returns the raw viper instance for the same sources Load uses. The
// secrets provider reads from it.
func Viper(path string) (*viper.Viper, error) {
	return newViper(path)
}

func newViper(path string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, err
				}
			}
		}
	}

	return v, nil
}
