package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Paystack  PaystackConfig  `yaml:"paystack"`
	Currency  CurrencyConfig  `yaml:"currency"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// PaystackConfig holds the gateway credentials. WebhookSecret signs inbound
// notifications (HMAC-SHA512 over the raw body); SecretKey authorizes
// outbound initialize/verify calls.
type PaystackConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
	CallbackURL   string `yaml:"callback_url"`
}

// CurrencyConfig pins the ledger's currency and the factor between the
// gateway's minor units and the ledger's major-unit decimals.
type CurrencyConfig struct {
	Code           string `yaml:"code"`
	MinorUnitScale int64  `yaml:"minor_unit_scale"`
}

type SweepConfig struct {
	Interval      Duration `yaml:"interval"`
	MaxPendingAge Duration `yaml:"max_pending_age"`
}

// Duration accepts "24h" style yaml values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Load reads the yaml file, with secrets overridable from the environment.
// A .env file is honored when present so local runs match deployment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if v := os.Getenv("PAYSTACK_SECRET_KEY"); v != "" {
		cfg.Paystack.SecretKey = v
	}
	if v := os.Getenv("PAYSTACK_WEBHOOK_SECRET"); v != "" {
		cfg.Paystack.WebhookSecret = v
	}
	if cfg.Currency.MinorUnitScale == 0 {
		cfg.Currency.MinorUnitScale = 100
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = Duration(time.Hour)
	}
	if cfg.Sweep.MaxPendingAge == 0 {
		cfg.Sweep.MaxPendingAge = Duration(24 * time.Hour)
	}
	return &cfg, nil
}
