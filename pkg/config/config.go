package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "dropstore"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Paygate      PaygateConfig
	Chat         ChatConfig
	Payment      PaymentConfig
	Poll         PollConfig
	Reaper       ReaperConfig
	Cron         CronConfig
	API          APIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Poll.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DROPSTORE_APP_ENV" required:"true"`
	Port         string `envconfig:"DROPSTORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DROPSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DROPSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DROPSTORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DROPSTORE_DB_DSN"`
	Driver string `envconfig:"DROPSTORE_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"DROPSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DROPSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DROPSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DROPSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DROPSTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DROPSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"DROPSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DROPSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DROPSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DROPSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DROPSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DROPSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DROPSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DROPSTORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DROPSTORE_AUTO_MIGRATE" default:"false"`
}

type PaygateConfig struct {
	BaseURL       string        `envconfig:"DROPSTORE_PAYGATE_BASE_URL" required:"true"`
	ServerKey     string        `envconfig:"DROPSTORE_PAYGATE_SERVER_KEY" required:"true"`
	ChargeTimeout time.Duration `envconfig:"DROPSTORE_PAYGATE_CHARGE_TIMEOUT" default:"10s"`
	PollTimeout   time.Duration `envconfig:"DROPSTORE_PAYGATE_POLL_TIMEOUT" default:"10s"`
}

type ChatConfig struct {
	BaseURL     string        `envconfig:"DROPSTORE_CHAT_BASE_URL" required:"true"`
	BotToken    string        `envconfig:"DROPSTORE_CHAT_BOT_TOKEN" required:"true"`
	SendTimeout time.Duration `envconfig:"DROPSTORE_CHAT_SEND_TIMEOUT" default:"15s"`
}

type PaymentConfig struct {
	TTL                time.Duration `envconfig:"DROPSTORE_PAYMENT_TTL" default:"15m"`
	RemovalGracePeriod time.Duration `envconfig:"DROPSTORE_PAYMENT_REMOVAL_GRACE" default:"1h"`
}

type PollConfig struct {
	BackoffSchedule []time.Duration `envconfig:"DROPSTORE_POLL_BACKOFF_SCHEDULE" default:"5s,15s,30s,60s"`
	MaxAttempts     int             `envconfig:"DROPSTORE_POLL_MAX_ATTEMPTS" default:"20"`
}

func (p PollConfig) validate() error {
	if len(p.BackoffSchedule) == 0 {
		return fmt.Errorf("poll backoff schedule requires at least one delay")
	}
	for _, d := range p.BackoffSchedule {
		if d <= 0 {
			return fmt.Errorf("poll backoff delays must be positive, got %s", d)
		}
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive, got %d", p.MaxAttempts)
	}
	return nil
}

type ReaperConfig struct {
	Interval time.Duration `envconfig:"DROPSTORE_REAPER_INTERVAL" default:"1m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DROPSTORE_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"DROPSTORE_CRON_LOCK_TTL" default:"10m"`
}

type APIConfig struct {
	BotToken string `envconfig:"DROPSTORE_API_BOT_TOKEN" required:"true"`
}
