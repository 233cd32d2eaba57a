package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CONTEMPLA_DB_DSN"
	EnvDBHost = "CONTEMPLA_DB_HOST"
	EnvDBUser = "CONTEMPLA_DB_USER"
	EnvDBName = "CONTEMPLA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Commission   CommissionConfig
	Expiry       ExpiryConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Commission.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CONTEMPLA_APP_ENV" required:"true"`
	Port         string `envconfig:"CONTEMPLA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CONTEMPLA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CONTEMPLA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CONTEMPLA_DB_DSN"`
	Driver string `envconfig:"CONTEMPLA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CONTEMPLA_DB_HOST"`
	LegacyPort     int    `envconfig:"CONTEMPLA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CONTEMPLA_DB_USER"`
	LegacyPassword string `envconfig:"CONTEMPLA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CONTEMPLA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CONTEMPLA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CONTEMPLA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CONTEMPLA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONTEMPLA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONTEMPLA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONTEMPLA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CONTEMPLA_REDIS_ADDR"`
	Password     string        `envconfig:"CONTEMPLA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CONTEMPLA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CONTEMPLA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CONTEMPLA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CONTEMPLA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONTEMPLA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CONTEMPLA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CommissionConfig carries the per-level cascade rate schedule. Rates are
// fractions of the entry amount, indexed by distance up the referral chain.
type CommissionConfig struct {
	LevelRates []string `envconfig:"CONTEMPLA_COMMISSION_LEVEL_RATES" default:"0.20,0.10,0.05"`
}

// Rates parses the configured schedule into decimals.
func (c CommissionConfig) Rates() ([]decimal.Decimal, error) {
	rates := make([]decimal.Decimal, 0, len(c.LevelRates))
	for _, raw := range c.LevelRates {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid commission rate %q: %w", raw, err)
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

func (c CommissionConfig) validate() error {
	rates, err := c.Rates()
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		return fmt.Errorf("at least one commission level rate is required")
	}
	total := decimal.Zero
	for _, rate := range rates {
		if rate.IsNegative() {
			return fmt.Errorf("commission rates must be non-negative, got %s", rate)
		}
		total = total.Add(rate)
	}
	if total.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rates sum to %s, exceeding the entry amount", total)
	}
	return nil
}

type ExpiryConfig struct {
	ReservationWindow time.Duration `envconfig:"CONTEMPLA_RESERVATION_EXPIRY_WINDOW" default:"72h"`
	NudgeLead         time.Duration `envconfig:"CONTEMPLA_RESERVATION_NUDGE_LEAD" default:"24h"`
	Interval          time.Duration `envconfig:"CONTEMPLA_EXPIRY_INTERVAL" default:"15m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CONTEMPLA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CONTEMPLA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CONTEMPLA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CONTEMPLA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CONTEMPLA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ContemplationTopic string `envconfig:"CONTEMPLA_PUBSUB_CONTEMPLATION_TOPIC" default:"contempla-contemplation-events"`
	CommissionTopic    string `envconfig:"CONTEMPLA_PUBSUB_COMMISSION_TOPIC" default:"contempla-commission-events"`
	ParticipantTopic   string `envconfig:"CONTEMPLA_PUBSUB_PARTICIPANT_TOPIC" default:"contempla-participant-events"`
}

// RateLimitConfig throttles write traffic per client IP. A zero limit or
// window disables the middleware.
type RateLimitConfig struct {
	WriteLimit  int64         `envconfig:"CONTEMPLA_RATE_LIMIT_WRITES" default:"60"`
	WriteWindow time.Duration `envconfig:"CONTEMPLA_RATE_LIMIT_WINDOW" default:"1m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CONTEMPLA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CONTEMPLA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CONTEMPLA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
