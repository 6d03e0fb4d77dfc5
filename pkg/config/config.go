package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Cache        CacheConfig
	Scheduler    SchedulerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	durations := map[string]time.Duration{
		EnvCartDefaultTTL:          c.Cart.DefaultTTL,
		EnvRemoteTimeout:           c.Remote.Timeout,
		EnvConnectivityInterval:    c.Connectivity.Interval,
		EnvConnectivityTimeout:     c.Connectivity.Timeout,
		EnvCacheSellerDemandTTL:    c.Cache.SellerDemandTTL,
		EnvCachePriceCoachTTL:      c.Cache.PriceCoachTTL,
		EnvCacheRecommendationsTTL: c.Cache.RecommendationsTTL,
		EnvSchedulerInterval:       c.Scheduler.Interval,
	}
	for key, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	capacities := map[string]int{
		EnvCacheSellerDemandCapacity:    c.Cache.SellerDemandCapacity,
		EnvCachePriceCoachCapacity:      c.Cache.PriceCoachCapacity,
		EnvCacheRecommendationsCapacity: c.Cache.RecommendationsCapacity,
	}
	for key, value := range capacities {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("%s is required", EnvRemoteBaseURL)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"LOCALCART_APP_ENV" default:"dev"`
	Port         string `envconfig:"LOCALCART_APP_PORT" default:"8765"`
	LogLevel     string `envconfig:"LOCALCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOCALCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOCALCART_SERVICE_KIND" default:"cartd"`
}

type DBConfig struct {
	Driver string `envconfig:"LOCALCART_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"LOCALCART_DB_DSN"`
	Path   string `envconfig:"LOCALCART_DB_PATH" default:"localcart.db"`

	BusyTimeout     time.Duration `envconfig:"LOCALCART_DB_BUSY_TIMEOUT" default:"5s"`
	MaxOpenConns    int           `envconfig:"LOCALCART_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"LOCALCART_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"LOCALCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOCALCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite store.
func (db DBConfig) IsSQLite() bool {
	return db.Driver == DriverSQLite
}

type RedisConfig struct {
	URL          string        `envconfig:"LOCALCART_REDIS_URL"`
	Address      string        `envconfig:"LOCALCART_REDIS_ADDR"`
	Password     string        `envconfig:"LOCALCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOCALCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOCALCART_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"LOCALCART_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"LOCALCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOCALCART_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"LOCALCART_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate        bool `envconfig:"LOCALCART_AUTO_MIGRATE" default:"true"`
	ConnectivityProbe  bool `envconfig:"LOCALCART_FEATURE_CONNECTIVITY_PROBE" default:"true"`
	ScheduledEviction  bool `envconfig:"LOCALCART_FEATURE_SCHEDULED_EVICTION" default:"true"`
	ServeMetrics       bool `envconfig:"LOCALCART_FEATURE_METRICS" default:"true"`
	AssumeOnlineAtBoot bool `envconfig:"LOCALCART_ASSUME_ONLINE" default:"true"`
}

type CartConfig struct {
	DefaultTTL      time.Duration `envconfig:"LOCALCART_CART_DEFAULT_TTL" default:"2h"`
	SnapshotWait    time.Duration `envconfig:"LOCALCART_CART_SNAPSHOT_WAIT" default:"2s"`
	StreamHeartbeat time.Duration `envconfig:"LOCALCART_CART_STREAM_HEARTBEAT" default:"15s"`
}

type CheckoutConfig struct {
	PaymentMethod string `envconfig:"LOCALCART_CHECKOUT_PAYMENT_METHOD" default:"Card"`
}

type RemoteConfig struct {
	BaseURL            string        `envconfig:"LOCALCART_REMOTE_BASE_URL" default:"http://localhost:8000/api/v1"`
	APIToken           string        `envconfig:"LOCALCART_REMOTE_API_TOKEN"`
	Timeout            time.Duration `envconfig:"LOCALCART_REMOTE_TIMEOUT" default:"10s"`
	BreakerMaxFailures uint32        `envconfig:"LOCALCART_REMOTE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"LOCALCART_REMOTE_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type ConnectivityConfig struct {
	ProbeURL string        `envconfig:"LOCALCART_CONNECTIVITY_PROBE_URL" default:"https://clients3.google.com/generate_204"`
	Interval time.Duration `envconfig:"LOCALCART_CONNECTIVITY_INTERVAL" default:"15s"`
	Timeout  time.Duration `envconfig:"LOCALCART_CONNECTIVITY_TIMEOUT" default:"3s"`
}

type CacheConfig struct {
	SellerDemandCapacity    int           `envconfig:"LOCALCART_CACHE_SELLER_DEMAND_CAPACITY" default:"32"`
	SellerDemandTTL         time.Duration `envconfig:"LOCALCART_CACHE_SELLER_DEMAND_TTL" default:"5m"`
	PriceCoachCapacity      int           `envconfig:"LOCALCART_CACHE_PRICE_COACH_CAPACITY" default:"64"`
	PriceCoachTTL           time.Duration `envconfig:"LOCALCART_CACHE_PRICE_COACH_TTL" default:"10m"`
	RecommendationsCapacity int           `envconfig:"LOCALCART_CACHE_RECOMMENDATIONS_CAPACITY" default:"16"`
	RecommendationsTTL      time.Duration `envconfig:"LOCALCART_CACHE_RECOMMENDATIONS_TTL" default:"15m"`
}

type SchedulerConfig struct {
	Interval time.Duration `envconfig:"LOCALCART_SCHEDULER_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"LOCALCART_SCHEDULER_LOCK_KEY" default:"localcart:scheduler:lock"`
	LockTTL  time.Duration `envconfig:"LOCALCART_SCHEDULER_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) normalize() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case DriverSQLite:
		if db.DSN == "" {
			if strings.TrimSpace(db.Path) == "" {
				return fmt.Errorf("either %s or %s is required for sqlite", EnvDBDSN, EnvDBPath)
			}
			db.DSN = fmt.Sprintf("file:%s", db.Path)
		}
	case DriverPostgres:
		if db.DSN == "" {
			return fmt.Errorf("%s is required for postgres", EnvDBDSN)
		}
	default:
		return fmt.Errorf("unsupported %s %q (expected %s or %s)", EnvDBDriver, db.Driver, DriverSQLite, DriverPostgres)
	}
	return nil
}
