package config

const EnvPrefix = "LOCALCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	EnvAppEnv   = "LOCALCART_APP_ENV"
	EnvPort     = "LOCALCART_APP_PORT"
	EnvLogLevel = "LOCALCART_LOG_LEVEL"

	EnvDBDriver = "LOCALCART_DB_DRIVER"
	EnvDBDSN    = "LOCALCART_DB_DSN"
	EnvDBPath   = "LOCALCART_DB_PATH"

	EnvRedisURL = "LOCALCART_REDIS_URL"

	EnvCartDefaultTTL = "LOCALCART_CART_DEFAULT_TTL"

	EnvRemoteBaseURL = "LOCALCART_REMOTE_BASE_URL"
	EnvRemoteTimeout = "LOCALCART_REMOTE_TIMEOUT"

	EnvConnectivityInterval = "LOCALCART_CONNECTIVITY_INTERVAL"
	EnvConnectivityTimeout  = "LOCALCART_CONNECTIVITY_TIMEOUT"

	EnvCacheSellerDemandCapacity    = "LOCALCART_CACHE_SELLER_DEMAND_CAPACITY"
	EnvCacheSellerDemandTTL         = "LOCALCART_CACHE_SELLER_DEMAND_TTL"
	EnvCachePriceCoachCapacity      = "LOCALCART_CACHE_PRICE_COACH_CAPACITY"
	EnvCachePriceCoachTTL           = "LOCALCART_CACHE_PRICE_COACH_TTL"
	EnvCacheRecommendationsCapacity = "LOCALCART_CACHE_RECOMMENDATIONS_CAPACITY"
	EnvCacheRecommendationsTTL      = "LOCALCART_CACHE_RECOMMENDATIONS_TTL"

	EnvSchedulerInterval = "LOCALCART_SCHEDULER_INTERVAL"
)
