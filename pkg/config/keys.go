package config

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvPort     = "BAZAAR_APP_PORT"
	EnvLogLevel = "BAZAAR_LOG_LEVEL"

	EnvDBDSN  = "BAZAAR_DB_DSN"
	EnvDBHost = "BAZAAR_DB_HOST"
	EnvDBUser = "BAZAAR_DB_USER"
	EnvDBName = "BAZAAR_DB_NAME"

	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret                 = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer                 = "BAZAAR_JWT_ISSUER"
	EnvJWTExpMins                = "BAZAAR_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes    = "BAZAAR_REFRESH_TOKEN_TTL_MINUTES"
	EnvWalletStartingBalance     = "BAZAAR_WALLET_STARTING_BALANCE"
	EnvGCPProjectID              = "BAZAAR_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic         = "BAZAAR_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationSub     = "BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvCronOutboxRetention       = "BAZAAR_CRON_OUTBOX_RETENTION"
	EnvCronNotificationRetention = "BAZAAR_CRON_NOTIFICATION_RETENTION"
	EnvCronDeadLetterRetention   = "BAZAAR_CRON_DLQ_RETENTION"
	EnvCronJobTimeout            = "BAZAAR_CRON_JOB_TIMEOUT"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
