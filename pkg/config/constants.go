package config

// EnvPrefix namespaces every environment variable this service reads.
const EnvPrefix = "ADBOARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "ADBOARD_APP_ENV"
	EnvPort           = "ADBOARD_APP_PORT"
	EnvDBDSN          = "ADBOARD_DB_DSN"
	EnvRedisURL       = "ADBOARD_REDIS_URL"
	EnvVaultMasterKey = "ADBOARD_VAULT_MASTER_KEY"
)
