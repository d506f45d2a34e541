package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Vault        VaultConfig
	GoogleAds    GoogleAdsConfig
	MetaAds      MetaAdsConfig
	Analytics    AnalyticsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Vault.MasterKeyBytes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ADBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"ADBOARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ADBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ADBOARD_DB_DSN" required:"true"`
	Driver string `envconfig:"ADBOARD_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"ADBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADBOARD_REDIS_URL" required:"true"`
	Password     string        `envconfig:"ADBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CacheConfig sizes the four in-process cache domains. TTLs are the freshness
// windows the dashboard tolerates per data category.
type CacheConfig struct {
	CampaignTTL        time.Duration `envconfig:"ADBOARD_CACHE_CAMPAIGN_TTL" default:"15m"`
	CampaignMaxEntries int           `envconfig:"ADBOARD_CACHE_CAMPAIGN_MAX_ENTRIES" default:"512"`

	HistoricalTTL        time.Duration `envconfig:"ADBOARD_CACHE_HISTORICAL_TTL" default:"60m"`
	HistoricalMaxEntries int           `envconfig:"ADBOARD_CACHE_HISTORICAL_MAX_ENTRIES" default:"256"`

	ClientTTL        time.Duration `envconfig:"ADBOARD_CACHE_CLIENT_TTL" default:"5m"`
	ClientMaxEntries int           `envconfig:"ADBOARD_CACHE_CLIENT_MAX_ENTRIES" default:"1024"`

	OverviewTTL        time.Duration `envconfig:"ADBOARD_CACHE_OVERVIEW_TTL" default:"10m"`
	OverviewMaxEntries int           `envconfig:"ADBOARD_CACHE_OVERVIEW_MAX_ENTRIES" default:"64"`
}

type VaultConfig struct {
	MasterKey string `envconfig:"ADBOARD_VAULT_MASTER_KEY" required:"true"`
}

// MasterKeyBytes decodes the configured master key and enforces its length.
func (v VaultConfig) MasterKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v.MasterKey))
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", EnvVaultMasterKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", EnvVaultMasterKey, len(key))
	}
	return key, nil
}

type GoogleAdsConfig struct {
	DeveloperToken      string        `envconfig:"ADBOARD_GOOGLE_ADS_DEVELOPER_TOKEN" required:"true"`
	OAuthClientID       string        `envconfig:"ADBOARD_GOOGLE_ADS_OAUTH_CLIENT_ID" required:"true"`
	OAuthClientSecret   string        `envconfig:"ADBOARD_GOOGLE_ADS_OAUTH_CLIENT_SECRET" required:"true"`
	DefaultRefreshToken string        `envconfig:"ADBOARD_GOOGLE_ADS_DEFAULT_REFRESH_TOKEN"`
	RequestTimeout      time.Duration `envconfig:"ADBOARD_GOOGLE_ADS_REQUEST_TIMEOUT" default:"20s"`
}

type MetaAdsConfig struct {
	AppID          string        `envconfig:"ADBOARD_META_ADS_APP_ID" required:"true"`
	AppSecret      string        `envconfig:"ADBOARD_META_ADS_APP_SECRET" required:"true"`
	DefaultToken   string        `envconfig:"ADBOARD_META_ADS_DEFAULT_ACCESS_TOKEN"`
	RequestTimeout time.Duration `envconfig:"ADBOARD_META_ADS_REQUEST_TIMEOUT" default:"20s"`

	// ConversionActions are the graph action types counted as conversions.
	ConversionActions []string `envconfig:"ADBOARD_META_ADS_CONVERSION_ACTIONS" default:"offsite_conversion,purchase,lead,complete_registration"`
}

type AnalyticsConfig struct {
	ServiceAccountEmail string        `envconfig:"ADBOARD_ANALYTICS_SERVICE_ACCOUNT_EMAIL" required:"true"`
	PrivateKey          string        `envconfig:"ADBOARD_ANALYTICS_PRIVATE_KEY" required:"true"`
	RequestTimeout      time.Duration `envconfig:"ADBOARD_ANALYTICS_REQUEST_TIMEOUT" default:"20s"`
}

// PrivateKeyPEM returns the configured key with escaped newlines restored,
// which is how single-line env files usually carry PEM blocks.
func (a AnalyticsConfig) PrivateKeyPEM() string {
	return strings.ReplaceAll(a.PrivateKey, `\n`, "\n")
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ADBOARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ADBOARD_AUTO_MIGRATE" default:"false"`
}
