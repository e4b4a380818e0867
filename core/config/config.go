package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Paths     PathsConfig
	Database  DatabaseConfig
	Whapi     WhapiConfig
	CloudAPI  CloudAPIConfig
	Heartbeat HeartbeatConfig
	Ingress   IngressConfig
	Pipeline  PipelineConfig
	Retry     RetryConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
	CredentialsKey  string // encrypts stored provider credentials; empty keeps them in plain text
}

// WhapiConfig configures the QR/session provider (gate + manager APIs).
type WhapiConfig struct {
	GateURL      string
	ManagerURL   string
	PartnerToken string
	ProjectID    string
	HTTPTimeout  time.Duration
	QRAttempts   int
	QRDelay      time.Duration
	ReauthDelay  time.Duration
	ExtendDays   int
}

type CloudAPIConfig struct {
	BaseURL     string
	Version     string
	HTTPTimeout time.Duration
}

type HeartbeatConfig struct {
	Enabled            bool
	Tick               time.Duration
	Interval           time.Duration
	CacheRefresh       time.Duration
	MaxStrikes         int
	VerificationWindow time.Duration
	AdminSyncInterval  time.Duration
	Concurrency        int
}

// IngressConfig bounds the inbound message filter and history replay.
type IngressConfig struct {
	DedupTTL       time.Duration
	DedupSweep     time.Duration
	MaxAge         time.Duration
	MaxFutureSkew  time.Duration
	HistoryLimit   int
	WebhookBaseURL string
}

type PipelineConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type TracingConfig struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
	SampleRate   float64
	ServiceName  string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig builds the configuration from viper (environment, .env and bound flags).
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "app.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azconnect:"),
		CredentialsKey:  getEnv("CREDENTIALS_KEY", ""),
	}

	whapiCfg := WhapiConfig{
		GateURL:      getEnv("WHAPI_GATE_URL", "https://gate.whapi.cloud"),
		ManagerURL:   getEnv("WHAPI_MANAGER_URL", "https://manager.whapi.cloud"),
		PartnerToken: getEnv("WHAPI_PARTNER_TOKEN", ""),
		ProjectID:    getEnv("WHAPI_PROJECT_ID", ""),
		HTTPTimeout:  getEnvDuration("WHAPI_HTTP_TIMEOUT", 15*time.Second),
		QRAttempts:   getEnvInt("WHAPI_QR_ATTEMPTS", 5),
		QRDelay:      getEnvDuration("WHAPI_QR_DELAY", 3*time.Second),
		ReauthDelay:  getEnvDuration("WHAPI_REAUTH_DELAY", 5*time.Second),
		ExtendDays:   getEnvInt("WHAPI_EXTEND_DAYS", 0),
	}

	cloudCfg := CloudAPIConfig{
		BaseURL:     getEnv("CLOUDAPI_BASE_URL", "https://graph.facebook.com"),
		Version:     getEnv("CLOUDAPI_VERSION", "v19.0"),
		HTTPTimeout: getEnvDuration("CLOUDAPI_HTTP_TIMEOUT", 15*time.Second),
	}

	hbCfg := HeartbeatConfig{
		Enabled:            getEnvBool("HEARTBEAT_ENABLED", true),
		Tick:               getEnvDuration("HEARTBEAT_TICK", time.Second),
		Interval:           getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		CacheRefresh:       getEnvDuration("HEARTBEAT_CACHE_REFRESH", time.Minute),
		MaxStrikes:         getEnvInt("HEARTBEAT_MAX_STRIKES", 3),
		VerificationWindow: getEnvDuration("HEARTBEAT_VERIFICATION_WINDOW", 90*time.Second),
		AdminSyncInterval:  getEnvDuration("HEARTBEAT_ADMIN_SYNC_INTERVAL", 2*time.Minute),
		Concurrency:        getEnvInt("HEARTBEAT_CONCURRENCY", 8),
	}

	ingressCfg := IngressConfig{
		DedupTTL:       getEnvDuration("DEDUP_TTL", 10*time.Minute),
		DedupSweep:     getEnvDuration("DEDUP_SWEEP", 2*time.Minute),
		MaxAge:         getEnvDuration("MESSAGE_MAX_AGE", 10*time.Minute),
		MaxFutureSkew:  getEnvDuration("MESSAGE_MAX_FUTURE_SKEW", time.Minute),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 20),
		WebhookBaseURL: getEnv("WEBHOOK_BASE_URL", appCfg.BaseUrl),
	}

	cfg := &Config{
		App:       appCfg,
		Paths:     pathsCfg,
		Database:  dbCfg,
		Whapi:     whapiCfg,
		CloudAPI:  cloudCfg,
		Heartbeat: hbCfg,
		Ingress:   ingressCfg,
		Pipeline: PipelineConfig{
			URL:     getEnv("PIPELINE_URL", ""),
			Secret:  getEnv("PIPELINE_SECRET", ""),
			Timeout: getEnvDuration("PIPELINE_TIMEOUT", 20*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", 500*time.Millisecond),
			MaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 5*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Stdout:       getEnvBool("TRACING_STDOUT", true),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", ""),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "az-connect"),
		},
	}

	Global = cfg
	return cfg, nil
}
