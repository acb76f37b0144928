package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	AWS       AWSConfig
	ESign     ESignConfig
	Email     EmailConfig

	Salesforce SalesforceConfig
	Sweep      SweepConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled      bool
	WebhookRate  float64
	WebhookBurst int
}

type AuthConfig struct {
	// JWKSURL is the Cognito user pool key set. When empty tokens are
	// verified with JWTSecret (HS256), which is only meant for local setups.
	JWKSURL   string
	Issuer    string
	Audience  string
	JWTSecret string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string

	CognitoUserPoolID string

	SecretsPrefix string

	S3Bucket          string
	S3UsePathStyle    bool
	PresignExpiration time.Duration
}

type ESignConfig struct {
	BaseURL  string
	APIKey   string
	ClientID string
	TestMode bool
	Timeout  time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SalesforceConfig struct {
	AuthURL    string
	APIVersion string
	Timeout    time.Duration
	LockTTL    time.Duration
}

// SweepConfig tunes the one-shot sweep command run by an external cron.
type SweepConfig struct {
	TenantBatchSize     int
	JobTimeout          time.Duration
	SalesforceDirection string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "pricedesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pricedesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			WebhookRate:  getenvFloat("RATE_LIMIT_WEBHOOK_RATE", 20),
			WebhookBurst: getenvInt("RATE_LIMIT_WEBHOOK_BURST", 50),
		},
		Auth: AuthConfig{
			JWKSURL:   strings.TrimSpace(getenv("AUTH_JWKS_URL", "")),
			Issuer:    strings.TrimSpace(getenv("AUTH_ISSUER", "")),
			Audience:  strings.TrimSpace(getenv("AUTH_AUDIENCE", "")),
			JWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		},
		AWS: AWSConfig{
			Region:            getenv("AWS_REGION", "us-east-1"),
			AccessKeyID:       strings.TrimSpace(getenv("AWS_ACCESS_KEY_ID", "")),
			SecretAccessKey:   strings.TrimSpace(getenv("AWS_SECRET_ACCESS_KEY", "")),
			Endpoint:          strings.TrimSpace(getenv("AWS_ENDPOINT_URL", "")),
			CognitoUserPoolID: strings.TrimSpace(getenv("COGNITO_USER_POOL_ID", "")),
			SecretsPrefix:     getenv("SECRETS_PREFIX", "pricedesk/tenants"),
			S3Bucket:          getenv("DOCUMENTS_BUCKET", "pricedesk-documents"),
			S3UsePathStyle:    getenvBool("DOCUMENTS_USE_PATH_STYLE", false),
			PresignExpiration: getenvDuration("DOCUMENTS_PRESIGN_EXPIRATION", 15*time.Minute),
		},
		ESign: ESignConfig{
			BaseURL:  getenv("ESIGN_BASE_URL", "https://api.hellosign.com/v3"),
			APIKey:   strings.TrimSpace(getenv("ESIGN_API_KEY", "")),
			ClientID: strings.TrimSpace(getenv("ESIGN_CLIENT_ID", "")),
			TestMode: getenvBool("ESIGN_TEST_MODE", true),
			Timeout:  getenvDuration("ESIGN_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@pricedesk.local"),
		},
		Salesforce: SalesforceConfig{
			AuthURL:    getenv("SALESFORCE_AUTH_URL", "https://login.salesforce.com"),
			APIVersion: getenv("SALESFORCE_API_VERSION", "v59.0"),
			Timeout:    getenvDuration("SALESFORCE_TIMEOUT", 30*time.Second),
			LockTTL:    getenvDuration("SALESFORCE_SYNC_LOCK_TTL", 10*time.Minute),
		},
		Sweep: SweepConfig{
			TenantBatchSize:     getenvInt("SWEEP_TENANT_BATCH_SIZE", 100),
			JobTimeout:          getenvDuration("SWEEP_JOB_TIMEOUT", 5*time.Minute),
			SalesforceDirection: getenv("SWEEP_SALESFORCE_DIRECTION", "both"),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
