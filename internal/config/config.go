package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendSQLite = "sqlite"
	BackendDynamo = "dynamo"

	MailSMTP = "smtp"
	MailSNS  = "sns"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"3000"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"./data/identity.db"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`

	MailBackend  string `env:"MAIL_BACKEND" envDefault:"smtp"`
	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SNSRegion    string `env:"SNS_REGION" envDefault:"us-east-1"`
	SNSTopicARN  string `env:"SNS_TOPIC_ARN"`

	AuditLogDir    string        `env:"AUDIT_LOG_DIR" envDefault:"./logs"`
	AuditLogMaxAge time.Duration `env:"AUDIT_LOG_MAX_AGE" envDefault:"720h"`

	AdminUser     string `env:"ADMIN_USER"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","` // CORS allowed origins

	OTPSweepInterval   time.Duration `env:"OTP_SWEEP_INTERVAL" envDefault:"12h"`
	QuotaSweepInterval time.Duration `env:"QUOTA_SWEEP_INTERVAL" envDefault:"1h"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Identities        string `env:"DYNAMO_TABLE_IDENTITIES" envDefault:"identities"`
	OneTimeCodes      string `env:"DYNAMO_TABLE_ONE_TIME_CODES" envDefault:"one_time_codes"`
	SubscriptionTiers string `env:"DYNAMO_TABLE_SUBSCRIPTION_TIERS" envDefault:"subscription_tiers"`
	QuotaCounters     string `env:"DYNAMO_TABLE_QUOTA_COUNTERS" envDefault:"quota_counters"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.StoreBackend {
	case BackendSQLite, BackendDynamo:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.MailBackend {
	case MailSMTP, MailSNS:
	default:
		return nil, fmt.Errorf("unsupported MAIL_BACKEND %q", cfg.MailBackend)
	}
	if cfg.MailBackend == MailSNS && cfg.SNSTopicARN == "" {
		return nil, fmt.Errorf("SNS_TOPIC_ARN is required when MAIL_BACKEND=sns")
	}
	return &cfg, nil
}
