package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	FeedBaseURL       string
	FeedTimezone      string
	FeedTimeout       time.Duration
	FeedRatePerSecond float64
	FeedBurst         int
	FeedArchiveBucket string // empty disables archiving of unparsable feed bodies

	MaxLookaheadDays         int
	MaxSubscriptionsPerCycle int
	PollIntervalSeconds      int
	PollConcurrency          int
	CycleTimeoutSeconds      int
	PollLeaseEnabled         bool
	MetricsPort              string

	NotifyChannel  string // "smtp" | "sns"
	SNSRegion      string
	SNSTopicARN    string
	SMTPHost       string
	SMTPPort       string
	SMTPFrom       string
	SMTPUsername   string
	SMTPPassword   string
	AccessLinkTmpl string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	AllowedOrigins    []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Subscriptions string
	AccessCodes   string
	Leases        string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "eu-west-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Subscriptions: getEnv("DYNAMO_TABLE_SUBSCRIPTIONS", "subscriptions"),
			AccessCodes:   getEnv("DYNAMO_TABLE_ACCESS_CODES", "access_codes"),
			Leases:        getEnv("DYNAMO_TABLE_LEASES", "poll_leases"),
		},

		FeedBaseURL:       getEnv("FEED_BASE_URL", "https://oap.ind.nl"),
		FeedTimezone:      getEnv("FEED_TIMEZONE", "Europe/Amsterdam"),
		FeedTimeout:       time.Duration(getEnvInt("FEED_TIMEOUT_SECONDS", 20)) * time.Second,
		FeedRatePerSecond: getEnvFloat("FEED_RATE_PER_SECOND", 5),
		FeedBurst:         getEnvInt("FEED_BURST", 5),
		FeedArchiveBucket: getEnv("FEED_ARCHIVE_BUCKET", ""),

		MaxLookaheadDays:         getEnvInt("MAX_LOOKAHEAD_DAYS", 45),
		MaxSubscriptionsPerCycle: getEnvInt("MAX_SUBSCRIPTIONS_PER_CYCLE", 30),
		PollIntervalSeconds:      getEnvInt("POLL_INTERVAL_SECONDS", 600),
		PollConcurrency:          getEnvInt("POLL_CONCURRENCY", 10),
		CycleTimeoutSeconds:      getEnvInt("CYCLE_TIMEOUT_SECONDS", 300),
		PollLeaseEnabled:         getEnvBool("POLL_LEASE_ENABLED", false),
		MetricsPort:              getEnv("METRICS_PORT", "9090"),

		NotifyChannel:  getEnv("NOTIFY_CHANNEL", "smtp"),
		SNSRegion:      getEnv("SNS_REGION", "eu-west-1"),
		SNSTopicARN:    getEnv("SNS_TOPIC_ARN", ""),
		SMTPHost:       getEnv("SMTP_HOST", "localhost"),
		SMTPPort:       getEnv("SMTP_PORT", "1025"),
		SMTPFrom:       getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		AccessLinkTmpl: getEnv("ACCESS_LINK_TEMPLATE", "http://localhost:3000/?personalCode=%s"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 12)) * time.Hour,
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// ValidatePoller rejects poller tunables that are out of range.
func (c *Config) ValidatePoller() error {
	var errs []error
	for _, v := range []struct {
		name string
		val  int
	}{
		{"MAX_LOOKAHEAD_DAYS", c.MaxLookaheadDays},
		{"MAX_SUBSCRIPTIONS_PER_CYCLE", c.MaxSubscriptionsPerCycle},
		{"POLL_INTERVAL_SECONDS", c.PollIntervalSeconds},
		{"POLL_CONCURRENCY", c.PollConcurrency},
		{"CYCLE_TIMEOUT_SECONDS", c.CycleTimeoutSeconds},
	} {
		if v.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", v.name, v.val))
		}
	}
	if c.FeedRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("FEED_RATE_PER_SECOND must not be negative, got %g", c.FeedRatePerSecond))
	}
	switch c.NotifyChannel {
	case "smtp":
	case "sns":
		if c.SNSTopicARN == "" {
			errs = append(errs, errors.New("SNS_TOPIC_ARN is required when NOTIFY_CHANNEL=sns"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_CHANNEL must be smtp or sns, got %q", c.NotifyChannel))
	}
	return errors.Join(errs...)
}

// PollInterval is the tick period of the console poller.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// CycleTimeout bounds one poll cycle.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
