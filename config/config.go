package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string

	Affiliate AffiliateConfig
	Mail      MailConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	R2        R2Config
	Retention RetentionConfig
}

type AffiliateConfig struct {
	BaseURL         string
	CodeLength      int
	DedupWindow     time.Duration
	UserAgentMaxLen int
}

type MailConfig struct {
	ResendAPIKey string
	ResendURL    string
	From         string
	ProductName  string
	TemplateFile string
	SendTimeout  time.Duration
	Concurrency  int
}

type RedisConfig struct {
	URL          string
	LinkCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	Topic          string
	PublishTimeout time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether enough credentials are present to talk to R2.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

type RetentionConfig struct {
	VisitRetention  time.Duration
	ArchiveInterval time.Duration
}

// LoadDotEnv loads .env if present. A missing file is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		zap.L().Warn("No .env file found, reading environment variables directly")
	}
}

func Load() (*Config, error) {
	dedupWindow, err := getEnvDuration("VISIT_DEDUP_WINDOW", 30*time.Second)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := getEnvDuration("MAIL_SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	linkCacheTTL, err := getEnvDuration("LINK_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	retention, err := getEnvDuration("VISIT_RETENTION", 0)
	if err != nil {
		return nil, err
	}
	archiveInterval, err := getEnvDuration("VISIT_ARCHIVE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	publishTimeout, err := getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnvString("PORT", ":5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServiceToken:   os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		Affiliate: AffiliateConfig{
			BaseURL:         strings.TrimRight(getEnvString("AFFILIATE_BASE_URL", "http://localhost:5000"), "/"),
			CodeLength:      getEnvInt("AFFILIATE_CODE_LENGTH", 8),
			DedupWindow:     dedupWindow,
			UserAgentMaxLen: getEnvInt("VISIT_USER_AGENT_MAX", 512),
		},
		Mail: MailConfig{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			ResendURL:    getEnvString("RESEND_BASE_URL", "https://api.resend.com"),
			From:         getEnvString("MAIL_DEFAULT_SENDER", "noreply@localhost"),
			ProductName:  getEnvString("MAIL_PRODUCT_NAME", "CopyMindset AI"),
			TemplateFile: os.Getenv("MAIL_TEMPLATE_FILE"),
			SendTimeout:  sendTimeout,
			Concurrency:  getEnvInt("MAIL_SEND_CONCURRENCY", 4),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			LinkCacheTTL: linkCacheTTL,
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvList("KAFKA_BROKERS", nil),
			Topic:          getEnvString("KAFKA_TOPIC", "affiliate.events"),
			PublishTimeout: publishTimeout,
		},
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
		},
		Retention: RetentionConfig{
			VisitRetention:  retention,
			ArchiveInterval: archiveInterval,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.ServiceToken == "" {
		return fmt.Errorf("SERVICE_TOKEN environment variable not set")
	}
	if c.Affiliate.CodeLength < 6 || c.Affiliate.CodeLength > 32 {
		return fmt.Errorf("AFFILIATE_CODE_LENGTH must be between 6 and 32, got %d", c.Affiliate.CodeLength)
	}
	if c.Affiliate.UserAgentMaxLen <= 0 {
		return fmt.Errorf("VISIT_USER_AGENT_MAX must be positive, got %d", c.Affiliate.UserAgentMaxLen)
	}
	if c.Mail.Concurrency <= 0 {
		return fmt.Errorf("MAIL_SEND_CONCURRENCY must be positive, got %d", c.Mail.Concurrency)
	}
	if c.Mail.SendTimeout <= 0 {
		return fmt.Errorf("MAIL_SEND_TIMEOUT must be positive, got %v", c.Mail.SendTimeout)
	}
	if c.Kafka.PublishTimeout <= 0 {
		return fmt.Errorf("KAFKA_PUBLISH_TIMEOUT must be positive, got %v", c.Kafka.PublishTimeout)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, trimming blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
