package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"affiliate-network-backend/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	SendGrid   SendGridConfig   `yaml:"sendgrid"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Commission CommissionConfig `yaml:"commission"`
	Referral   ReferralConfig   `yaml:"referral"`
	Payout     PayoutConfig     `yaml:"payout"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Type        string `yaml:"type"` // "postgres" or "memory"
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// RedisConfig enables the commission schedule cache when URL is set
type RedisConfig struct {
	URL                string `yaml:"url"`
	ScheduleTTLSeconds int    `yaml:"schedule_ttl_seconds"`
}

// SendGridConfig contains notification e-mail settings. Without an API key
// e-mails are logged instead of sent.
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	SignupURL string `yaml:"signup_url"`
}

// SMTPConfig is the fallback mail transport when no SendGrid key is set
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// CommissionConfig holds the global commission bounds and depth
type CommissionConfig struct {
	MaxLevels            int     `yaml:"max_levels"`
	MinimumPercentage    float64 `yaml:"minimum_percentage"`
	MaximumPercentage    float64 `yaml:"maximum_percentage"`
	AutoApproveAfterDays int     `yaml:"auto_approve_after_days"` // negative disables
}

// ReferralConfig contains attachment and invite settings
type ReferralConfig struct {
	RejectInactiveReferrers bool `yaml:"reject_inactive_referrers"`
	InviteTTLHours          int  `yaml:"invite_ttl_hours"`
}

// PayoutConfig contains payout thresholds
type PayoutConfig struct {
	MinimumAmount float64 `yaml:"minimum_amount"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireInvites      string `yaml:"expire_invites"`
	ApproveCommissions string `yaml:"approve_commissions"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		c.Storage.Type = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Redis
	if val := os.Getenv("REDIS_URL"); val != "" {
		c.Redis.URL = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}
	if val := os.Getenv("SENDGRID_FROM_EMAIL"); val != "" {
		c.SendGrid.FromEmail = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}

	// Commission
	if val := os.Getenv("COMMISSION_MAX_LEVELS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Commission.MaxLevels)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 15
	}

	switch c.Storage.Type {
	case "":
		c.Storage.Type = "postgres"
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Storage.Type == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.Redis.ScheduleTTLSeconds == 0 {
		c.Redis.ScheduleTTLSeconds = 300
	}

	if c.SendGrid.FromEmail == "" {
		c.SendGrid.FromEmail = "no-reply@affiliate.local"
	}
	if c.SendGrid.FromName == "" {
		c.SendGrid.FromName = "Affiliate Network"
	}

	if c.SMTP.Host != "" && c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	// Commission
	if c.Commission.MaxLevels == 0 {
		c.Commission.MaxLevels = 3
	}
	if c.Commission.MaxLevels < 1 || c.Commission.MaxLevels > 10 {
		return fmt.Errorf("commission max levels must be between 1 and 10, got %d", c.Commission.MaxLevels)
	}
	if c.Commission.MaximumPercentage == 0 {
		c.Commission.MaximumPercentage = 50
	}
	if c.Commission.MinimumPercentage < 0 {
		return fmt.Errorf("minimum commission percentage must not be negative")
	}
	if c.Commission.MinimumPercentage > c.Commission.MaximumPercentage {
		return fmt.Errorf("minimum commission percentage %.2f exceeds maximum %.2f",
			c.Commission.MinimumPercentage, c.Commission.MaximumPercentage)
	}
	if c.Commission.AutoApproveAfterDays == 0 {
		c.Commission.AutoApproveAfterDays = 14
	}

	if c.Referral.InviteTTLHours == 0 {
		c.Referral.InviteTTLHours = 168
	}
	if c.Referral.InviteTTLHours < 0 {
		return fmt.Errorf("invite TTL must be positive")
	}

	if c.Payout.MinimumAmount < 0 {
		return fmt.Errorf("minimum payout amount must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.ExpireInvites == "" {
		c.Scheduler.ExpireInvites = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ApproveCommissions == "" {
		c.Scheduler.ApproveCommissions = "0 30 2 * * *" // 2:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PercentageBounds converts the configured limits to domain bounds
func (c *CommissionConfig) PercentageBounds() domain.PercentageBounds {
	return domain.PercentageBounds{
		Minimum: decimal.NewFromFloat(c.MinimumPercentage),
		Maximum: decimal.NewFromFloat(c.MaximumPercentage),
	}
}

// MinimumPayout returns the payout threshold as a money amount
func (c *PayoutConfig) MinimumPayout() decimal.Decimal {
	return domain.RoundMoney(decimal.NewFromFloat(c.MinimumAmount))
}
