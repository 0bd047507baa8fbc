package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds access token and verified-phone token configuration
type JWTConfig struct {
	AccessSecret  string
	AccessExpires time.Duration
	OTPSecret     string
	OTPExpires    time.Duration
}

// OTPConfig holds OTP challenge configuration
type OTPConfig struct {
	DefaultChannel string
	Expiry         time.Duration
}

// TwilioConfig holds the Twilio collaborator configuration.
// VerifyServiceSID selects the managed Verify path; without it the service
// falls back to locally generated codes sent through the Messaging API.
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	VerifyServiceSID string
	FromNumber       string
}

// EmailConfig holds SMTP configuration for password reset mail
type EmailConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	AppName     string
	FrontendURL string
}

// SearchConfig holds directory resolution configuration
type SearchConfig struct {
	DefaultWaLink      string
	ForceWaLinkURL     string
	ForceWaLinkUserIDs []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Config holds all configuration
type Config struct {
	DB     DBConfig
	Server ServerConfig
	JWT    JWTConfig
	OTP    OTPConfig
	Twilio TwilioConfig
	Email  EmailConfig
	Search SearchConfig
	Log    LogConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "support_api"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "4000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
			AccessExpires: getEnvAsDuration("JWT_ACCESS_EXPIRES", 15*time.Minute),
			OTPSecret:     getEnv("OTP_TOKEN_SECRET", ""),
			OTPExpires:    getEnvAsDuration("OTP_TOKEN_EXPIRES", 10*time.Minute),
		},
		OTP: OTPConfig{
			DefaultChannel: getEnv("OTP_CHANNEL", "sms"),
			Expiry:         getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
		},
		Twilio: TwilioConfig{
			AccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
			VerifyServiceSID: getEnv("TWILIO_VERIFY_SERVICE_SID", ""),
			FromNumber:       getEnv("TWILIO_FROM_NUMBER", ""),
		},
		Email: EmailConfig{
			Host:        getEnv("EMAIL_HOST", ""),
			Port:        getEnvAsInt("EMAIL_PORT", 587),
			User:        getEnv("EMAIL_USER", ""),
			Password:    getEnv("EMAIL_PASSWORD", ""),
			From:        getEnv("EMAIL_FROM", ""),
			AppName:     getEnv("APP_NAME", "Customer Support"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Search: SearchConfig{
			DefaultWaLink:      getEnv("DEFAULT_WA_LINK", ""),
			ForceWaLinkURL:     getEnv("FORCE_WA_LINK_URL", ""),
			ForceWaLinkUserIDs: getEnvAsList("FORCE_WA_LINK_FOR_USER_IDS"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Verified-phone tokens share the access secret unless a dedicated one is set
	if config.JWT.OTPSecret == "" {
		config.JWT.OTPSecret = config.JWT.AccessSecret
	}

	if config.JWT.AccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("twilio_verify", c.Twilio.VerifyServiceSID != ""),
		zap.Bool("email_enabled", c.Email.Host != ""),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get comma-separated environment variables as a list
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
