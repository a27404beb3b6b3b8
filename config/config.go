// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/pharmaprice-api/currency"
)

// Environment is the deployment environment the API runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// String returns the short name of the environment
func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment maps an ENV value, including long aliases, to an Environment
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: %v, got: %s",
		[]Environment{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}, value)
}

// Storage backends for the persisted collections
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageR2       = "r2"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	// Oracle
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	OracleTimeout     time.Duration
	ImageMaxDimension int

	// Persistence
	StorageBackend string
	StoragePath    string
	DatabaseURL    string
	R2Endpoint     string
	R2AccessKey    string
	R2SecretKey    string
	R2Bucket       string
	R2Prefix       string

	// Presentation of totals
	CurrencySymbol string
	CurrencyLocale string

	// Saved prescriptions refresh
	RefreshSchedule string
	RefreshEnabled  bool

	// Browser origins allowed by CORS
	AllowedOrigins []string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Env:               env,
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 10485760),   // 10MB default, images are uploaded
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnvWithDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:     getEnvWithDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		OracleTimeout:     getDurationEnvWithDefault("ORACLE_TIMEOUT", 90*time.Second),
		ImageMaxDimension: getIntEnvWithDefault("IMAGE_MAX_DIMENSION", 1024),

		StorageBackend: strings.ToLower(getEnvWithDefault("STORAGE_BACKEND", StorageFile)),
		StoragePath:    getEnvWithDefault("STORAGE_PATH", "data/collections.json"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		R2Endpoint:     os.Getenv("R2_ENDPOINT"),
		R2AccessKey:    os.Getenv("R2_ACCESS_KEY"),
		R2SecretKey:    os.Getenv("R2_SECRET_KEY"),
		R2Bucket:       os.Getenv("R2_BUCKET_NAME"),
		R2Prefix:       getEnvWithDefault("R2_PREFIX", "collections/"),

		CurrencySymbol: getEnvWithDefault("CURRENCY_SYMBOL", "€"),
		CurrencyLocale: getEnvWithDefault("CURRENCY_LOCALE", "en"),

		RefreshSchedule: getEnvWithDefault("REFRESH_SCHEDULE", "06:00;18:00"),
		RefreshEnabled:  getBoolEnvWithDefault("REFRESH_ENABLED", true),

		AllowedOrigins: splitList(getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	// Validate PORT
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	// Validate ADDRESS
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	// Validate LOG_LEVEL
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	// Validate MAX_REQUEST_BODY
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	// Validate MAX_HEADER_SIZE
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	// Validate LOG_RETENTION_WEEKS
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	// Validate MAX_LOG_FILE_SIZE
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validateOracleTimeout(cfg.OracleTimeout); err != nil {
		return fmt.Errorf("invalid ORACLE_TIMEOUT: %w", err)
	}

	if err := validateImageMaxDimension(cfg.ImageMaxDimension); err != nil {
		return fmt.Errorf("invalid IMAGE_MAX_DIMENSION: %w", err)
	}

	if err := validateStorage(cfg); err != nil {
		return fmt.Errorf("invalid STORAGE_BACKEND: %w", err)
	}

	if strings.TrimSpace(cfg.CurrencySymbol) == "" {
		return fmt.Errorf("invalid CURRENCY_SYMBOL: cannot be empty")
	}

	if err := currency.ValidateLocale(cfg.CurrencyLocale); err != nil {
		return fmt.Errorf("invalid CURRENCY_LOCALE: %w", err)
	}

	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("invalid CORS_ALLOWED_ORIGINS: at least one origin is required")
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	// Check for localhost/loopback addresses first
	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Collections belong to a single user, keep the API off public interfaces
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateOracleTimeout validates the ORACLE_TIMEOUT environment variable
func validateOracleTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive, got: %s", timeout)
	}

	if timeout > 10*time.Minute {
		return fmt.Errorf("ORACLE_TIMEOUT is too large (max 10m), got: %s", timeout)
	}

	return nil
}

// validateImageMaxDimension validates the IMAGE_MAX_DIMENSION environment variable
func validateImageMaxDimension(dim int) error {
	if dim < 64 || dim > 4096 {
		return fmt.Errorf("IMAGE_MAX_DIMENSION must be between 64 and 4096, got: %d", dim)
	}
	return nil
}

// validateStorage checks the backend name and the settings it needs
func validateStorage(cfg *Config) error {
	switch cfg.StorageBackend {
	case StorageMemory:
		return nil
	case StorageFile:
		if cfg.StoragePath == "" {
			return fmt.Errorf("STORAGE_PATH is required for the file backend")
		}
		return nil
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		return nil
	case StorageR2:
		missing := []string{}
		if cfg.R2Endpoint == "" {
			missing = append(missing, "R2_ENDPOINT")
		}
		if cfg.R2Bucket == "" {
			missing = append(missing, "R2_BUCKET_NAME")
		}
		if cfg.R2AccessKey == "" || cfg.R2SecretKey == "" {
			missing = append(missing, "R2_ACCESS_KEY/R2_SECRET_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing settings for the r2 backend: %v", missing)
		}
		return nil
	}

	return fmt.Errorf("STORAGE_BACKEND must be one of: %v, got: %s",
		[]string{StorageMemory, StorageFile, StoragePostgres, StorageR2}, cfg.StorageBackend)
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping blanks
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"GEMINI_API_KEY",
		"GEMINI_MODEL",
		"GEMINI_BASE_URL",
		"ORACLE_TIMEOUT",
		"IMAGE_MAX_DIMENSION",
		"STORAGE_BACKEND",
		"STORAGE_PATH",
		"DATABASE_URL",
		"R2_ENDPOINT",
		"R2_ACCESS_KEY",
		"R2_SECRET_KEY",
		"R2_BUCKET_NAME",
		"R2_PREFIX",
		"CURRENCY_SYMBOL",
		"CURRENCY_LOCALE",
		"REFRESH_SCHEDULE",
		"REFRESH_ENABLED",
		"CORS_ALLOWED_ORIGINS",
	}
}

// ValidateAllEnvVars checks if all required environment variables are set
func ValidateAllEnvVars() error {
	requiredVars := []string{"GEMINI_API_KEY"} // Without a key every analysis fails
	missingVars := []string{}

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
