package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Port                        string
	DBDriver                    string // "sqlite" or "postgres"
	DBPath                      string // SQLite database file
	DatabaseURL                 string // PostgreSQL connection string
	StorageBackend              string // "local" or "s3"
	UploadDir                   string
	MaxFileSize                 int64
	DefaultChunkSize            int64
	MaxChunkSize                int64
	MaxUserUploads              int // Concurrent active sessions per owner (0 = unlimited)
	UploadSessionTimeoutMinutes int
	CleanupIntervalMinutes      int
	AllowedContentTypes         []string

	// S3 settings, used when StorageBackend is "s3"
	S3Bucket          string
	S3Region          string
	S3Endpoint        string // Optional: S3-compatible endpoint (MinIO etc.)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	defaultTypes := "video/mp4,video/webm,video/quicktime,audio/mpeg,audio/mp4,audio/ogg,image/jpeg,image/png,image/webp,application/octet-stream"

	cfg := &Config{
		Port:                        getEnv("PORT", "8080"),
		DBDriver:                    getEnv("DB_DRIVER", "sqlite"),
		DBPath:                      getEnv("DB_PATH", "./mediavault.db"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		StorageBackend:              getEnv("STORAGE_BACKEND", "local"),
		UploadDir:                   getEnv("UPLOAD_DIR", "./data"),
		MaxFileSize:                 getEnvInt64("MAX_FILE_SIZE", 2147483648),  // 2GiB default
		DefaultChunkSize:            getEnvInt64("DEFAULT_CHUNK_SIZE", 5242880), // 5MiB default
		MaxChunkSize:                getEnvInt64("MAX_CHUNK_SIZE", 16777216),    // 16MiB default
		MaxUserUploads:              getEnvInt("MAX_USER_UPLOADS", 5),
		UploadSessionTimeoutMinutes: getEnvInt("UPLOAD_SESSION_TIMEOUT_MINUTES", 120),
		CleanupIntervalMinutes:      getEnvInt("CLEANUP_INTERVAL_MINUTES", 15),
		AllowedContentTypes:         getEnvList("ALLOWED_CONTENT_TYPES", defaultTypes),
		S3Bucket:                    getEnv("S3_BUCKET", ""),
		S3Region:                    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:                  getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:               getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:           getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:                 getEnvBool("S3_PATH_STYLE", false),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when DB_DRIVER is sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}

	switch c.StorageBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR cannot be empty when STORAGE_BACKEND is local")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if c.DefaultChunkSize <= 0 {
		return fmt.Errorf("DEFAULT_CHUNK_SIZE must be positive, got %d", c.DefaultChunkSize)
	}

	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive, got %d", c.MaxChunkSize)
	}

	if c.DefaultChunkSize > c.MaxChunkSize {
		return fmt.Errorf("DEFAULT_CHUNK_SIZE (%d) cannot exceed MAX_CHUNK_SIZE (%d)", c.DefaultChunkSize, c.MaxChunkSize)
	}

	if c.MaxUserUploads < 0 {
		return fmt.Errorf("MAX_USER_UPLOADS must be 0 (unlimited) or positive, got %d", c.MaxUserUploads)
	}

	if c.UploadSessionTimeoutMinutes <= 0 {
		return fmt.Errorf("UPLOAD_SESSION_TIMEOUT_MINUTES must be positive, got %d", c.UploadSessionTimeoutMinutes)
	}

	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be positive, got %d", c.CleanupIntervalMinutes)
	}

	if len(c.AllowedContentTypes) == 0 {
		return fmt.Errorf("ALLOWED_CONTENT_TYPES cannot be empty")
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable or returns a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated list from environment variable
func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
