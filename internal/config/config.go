package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends understood by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	CaptureTimeout     time.Duration
	RecognizerTimeout  time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64

	// ScanRecord store
	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
	PostgresDSN   string
	MaxScans      int

	// Recognition
	OCRLanguage      string
	OCRWhitelist     string
	AcceptConfidence float64
	ReadingLabel     string
	ReadingUnit      string

	// Preprocessing
	CropBandFraction   float64
	ScaleMultiplier    float64
	DilationIterations int
	ThresholdLevel     float64

	// Live monitor
	MonitorInterval  time.Duration
	AutoCapture      bool
	AutoCaptureScore float64

	// Azure blob frame source
	AzureAccountName string
	AzureAccountKey  string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob captures can be served.
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		CaptureTimeout:     parseDurationOrDefault("CAPTURE_TIMEOUT", 60*time.Second),
		RecognizerTimeout:  parseDurationOrDefault("RECOGNIZER_TIMEOUT", 20*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB

		StoreBackend:  strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreSQLite)),
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "scans.db"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       int(parseIntOrDefault("REDIS_DB", 0)),
		RedisKey:      getEnvOrDefault("REDIS_KEY", "meter-reader:scans"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		MaxScans:      int(parseIntOrDefault("MAX_SCANS", 10)),

		OCRLanguage:      getEnvOrDefault("OCR_LANGUAGE", "eng"),
		OCRWhitelist:     getEnvOrDefault("OCR_WHITELIST", "0123456789.:FRTmHr/"),
		AcceptConfidence: parseFloatOrDefault("ACCEPT_CONFIDENCE", 0.70),
		ReadingLabel:     getEnvOrDefault("READING_LABEL", "FR1"),
		ReadingUnit:      getEnvOrDefault("READING_UNIT", "m3/Hr"),

		CropBandFraction:   parseFloatOrDefault("CROP_BAND_FRACTION", 0.5),
		ScaleMultiplier:    parseFloatOrDefault("SCALE_MULTIPLIER", 2.0),
		DilationIterations: int(parseIntOrDefault("DILATION_ITERATIONS", 2)),
		ThresholdLevel:     parseFloatOrDefault("THRESHOLD_LEVEL", 0.3),

		MonitorInterval:  parseDurationOrDefault("MONITOR_INTERVAL", 500*time.Millisecond),
		AutoCapture:      parseBoolOrDefault("AUTO_CAPTURE", false),
		AutoCaptureScore: parseFloatOrDefault("AUTO_CAPTURE_SCORE", 85),

		AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges once so downstream components never re-derive defaults.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.CaptureTimeout <= 0 || c.RecognizerTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, capture=%s, recognizer=%s, fetch=%s)",
			c.RequestTimeout, c.CaptureTimeout, c.RecognizerTimeout, c.ImageFetchTimeout)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND: %q", c.StoreBackend)
	}
	if c.MaxScans <= 0 {
		return fmt.Errorf("MAX_SCANS must be > 0 (got %d)", c.MaxScans)
	}
	if c.AcceptConfidence <= 0 || c.AcceptConfidence > 1 {
		return fmt.Errorf("ACCEPT_CONFIDENCE must be in (0,1] (got %v)", c.AcceptConfidence)
	}
	if strings.TrimSpace(c.ReadingLabel) == "" || strings.TrimSpace(c.ReadingUnit) == "" {
		return fmt.Errorf("READING_LABEL and READING_UNIT must not be empty")
	}
	if c.CropBandFraction <= 0 || c.CropBandFraction > 1 {
		return fmt.Errorf("CROP_BAND_FRACTION must be in (0,1] (got %v)", c.CropBandFraction)
	}
	if c.ScaleMultiplier <= 0 {
		return fmt.Errorf("SCALE_MULTIPLIER must be > 0 (got %v)", c.ScaleMultiplier)
	}
	if c.DilationIterations < 0 {
		return fmt.Errorf("DILATION_ITERATIONS must be >= 0 (got %d)", c.DilationIterations)
	}
	if c.ThresholdLevel < 0 || c.ThresholdLevel > 1 {
		return fmt.Errorf("THRESHOLD_LEVEL must be in [0,1] (got %v)", c.ThresholdLevel)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be > 0 (got %s)", c.MonitorInterval)
	}
	if c.AutoCaptureScore < 0 || c.AutoCaptureScore > 100 {
		return fmt.Errorf("AUTO_CAPTURE_SCORE must be in [0,100] (got %v)", c.AutoCaptureScore)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
