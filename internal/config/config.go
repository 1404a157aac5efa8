package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Backend API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Credentials
	CredentialsFile string

	// History
	HistoryBackend  string
	SQLiteDBPath    string
	HistoryCapacity int

	// Derived views
	RecurringDebounce time.Duration
	TrendsCacheTTL    time.Duration
	TrendsMonths      int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsJSON string

	// Worker metrics endpoint, e.g. ":9090". Empty disables it.
	MetricsAddr string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		APIBaseURL:  getEnv("FINBOARD_API_URL", "http://127.0.0.1:8000"),
		HTTPTimeout: getEnvDuration("FINBOARD_HTTP_TIMEOUT", 30*time.Second),

		CredentialsFile: getEnv("FINBOARD_CREDENTIALS_FILE", defaultCredentialsFile()),

		HistoryBackend:  getEnv("HISTORY_BACKEND", "sqlite"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", defaultDataPath("history.db")),
		HistoryCapacity: getEnvInt("HISTORY_CAPACITY", 10),

		RecurringDebounce: getEnvDuration("RECURRING_DEBOUNCE", 100*time.Millisecond),
		TrendsCacheTTL:    getEnvDuration("TRENDS_CACHE_TTL", 5*time.Minute),
		TrendsMonths:      getEnvInt("TRENDS_MONTHS", 6),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "analysis_recorded"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "History"),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate API base URL
	if parsed, err := url.Parse(c.APIBaseURL); err != nil || parsed.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': must be an absolute URL", c.APIBaseURL))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}

	if strings.TrimSpace(c.CredentialsFile) == "" {
		errors = append(errors, "credentials file path cannot be empty")
	}

	// Validate history backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.HistoryBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid history backend '%s': must be one of %v", c.HistoryBackend, validBackends))
	}

	if c.HistoryBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.HistoryCapacity < 1 || c.HistoryCapacity > 100 {
		errors = append(errors, fmt.Sprintf("invalid history capacity %d: must be between 1 and 100", c.HistoryCapacity))
	}

	if c.RecurringDebounce < 0 || c.RecurringDebounce > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring debounce %v: must be between 0 and 10 seconds", c.RecurringDebounce))
	}
	if c.TrendsMonths < 1 || c.TrendsMonths > 36 {
		errors = append(errors, fmt.Sprintf("invalid trends months %d: must be between 1 and 36", c.TrendsMonths))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is provided")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func defaultCredentialsFile() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".finboard", "credentials.json")
	}
	return filepath.Join(base, "finboard", "credentials.json")
}

func defaultDataPath(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "data", name)
	}
	return filepath.Join(base, "finboard", name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
