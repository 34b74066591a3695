package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	BackendTables   = "tables"
	BackendPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	Port     string
	LogLevel slog.Level

	StoreBackend    string
	TableServiceURL string
	SchedulesTable  string
	LedgerTable     string
	DatabaseURI     string

	BlobServiceURL  string
	QueueServiceURL string
	LockContainer   string
	LockBlob        string
	ImportContainer string
	ImportQueue     string
	AlertQueue      string
	ReportContainer string

	CommunicationEndpoint string
	SenderEmail           string
	UserEmail             string

	Location      *time.Location
	LedgerTimeout time.Duration
	MaxCatchUp    int
	ProcessCron   string
}

// Load reads a .env file when one is present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("FUNCTIONS_CUSTOMHANDLER_PORT", "8080"),
		StoreBackend:          strings.ToLower(getEnv("STORE_BACKEND", BackendTables)),
		TableServiceURL:       os.Getenv("TABLE_SERVICE_URL"),
		SchedulesTable:        getEnv("SCHEDULES_TABLE", "recurring"),
		LedgerTable:           getEnv("LEDGER_TABLE", "transactions"),
		DatabaseURI:           os.Getenv("DATABASE_URI"),
		BlobServiceURL:        os.Getenv("BLOB_SERVICE_URL"),
		QueueServiceURL:       os.Getenv("QUEUE_SERVICE_URL"),
		LockContainer:         getEnv("LOCK_CONTAINER", "locks"),
		LockBlob:              getEnv("LOCK_BLOB", "recurring-processor"),
		ImportContainer:       getEnv("IMPORT_CONTAINER", "uploads"),
		ImportQueue:           getEnv("IMPORT_QUEUE", "recurring-import"),
		AlertQueue:            getEnv("ALERT_QUEUE", "recurring-alerts"),
		ReportContainer:       getEnv("REPORT_CONTAINER", "recurring-runs"),
		CommunicationEndpoint: os.Getenv("COMMUNICATION_SERVICES_ENDPOINT"),
		SenderEmail:           os.Getenv("SENDER_EMAIL"),
		UserEmail:             os.Getenv("USER_EMAIL"),
		ProcessCron:           os.Getenv("PROCESS_CRON"),
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if cfg.Location, err = time.LoadLocation(getEnv("BUSINESS_TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
	}

	if cfg.LedgerTimeout, err = time.ParseDuration(getEnv("LEDGER_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TIMEOUT: %w", err)
	}
	if cfg.LedgerTimeout <= 0 {
		return nil, fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}

	if cfg.MaxCatchUp, err = strconv.Atoi(getEnv("MAX_CATCH_UP", "1")); err != nil {
		return nil, fmt.Errorf("invalid MAX_CATCH_UP: %w", err)
	}
	if cfg.MaxCatchUp < 1 {
		return nil, fmt.Errorf("MAX_CATCH_UP must be at least 1")
	}

	switch cfg.StoreBackend {
	case BackendTables:
		if cfg.TableServiceURL == "" {
			return nil, fmt.Errorf("TABLE_SERVICE_URL is required for the %s backend", BackendTables)
		}
	case BackendPostgres:
		if cfg.DatabaseURI == "" {
			return nil, fmt.Errorf("DATABASE_URI is required for the %s backend", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.BlobServiceURL == "" {
		return nil, fmt.Errorf("BLOB_SERVICE_URL is required")
	}
	if cfg.QueueServiceURL == "" {
		return nil, fmt.Errorf("QUEUE_SERVICE_URL is required")
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return level, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}
