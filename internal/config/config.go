package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL      string
	ListenAddr string

	// IPHashSalt enables privacy hashing of caller IPs. Leaving it
	// unset degrades gracefully to storing no hash at all.
	IPHashSalt string

	LegacyDataDir          string
	LegacyConsolidatedFile string

	// RetentionDays is the rolling sample retention window. Zero
	// keeps samples forever.
	RetentionDays int

	// ReportRateLimit caps reports per IP per 30-minute window.
	// Zero disables the server-side limiter.
	ReportRateLimit int
}

// Load reads required values from environment variables.
func Load() (Config, error) {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	cfg := Config{
		DBURL:                  dbURL,
		ListenAddr:             ":8080",
		IPHashSalt:             strings.TrimSpace(os.Getenv("IP_HASH_SALT")),
		LegacyDataDir:          "data/legacy",
		LegacyConsolidatedFile: "data/legacy-consolidated.json",
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("LEGACY_DATA_DIR")); v != "" {
		cfg.LegacyDataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LEGACY_CONSOLIDATED_FILE")); v != "" {
		cfg.LegacyConsolidatedFile = v
	}

	var err error
	if cfg.RetentionDays, err = intEnv("RETENTION_DAYS"); err != nil {
		return Config{}, err
	}
	if cfg.ReportRateLimit, err = intEnv("REPORT_RATE_LIMIT"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// intEnv parses an optional non-negative integer variable.
func intEnv(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
