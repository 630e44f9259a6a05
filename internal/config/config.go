package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/tapgate.db"

	// ScanSecret keys the integrity checksum.  Changing it invalidates
	// re-validation of previously admitted scans.
	ScanSecret string

	// Fraud policy
	CooldownMinutes int // minimum gap between scans of one uid (default 5)
	DailyScanLimit  int // admitted scans per uid per UTC day (default 100)

	// AdminAPIKeys authorize the read-side admin views (logs, stats,
	// CSV export).
	AdminAPIKeys []string

	MetricsEnabled bool
	LogLevel       string

	// Scan retention
	ScanRetentionDays  int // 0 = keep forever (default)
	PruneIntervalHours int // how often the pruner runs (default 24)
}

func FromEnv() Config {
	addr := getenvDefault("TAPGATE_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("TAPGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("TAPGATE_DB_PATH", "./data/tapgate.db")

	secret := getenvDefault("TAPGATE_SCAN_SECRET", "dev-only-secret")

	cooldown := getenvInt("TAPGATE_COOLDOWN_MINUTES", 5)
	dailyLimit := getenvInt("TAPGATE_DAILY_SCAN_LIMIT", 100)

	adminKeys := splitCSV(os.Getenv("TAPGATE_ADMIN_API_KEYS"))

	metricsEnabled := !strings.EqualFold(os.Getenv("TAPGATE_METRICS_DISABLED"), "true") &&
		os.Getenv("TAPGATE_METRICS_DISABLED") != "1"

	logLevel := getenvDefault("TAPGATE_LOG_LEVEL", "info")

	retentionDays := getenvInt("TAPGATE_SCAN_RETENTION_DAYS", 0)
	pruneInterval := getenvInt("TAPGATE_PRUNE_INTERVAL_HOURS", 24)

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   dbPath,

		ScanSecret: secret,

		CooldownMinutes: cooldown,
		DailyScanLimit:  dailyLimit,

		AdminAPIKeys: adminKeys,

		MetricsEnabled: metricsEnabled,
		LogLevel:       logLevel,

		ScanRetentionDays:  retentionDays,
		PruneIntervalHours: pruneInterval,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
