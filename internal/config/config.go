package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	SubgraphURL     string
	WebhookURL      string
	ServiceName     string
	APIKey          string
	CORSAllowOrigin string

	// HTTP
	HTTPPort int

	// Database (optional; comments are disabled without it)
	DatabaseEnabled bool
	DBHost          string
	DBPort          int
	DBName          string
	DBUser          string
	DBPassword      string

	// Caching
	AnalyticsCacheTTL time.Duration
	FetchCacheTTL     time.Duration

	// Rate-limit retry
	FetchMaxAttempts int
	FetchBackoffBase time.Duration

	// Scheduler
	TrackedMarkets    []string
	RefreshInterval   time.Duration
	FallbackThreshold int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		SubgraphURL:     envStr("SUBGRAPH_URL", ""),
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		ServiceName:     envStr("SERVICE_NAME", "ForesightAnalytics"),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		// HTTP
		HTTPPort: envInt("HTTP_PORT", 8080),

		// Database
		DatabaseEnabled: envBool("DATABASE_ENABLED", false),
		DBHost:          envStr("DB_HOST", "localhost"),
		DBPort:          envInt("DB_PORT", 5432),
		DBName:          envStr("DB_NAME", "foresight_analytics"),
		DBUser:          envStr("DB_USER", ""),
		DBPassword:      envStr("DB_PASSWORD", ""),

		// Caching
		AnalyticsCacheTTL: envDuration("ANALYTICS_CACHE_TTL_SECONDS", 300),
		FetchCacheTTL:     envDuration("FETCH_CACHE_TTL_SECONDS", 30),

		// Rate-limit retry
		FetchMaxAttempts: envInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoffBase: envDuration("FETCH_BACKOFF_BASE_SECONDS", 1),

		// Scheduler
		TrackedMarkets:    envList("TRACKED_MARKETS"),
		RefreshInterval:   envDuration("REFRESH_INTERVAL_SECONDS", 300),
		FallbackThreshold: envInt("FALLBACK_ALERT_THRESHOLD", 3),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.SubgraphURL == "" {
		errs = append(errs, "SUBGRAPH_URL is required")
	}
	if c.DatabaseEnabled && c.DBUser == "" {
		errs = append(errs, "DB_USER is required when DATABASE_ENABLED=true")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set — degradation alerts go to console only")
	}
	if len(c.TrackedMarkets) == 0 {
		fmt.Println("[WARN] TRACKED_MARKETS not set — no warm refresh, analytics computed on demand only")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Foresight Analytics Configuration ===")
	fmt.Printf("Subgraph: %s\n", truncURL(c.SubgraphURL))
	fmt.Printf("HTTP Port: %d\n", c.HTTPPort)
	fmt.Println("--------------------------------------")
	fmt.Println("Caching:")
	fmt.Printf("  Analytics TTL: %s\n", c.AnalyticsCacheTTL)
	fmt.Printf("  Query TTL: %s\n", c.FetchCacheTTL)
	fmt.Printf("  Rate-limit retries: %d (base %s)\n", c.FetchMaxAttempts, c.FetchBackoffBase)
	fmt.Println("--------------------------------------")
	fmt.Println("Scheduler:")
	fmt.Printf("  Tracked Markets: %d\n", len(c.TrackedMarkets))
	fmt.Printf("  Refresh Interval: %s\n", c.RefreshInterval)
	fmt.Printf("  Alerts: %s\n", boolLabel(c.WebhookURL != "", "webhook", "console only"))
	fmt.Println("--------------------------------------")
	fmt.Printf("Comments: %s\n", boolLabel(c.DatabaseEnabled, "enabled", "disabled (no database)"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration reads a whole-second env var.
func envDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(key, fallbackSeconds)) * time.Second
}

// envList parses a comma-separated env var, dropping empty entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncURL(u string) string {
	if len(u) > 60 {
		return u[:60] + "..."
	}
	if u == "" {
		return "(not set)"
	}
	return u
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
