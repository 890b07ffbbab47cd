package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service needs at construction time. Handlers
// and services never read the process environment themselves.
type Config struct {
	Port            string
	AdminToken      string
	DatabasePath    string
	HostingBaseURL  string
	DefaultMinScore float64
	FetchTimeout    time.Duration
	RatePerMinute   int
	LogPath         string
}

// Load builds the configuration from the environment. A .env file is loaded
// first when present.
func Load() *Config {
	_ = godotenv.Load()

	minScore := 0.6
	if v := os.Getenv("LINK_MIN_SCORE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 && parsed <= 1 {
			minScore = parsed
		}
	}

	timeout := 15 * time.Second
	if v := os.Getenv("FETCH_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}

	ratePerMinute := 60
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			ratePerMinute = parsed
		}
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		DatabasePath:    getEnv("DATABASE_PATH", "data/medialink.db"),
		HostingBaseURL:  os.Getenv("HOSTING_BASE_URL"),
		DefaultMinScore: minScore,
		FetchTimeout:    timeout,
		RatePerMinute:   ratePerMinute,
		LogPath:         os.Getenv("LOG_PATH"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
