package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                      string
	DatabaseURL               string
	JWTSecret                 string
	AuthTokenTTL              time.Duration
	CookieSecure              bool
	DisplayRecentLimit        int
	RateLimitPerMinute        int
	RateLimitBurst            int
	CompanyRateLimitPerMinute int
	CompanyRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                      port,
		DatabaseURL:               os.Getenv("DB_DSN"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		AuthTokenTTL:              readDurationHours("AUTH_TOKEN_TTL_HOURS", 168),
		CookieSecure:              readBool("COOKIE_SECURE", false),
		DisplayRecentLimit:        readInt("DISPLAY_RECENT_LIMIT", 5),
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		CompanyRateLimitPerMinute: readInt("COMPANY_RATE_LIMIT_PER_MIN", 600),
		CompanyRateLimitBurst:     readInt("COMPANY_RATE_LIMIT_BURST", 120),
	}
}

func readDurationHours(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Hour
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
