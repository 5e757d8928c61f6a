package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	Room          string
	RedisURL      string
	DatabaseURL   string
	LocalDBPath   string
	TokenSecret   string
	AccessTTL     time.Duration
	MigrationsDir string
	CORSOrigin    string
	// Seed admin account, created on first start when no users exist
	AdminUsername string
	AdminPassword string
}

func Load() Config {
	return Config{
		Addr:          getenv("API_ADDR", ":8686"),
		Room:          getenv("STARLEDGER_ROOM", "home"),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		LocalDBPath:   getenv("STARLEDGER_LOCAL_DB", "./data/starledger.db"),
		TokenSecret:   getenv("STARLEDGER_TOKEN_SECRET", "starledger-dev-secret"),
		AccessTTL:     time.Duration(getenvInt("STARLEDGER_ACCESS_TTL_SECONDS", 86400)) * time.Second,
		MigrationsDir: getenv("STARLEDGER_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("STARLEDGER_CORS_ORIGIN", "*"),
		AdminUsername: getenv("STARLEDGER_ADMIN_USERNAME", "dad"),
		AdminPassword: getenv("STARLEDGER_ADMIN_PASSWORD", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
