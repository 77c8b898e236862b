package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port              string
	DBDriver          string
	SQLitePath        string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CacheTTL          time.Duration
	AllowedOrigins    []string
	ReconcileInterval time.Duration
	SchedulerEnabled  bool
}

// LoadFile reads an optional .env file before Load. A missing file is not an error.
func LoadFile(path string) Config {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Printf("[Config] %s not loaded: %v", path, err)
		}
	}
	return Load()
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL_SECONDS", "86400"))
	if err != nil || cacheTTL < 0 {
		cacheTTL = 86400
	}
	interval, err := strconv.Atoi(getEnv("RECONCILE_INTERVAL_MINUTES", "15"))
	if err != nil || interval < 1 {
		interval = 15
	}
	schedulerEnabled, err := strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "true"))
	if err != nil {
		schedulerEnabled = true
	}

	databaseURL := os.Getenv("DATABASE_URL")
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = DriverSQLite
		if databaseURL != "" {
			driver = DriverPostgres
		}
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		DBDriver:          driver,
		SQLitePath:        getEnv("SQLITE_PATH", "recap.db"),
		DatabaseURL:       databaseURL,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		CacheTTL:          time.Duration(cacheTTL) * time.Second,
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		ReconcileInterval: time.Duration(interval) * time.Minute,
		SchedulerEnabled:  schedulerEnabled,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Validate rejects driver settings that cannot start.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
		return nil
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires DATABASE_URL")
		}
		return nil
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
