package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Worker   WorkerConfig
	Engine   EngineConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Env  string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	PoolMax         int
	PoolMinConns    int
	PoolMaxConnLife time.Duration
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Count     int
	BatchSize int
}

// EngineConfig holds calculation policy knobs. The trend deadband and the
// at-risk thresholds are policy choices, not physics, so they stay tunable.
type EngineConfig struct {
	DependencyTimeout      time.Duration
	TrendDeadbandPercent   float64
	AtRiskTimeFraction     float64
	AtRiskProgressFraction float64
	FactorPackPath         string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "sustain"),
			PoolMax:         getEnvInt("DB_POOL_MAX", 50),
			PoolMinConns:    getEnvInt("DB_POOL_MIN", 10),
			PoolMaxConnLife: time.Duration(getEnvInt("DB_POOL_MAX_CONN_LIFE_MINUTES", 30)) * time.Minute,
		},
		Worker: WorkerConfig{
			Count:     getEnvInt("WORKER_COUNT", 8),
			BatchSize: getEnvInt("BATCH_SIZE", 500),
		},
		Engine: EngineConfig{
			DependencyTimeout:      time.Duration(getEnvInt("ENGINE_DEPENDENCY_TIMEOUT_SECONDS", 5)) * time.Second,
			TrendDeadbandPercent:   getEnvFloat("ENGINE_TREND_DEADBAND_PERCENT", 5),
			AtRiskTimeFraction:     getEnvFloat("ENGINE_AT_RISK_TIME_FRACTION", 0.20),
			AtRiskProgressFraction: getEnvFloat("ENGINE_AT_RISK_PROGRESS_FRACTION", 0.80),
			FactorPackPath:         getEnv("ENGINE_FACTOR_PACK_PATH", ""),
		},
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=disable"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
