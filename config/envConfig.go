package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	// CoinMarketCap
	APIKey string

	// Server
	Port string

	// Postgres
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	Debug bool
}

// Load reads configuration from the environment, after loading an optional
// .env file. DB_NAME, DB_USER and DB_PASSWORD are required; the rest have
// defaults. The API key is validated separately at startup because its
// absence is a hard exit, not a config error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:     os.Getenv("COINMARKETCAP_API_KEY"),
		Port:       getEnv("PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     os.Getenv("DB_NAME"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		Debug:      os.Getenv("DEBUG") == "true",
	}

	for _, key := range []string{"DB_NAME", "DB_USER", "DB_PASSWORD"} {
		if os.Getenv(key) == "" {
			return nil, fmt.Errorf("missing required env variable: %s", key)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}
