package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Report data warehouse (Postgres or MySQL).
	ReportDBDriver string // postgres | mysql
	ReportDBDSN    string
	TablePrefix    string // physical prefix the {table} placeholders map to
	SQLSecurity    string // high | low, gate mode for interactive custom SQL
	WWWRoot        string // substituted for %%WWWROOT%% in custom SQL
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-reports"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-reports"),

		ReportDBDriver: getEnv("REPORT_DB_DRIVER", "postgres"),
		ReportDBDSN:    getEnv("REPORT_DB_DSN", "postgres://localhost:5432/reportdata?sslmode=disable"),
		TablePrefix:    getEnv("TABLE_PREFIX", "mdl_"),
		SQLSecurity:    getEnv("SQL_SECURITY", "high"),
		WWWRoot:        getEnv("WWWROOT", "http://localhost:8080"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
