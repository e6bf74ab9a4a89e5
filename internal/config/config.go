package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	SchedulerInterval  string
	SchedulerBatchSize int

	// DefaultFiscalYearStartMonth seeds new tenants: 1 is a calendar year,
	// 4 is an April-start fiscal year.
	DefaultFiscalYearStartMonth int
	// DefaultAllowUnmappedLedger seeds the tenant policy that lets invoices
	// be created with no income account mapped.
	DefaultAllowUnmappedLedger bool

	// SeedDemo provisions a demo tenant with a small catalog on first boot.
	SeedDemo bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_SERVICE", "cadence")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "cadence")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 25)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", 60)
	v.SetDefault("SCHEDULER_INTERVAL", "1m")
	v.SetDefault("SCHEDULER_BATCH_SIZE", 50)
	v.SetDefault("FISCAL_YEAR_START_MONTH", 1)
	v.SetDefault("ALLOW_UNMAPPED_LEDGER", true)
	v.SetDefault("SEED_DEMO", false)

	return Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: v.GetString("ENVIRONMENT"),
		HTTPPort:    v.GetString("HTTP_PORT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),

		SchedulerInterval:  v.GetString("SCHEDULER_INTERVAL"),
		SchedulerBatchSize: v.GetInt("SCHEDULER_BATCH_SIZE"),

		DefaultFiscalYearStartMonth: v.GetInt("FISCAL_YEAR_START_MONTH"),
		DefaultAllowUnmappedLedger:  v.GetBool("ALLOW_UNMAPPED_LEDGER"),

		SeedDemo: v.GetBool("SEED_DEMO"),
	}
}
