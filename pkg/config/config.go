package config

import "time"

// Database type constants
const (
	// DatabaseTypeMemory represents the in-process store
	DatabaseTypeMemory = "memory"
	// DatabaseTypePostgres represents PostgreSQL
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL
	DatabaseTypeMySQL = "mysql"
	// DatabaseTypeSQLite represents SQLite
	DatabaseTypeSQLite = "sqlite"
	// DatabaseTypeMongoDB represents MongoDB
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeRedis represents Redis
	DatabaseTypeRedis = "redis"
	// DatabaseTypeDynamoDB represents AWS DynamoDB
	DatabaseTypeDynamoDB = "dynamodb"
)

// Config is the root configuration structure for the persistence layer
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Logger     LoggerConfig
	Metrics    MetricsConfig
	Resilience ResilienceConfig
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the storage adapter
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // memory, postgres, mysql, sqlite, mongodb, redis, dynamodb
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	DatabaseName    string        `mapstructure:"database_name"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConns        int           `mapstructure:"max_conns"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`
}

// LoggerConfig configures structured logging
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig configures adapter instrumentation
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// ResilienceConfig configures the circuit breaker decorator
type ResilienceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxFailures      int           `mapstructure:"max_failures"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// DefaultConfig returns the baseline configuration before file and
// environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "strata",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Type:            DatabaseTypeMemory,
			URL:             "memory://localhost",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
			ConnectTimeout:  5 * time.Second,
			MaxConns:        10,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "strata",
		},
		Resilience: ResilienceConfig{
			Enabled:     false,
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		},
	}
}
