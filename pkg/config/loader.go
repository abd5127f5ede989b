package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "STRATA")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("database.type", l.prefixedEnv("DATABASE_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DATABASE_URL"))
	v.BindEnv("database.max_open_conns", l.prefixedEnv("DATABASE_MAX_OPEN_CONNS"))
	v.BindEnv("database.max_idle_conns", l.prefixedEnv("DATABASE_MAX_IDLE_CONNS"))
	v.BindEnv("database.conn_max_lifetime", l.prefixedEnv("DATABASE_CONN_MAX_LIFETIME"))
	v.BindEnv("database.conn_max_idle_time", l.prefixedEnv("DATABASE_CONN_MAX_IDLE_TIME"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DATABASE_QUERY_TIMEOUT"))
	v.BindEnv("database.database_name", l.prefixedEnv("DATABASE_NAME"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DATABASE_CONNECT_TIMEOUT"))
	v.BindEnv("database.max_conns", l.prefixedEnv("DATABASE_MAX_CONNS"))
	v.BindEnv("database.region", l.prefixedEnv("DATABASE_REGION"), l.prefixedEnv("AWS_REGION"))
	v.BindEnv("database.endpoint", l.prefixedEnv("DATABASE_ENDPOINT"))
	v.BindEnv("database.access_key_id", l.prefixedEnv("DATABASE_ACCESS_KEY_ID"), l.prefixedEnv("AWS_ACCESS_KEY_ID"))
	v.BindEnv("database.secret_access_key", l.prefixedEnv("DATABASE_SECRET_ACCESS_KEY"), l.prefixedEnv("AWS_SECRET_ACCESS_KEY"))
	v.BindEnv("database.session_token", l.prefixedEnv("DATABASE_SESSION_TOKEN"), l.prefixedEnv("AWS_SESSION_TOKEN"))

	v.BindEnv("logger.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("logger.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("metrics.enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("metrics.namespace", l.prefixedEnv("METRICS_NAMESPACE"))

	v.BindEnv("resilience.enabled", l.prefixedEnv("RESILIENCE_ENABLED"))
	v.BindEnv("resilience.max_failures", l.prefixedEnv("RESILIENCE_MAX_FAILURES"))
	v.BindEnv("resilience.cooldown", l.prefixedEnv("RESILIENCE_COOLDOWN"))
	v.BindEnv("resilience.operation_timeout", l.prefixedEnv("RESILIENCE_OPERATION_TIMEOUT"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	if l.envPrefix == "" {
		return name
	}
	return l.envPrefix + "_" + name
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)

	v.SetDefault("resilience.enabled", cfg.Resilience.Enabled)
	v.SetDefault("resilience.max_failures", cfg.Resilience.MaxFailures)
	v.SetDefault("resilience.cooldown", cfg.Resilience.Cooldown)
	v.SetDefault("resilience.operation_timeout", cfg.Resilience.OperationTimeout)
}

// Validate checks configuration invariants that do not depend on reaching
// the backing store.
func (l *ViperLoader) Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		return fmt.Errorf("service.name is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Database.Type)) {
	case DatabaseTypeMemory, DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite,
		DatabaseTypeMongoDB, DatabaseTypeRedis:
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return fmt.Errorf("database.url is required for database.type %q", cfg.Database.Type)
		}
	case DatabaseTypeDynamoDB:
		if strings.TrimSpace(cfg.Database.Region) == "" {
			return fmt.Errorf("database.region is required for database.type %q", cfg.Database.Type)
		}
	case "":
		return fmt.Errorf("database.type is required")
	default:
		return fmt.Errorf("unsupported database.type %q", cfg.Database.Type)
	}

	if cfg.Database.Type == DatabaseTypeMongoDB && strings.TrimSpace(cfg.Database.DatabaseName) == "" {
		return fmt.Errorf("database.database_name is required for database.type %q", cfg.Database.Type)
	}

	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logger.level %q", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported logger.format %q", cfg.Logger.Format)
	}

	return nil
}
