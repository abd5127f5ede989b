// Package factory selects and initializes a storage adapter from
// configuration.
package factory

import (
	"fmt"
	"strings"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/adapter/dynamodb"
	"github.com/stratadb/strata/pkg/adapter/memory"
	"github.com/stratadb/strata/pkg/adapter/mongodb"
	"github.com/stratadb/strata/pkg/adapter/redis"
	"github.com/stratadb/strata/pkg/adapter/sqldb"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// New builds the storage adapter named by cfg.Type. It does not fall back
// between backends.
func New(cfg config.DatabaseConfig, m mapper.Mapper, log logger.Logger) (adapter.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMemory:
		return memory.New(memory.Config{
			URI: cfg.URL,
		}, m, log)
	case config.DatabaseTypePostgres, config.DatabaseTypeMySQL, config.DatabaseTypeSQLite:
		return sqldb.New(sqldb.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, m, log)
	case config.DatabaseTypeMongoDB:
		return mongodb.New(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, m, log)
	case config.DatabaseTypeRedis:
		return redis.New(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.QueryTimeout,
		}, m, log)
	case config.DatabaseTypeDynamoDB:
		return dynamodb.New(dynamodb.Config{
			Region:           cfg.Region,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.QueryTimeout,
		}, m, log)
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: memory, postgres, mysql, sqlite, mongodb, redis, dynamodb)", cfg.Type)
	}
}
