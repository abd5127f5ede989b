// Package redis implements the persistence contract on Redis.
//
// Each collection is stored as a hash of identity to JSON record under
// "<collection>:records", with insertion order kept in the
// "<collection>:ids" list. Transactions are not supported; writes that
// touch both keys go through a single MULTI/EXEC pipeline instead.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// Config holds Redis adapter configuration.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

// RedisAdapter provides record storage on a Redis server.
type RedisAdapter struct {
	config Config
	mapper mapper.Mapper
	logger logger.Logger

	mu   sync.RWMutex
	conn conn // swapped for the disconnected sentinel by Disconnect
}

var _ adapter.Adapter = (*RedisAdapter)(nil)

// conn is the owned client handle: a live Redis client or, after
// Disconnect, the disconnected sentinel.
type conn interface {
	client() (*redis.Client, error)
	release() error
}

type liveConn struct{ c *redis.Client }

func (l *liveConn) client() (*redis.Client, error) { return l.c, nil }
func (l *liveConn) release() error                 { return l.c.Close() }

// disconnectedConn uniformly fails with ErrDisconnected, whatever was
// called.
type disconnectedConn struct{}

func (disconnectedConn) client() (*redis.Client, error) { return nil, adapter.ErrDisconnected }
func (disconnectedConn) release() error                 { return adapter.ErrDisconnected }

// New creates a Redis adapter with connection pooling and verifies
// connectivity via ping.
func New(cfg Config, m mapper.Mapper, log logger.Logger) (*RedisAdapter, error) {
	a := &RedisAdapter{config: cfg, mapper: m, logger: log}
	if err := adapter.CheckURI(a, cfg.URL); err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConns
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = cfg.OperationTimeout
	opts.WriteTimeout = cfg.OperationTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established",
		"max_conns", cfg.MaxConns,
		"operation_timeout", cfg.OperationTimeout,
	)

	a.conn = &liveConn{c: client}
	return a, nil
}

func recordsKey(collection string) string { return collection + ":records" }
func idsKey(collection string) string     { return collection + ":ids" }

// Persist writes the entity under its identity, creating it when it has
// none.
func (a *RedisAdapter) Persist(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		id = uuid.NewString()
		col.SetIdentity(rec, id)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	exists, err := client.HExists(ctx, recordsKey(collection), id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordsKey(collection), id, payload)
		if !exists {
			pipe.RPush(ctx, idsKey(collection), id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist record: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Create inserts the entity, assigning a fresh identity when it has none.
func (a *RedisAdapter) Create(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		id = uuid.NewString()
		col.SetIdentity(rec, id)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	exists, err := client.HExists(ctx, recordsKey(collection), id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("record %q already exists", id)
	}

	// The hash entry and the order list must land together, or a record
	// becomes invisible to All/First/Last.
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, recordsKey(collection), id, payload)
		pipe.RPush(ctx, idsKey(collection), id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Update replaces the record carrying the entity's identity.
func (a *RedisAdapter) Update(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return nil, fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	exists, err := client.HExists(ctx, recordsKey(collection), id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := client.HSet(ctx, recordsKey(collection), id, payload).Err(); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Delete removes the record carrying the entity's identity.
func (a *RedisAdapter) Delete(ctx context.Context, collection string, entity any) error {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	removed, err := client.HDel(ctx, recordsKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}
	if err := client.LRem(ctx, idsKey(collection), 1, id).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// All returns every record of the collection in insertion order.
func (a *RedisAdapter) All(ctx context.Context, collection string) ([]any, error) {
	recs, err := a.collectRecords(ctx, collection)
	if err != nil {
		return nil, err
	}
	return a.deserializeAll(collection, recs)
}

// Find returns the record with the given identity.
func (a *RedisAdapter) Find(ctx context.Context, collection string, id any) (any, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	payload, err := client.HGet(ctx, recordsKey(collection), identityKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s %v", adapter.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, rec)
}

// First returns the earliest inserted record of the collection.
func (a *RedisAdapter) First(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, 0)
}

// Last returns the most recently inserted record of the collection.
func (a *RedisAdapter) Last(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, -1)
}

func (a *RedisAdapter) edge(ctx context.Context, collection string, index int64) (any, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	id, err := client.LIndex(ctx, idsKey(collection), index).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s is empty", adapter.ErrNotFound, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record order: %w", err)
	}
	return a.Find(ctx, collection, id)
}

// Clear removes every record of the collection.
func (a *RedisAdapter) Clear(ctx context.Context, collection string) error {
	if _, err := a.mapper.Collection(collection); err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, recordsKey(collection), idsKey(collection)).Err(); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

// Query opens a deferred read scope on the collection, evaluated in
// process over the collection's records.
func (a *RedisAdapter) Query(collection string) (adapter.Query, error) {
	return &Query{a: a, scope: adapter.NewScope(collection)}, nil
}

// Command removes every record matched by the scope.
func (a *RedisAdapter) Command(ctx context.Context, q adapter.Query) error {
	rq, ok := q.(*Query)
	if !ok || rq.a != a {
		return fmt.Errorf("command: query %T does not belong to this Redis adapter", q)
	}
	col, err := a.mapper.Collection(rq.scope.Coll)
	if err != nil {
		return err
	}

	recs, err := a.collectRecords(ctx, rq.scope.Coll)
	if err != nil {
		return err
	}
	var ids []string
	for _, rec := range recs {
		if !rq.scope.Matches(rec) {
			continue
		}
		if id, ok := col.IdentityOf(rec); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, recordsKey(rq.scope.Coll), ids...)
		for _, id := range ids {
			pipe.LRem(ctx, idsKey(rq.scope.Coll), 1, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to execute command: %w", err)
	}
	return nil
}

// Transaction is not supported: Redis offers no interactive transactions
// with rollback, only command pipelines.
func (a *RedisAdapter) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	if _, err := a.client(); err != nil {
		return err
	}
	return adapter.NotSupported("transaction")
}

// Execute runs a raw Redis command, given as a space-separated string.
func (a *RedisAdapter) Execute(ctx context.Context, raw string, args ...any) error {
	_, err := a.do(ctx, raw, args...)
	return err
}

// Fetch runs a raw Redis command and returns its reply as records.
func (a *RedisAdapter) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	reply, err := a.do(ctx, raw, args...)
	if err != nil {
		return nil, err
	}
	return replyRecords(reply), nil
}

func (a *RedisAdapter) do(ctx context.Context, raw string, args ...any) (any, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("raw command is empty")
	}
	cmd := make([]any, 0, len(fields)+len(args))
	for _, f := range fields {
		cmd = append(cmd, f)
	}
	cmd = append(cmd, args...)

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	reply, err := client.Do(ctx, cmd...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	return reply, nil
}

// ConnectionString reports the locator.
func (a *RedisAdapter) ConnectionString() (string, error) {
	return a.config.URL, nil
}

// HealthCheck verifies the server is reachable with a short timeout.
func (a *RedisAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client, err := a.client()
	if err != nil {
		return err
	}
	if err := client.Ping(hcCtx).Err(); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Disconnect closes the client and installs the disconnected sentinel.
// Terminal: every later call, Disconnect included, fails with
// ErrDisconnected.
func (a *RedisAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.conn.release()
	if errors.Is(err, adapter.ErrDisconnected) {
		return err
	}
	a.conn = disconnectedConn{}
	if err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	a.logger.Info("Redis connection closed")
	return nil
}

func (a *RedisAdapter) client() (*redis.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn.client()
}

func (a *RedisAdapter) prepare(collection string, entity any) (mapper.Collection, mapper.Record, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return mapper.Collection{}, nil, err
	}
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return mapper.Collection{}, nil, err
	}
	return col, rec, nil
}

// collectRecords loads the collection's records in insertion order.
func (a *RedisAdapter) collectRecords(ctx context.Context, collection string) ([]mapper.Record, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	ids, err := client.LRange(ctx, idsKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read record order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := client.HMGet(ctx, recordsKey(collection), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	recs := make([]mapper.Record, 0, len(payloads))
	for _, p := range payloads {
		s, ok := p.(string)
		if !ok {
			continue // id list entry without a hash record
		}
		rec, err := decodeRecord(s)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (a *RedisAdapter) deserializeAll(collection string, recs []mapper.Record) ([]any, error) {
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		entity, err := a.mapper.Deserialize(collection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func decodeRecord(payload string) (mapper.Record, error) {
	var rec mapper.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// replyRecords normalizes a raw command reply into records: arrays become
// one record per element, maps become a single record, scalars are wrapped
// under "result".
func replyRecords(reply any) []mapper.Record {
	switch v := reply.(type) {
	case nil:
		return nil
	case []any:
		out := make([]mapper.Record, 0, len(v))
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				out = append(out, mapper.Record(m))
				continue
			}
			out = append(out, mapper.Record{"value": el})
		}
		return out
	case map[string]any:
		return []mapper.Record{mapper.Record(v)}
	default:
		return []mapper.Record{{"result": v}}
	}
}

func identityKey(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id)
}
