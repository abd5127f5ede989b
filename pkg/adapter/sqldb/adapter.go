// Package sqldb implements the persistence contract on database/sql. The
// driver is chosen from the locator scheme: postgres (lib/pq), mysql
// (go-sql-driver), or sqlite (modernc, CGo-free). Collections map to tables,
// the mapper's identity field to the table's key column.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/google/uuid"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// Config holds SQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// SQLAdapter provides relational storage with connection pooling.
type SQLAdapter struct {
	config Config
	mapper mapper.Mapper
	logger logger.Logger
	driver string

	mu   sync.RWMutex
	exec executor // swapped for the disconnected sentinel by Disconnect
}

var _ adapter.Adapter = (*SQLAdapter)(nil)

// executor is the owned database handle: a live *sql.DB or, after
// Disconnect, the disconnected sentinel.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// disconnectedExecutor uniformly fails with ErrDisconnected, whatever was
// called.
type disconnectedExecutor struct{}

func (disconnectedExecutor) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, adapter.ErrDisconnected
}

func (disconnectedExecutor) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, adapter.ErrDisconnected
}

func (disconnectedExecutor) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, adapter.ErrDisconnected
}

func (disconnectedExecutor) PingContext(context.Context) error { return adapter.ErrDisconnected }
func (disconnectedExecutor) Close() error                      { return adapter.ErrDisconnected }

// New creates a SQL adapter and verifies connectivity.
func New(cfg Config, m mapper.Mapper, log logger.Logger) (*SQLAdapter, error) {
	a := &SQLAdapter{config: cfg, mapper: m, logger: log}
	if err := adapter.CheckURI(a, cfg.URL); err != nil {
		return nil, err
	}

	driver, dsn, err := driverAndDSN(cfg.URL)
	if err != nil {
		return nil, err
	}
	a.driver = driver

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		// An in-memory sqlite database lives only as long as a
		// connection holds it open; pin the pool to a single one.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established",
		"driver", driver,
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)

	a.exec = db
	return a, nil
}

// driverAndDSN maps the locator onto a registered driver and its DSN form.
func driverAndDSN(rawURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return "postgres", rawURL, nil
	case strings.HasPrefix(rawURL, "mysql://"):
		return "mysql", strings.TrimPrefix(rawURL, "mysql://"), nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		dsn := strings.TrimPrefix(rawURL, "sqlite://")
		// A plain :memory: DSN gives every pooled connection its own
		// private database; share one across the pool instead.
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return "sqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL %q (supported schemes: postgres, mysql, sqlite)", rawURL)
	}
}

// Persist updates when the entity carries an identity, creates otherwise.
func (a *SQLAdapter) Persist(ctx context.Context, collection string, entity any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}
	if _, ok := col.IdentityOf(rec); ok {
		return a.Update(ctx, collection, entity)
	}
	return a.Create(ctx, collection, entity)
}

// Create inserts the entity, assigning a fresh identity when it has none.
func (a *SQLAdapter) Create(ctx context.Context, collection string, entity any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}
	if _, ok := col.IdentityOf(rec); !ok {
		col.SetIdentity(rec, uuid.NewString())
	}

	columns, values := recordColumns(rec)
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = a.placeholder(i + 1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		collection,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := a.execContext(ctx, query, values...); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Update replaces the row carrying the entity's identity.
func (a *SQLAdapter) Update(ctx context.Context, collection string, entity any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return nil, fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	columns, values := recordColumns(rec)
	assignments := make([]string, 0, len(columns))
	args := make([]any, 0, len(values)+1)
	i := 1
	for n, column := range columns {
		if column == col.Identity {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", column, a.placeholder(i)))
		args = append(args, values[n])
		i++
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		collection,
		strings.Join(assignments, ", "),
		col.Identity,
		a.placeholder(i),
	)
	res, err := a.execContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Delete removes the row carrying the entity's identity.
func (a *SQLAdapter) Delete(ctx context.Context, collection string, entity any) error {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return err
	}
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", collection, col.Identity, a.placeholder(1))
	res, err := a.execContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}
	return nil
}

// All returns every row of the collection's table.
func (a *SQLAdapter) All(ctx context.Context, collection string) ([]any, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	recs, err := a.fetchRecords(ctx, fmt.Sprintf("SELECT * FROM %s", collection))
	if err != nil {
		return nil, err
	}
	return a.deserializeAll(collection, recs)
}

// Find returns the row with the given identity.
func (a *SQLAdapter) Find(ctx context.Context, collection string, id any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", collection, col.Identity, a.placeholder(1))
	recs, err := a.fetchRecords(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s %v", adapter.ErrNotFound, collection, id)
	}
	return a.mapper.Deserialize(collection, recs[0])
}

// First returns the row with the smallest identity.
func (a *SQLAdapter) First(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, adapter.SortAsc)
}

// Last returns the row with the largest identity.
func (a *SQLAdapter) Last(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, adapter.SortDesc)
}

func (a *SQLAdapter) edge(ctx context.Context, collection string, order adapter.SortOrder) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	if order == adapter.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s %s LIMIT 1", collection, col.Identity, dir)
	recs, err := a.fetchRecords(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", adapter.ErrNotFound, collection)
	}
	return a.mapper.Deserialize(collection, recs[0])
}

// Clear removes every row of the collection's table.
func (a *SQLAdapter) Clear(ctx context.Context, collection string) error {
	if _, err := a.mapper.Collection(collection); err != nil {
		return err
	}
	if _, err := a.execContext(ctx, fmt.Sprintf("DELETE FROM %s", collection)); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

// Query opens a deferred read scope on the collection.
func (a *SQLAdapter) Query(collection string) (adapter.Query, error) {
	return &Query{a: a, scope: adapter.NewScope(collection)}, nil
}

// Command removes every row matched by the scope.
func (a *SQLAdapter) Command(ctx context.Context, q adapter.Query) error {
	sq, ok := q.(*Query)
	if !ok || sq.a != a {
		return fmt.Errorf("command: query %T does not belong to this SQL adapter", q)
	}
	where, args := a.whereClause(sq.scope, 1)
	query := fmt.Sprintf("DELETE FROM %s%s", sq.scope.Coll, where)
	if _, err := a.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute command: %w", err)
	}
	return nil
}

// Transaction runs fn inside a database transaction, rolling back when fn
// fails or panics. Statements issued with the callback context join the
// transaction.
func (a *SQLAdapter) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	tx, err := a.handle().BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
	if err != nil {
		if errors.Is(err, adapter.ErrDisconnected) {
			return err
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("failed to rollback transaction after panic",
					"panic", p,
					"rollback_error", rbErr,
				)
			}
			panic(p)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Error("failed to rollback transaction",
				"original_error", err,
				"rollback_error", rbErr,
			)
			return fmt.Errorf("failed to rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Execute runs a raw statement.
func (a *SQLAdapter) Execute(ctx context.Context, raw string, args ...any) error {
	if _, err := a.execContext(ctx, raw, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// Fetch runs a raw read statement and returns the raw rows as records.
func (a *SQLAdapter) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	return a.fetchRecords(ctx, raw, args...)
}

// ConnectionString reports the locator.
func (a *SQLAdapter) ConnectionString() (string, error) {
	return a.config.URL, nil
}

// HealthCheck verifies the database connection with a short timeout.
func (a *SQLAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.handle().PingContext(hcCtx); err != nil {
		a.logger.Error("database health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Disconnect closes the database handle and installs the disconnected
// sentinel. Terminal: every later call, Disconnect included, fails with
// ErrDisconnected.
func (a *SQLAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.exec.Close()
	if errors.Is(err, adapter.ErrDisconnected) {
		return err
	}
	a.exec = disconnectedExecutor{}
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	a.logger.Info("database connection closed")
	return nil
}

// contextKey carries the active transaction through callback contexts.
type contextKey string

const txContextKey contextKey = "tx"

// GetTx extracts the transaction from a Transaction callback context.
func GetTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sql.Tx)
	return tx, ok
}

func (a *SQLAdapter) handle() executor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exec
}

func (a *SQLAdapter) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.ExecContext(queryCtx, query, args...)
	}
	return a.handle().ExecContext(queryCtx, query, args...)
}

func (a *SQLAdapter) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.QueryContext(queryCtx, query, args...)
	}
	return a.handle().QueryContext(queryCtx, query, args...)
}

func (a *SQLAdapter) fetchRecords(ctx context.Context, query string, args ...any) ([]mapper.Record, error) {
	rows, err := a.queryContext(ctx, query, args...)
	if err != nil {
		if errors.Is(err, adapter.ErrDisconnected) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	return rowsToRecords(rows)
}

func (a *SQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}

// placeholder renders the i-th statement parameter in the driver's syntax.
func (a *SQLAdapter) placeholder(i int) string {
	if a.driver == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (a *SQLAdapter) whereClause(scope adapter.Scope, start int) (string, []any) {
	if len(scope.Conditions) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(scope.Conditions))
	args := make([]any, 0, len(scope.Conditions))
	for i, c := range scope.Conditions {
		clauses = append(clauses, fmt.Sprintf("%s = %s", c.Field, a.placeholder(start+i)))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (a *SQLAdapter) deserializeAll(collection string, recs []mapper.Record) ([]any, error) {
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

// recordColumns splits a record into deterministic column and value slices.
func recordColumns(rec mapper.Record) ([]string, []any) {
	columns := make([]string, 0, len(rec))
	for column := range rec {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	values := make([]any, len(columns))
	for i, column := range columns {
		values[i] = rec[column]
	}
	return columns, values
}

// rowsToRecords scans every row into a record, decoding byte slices to
// strings.
func rowsToRecords(rows *sql.Rows) ([]mapper.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []mapper.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(mapper.Record, len(columns))
		for i, column := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[column] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
