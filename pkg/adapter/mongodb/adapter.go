// Package mongodb implements the persistence contract on MongoDB.
// Collections map to Mongo collections; the mapper's identity field is
// stored alongside Mongo's own _id, which never leaves the adapter.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/google/uuid"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// MongoDBAdapter provides document storage on a MongoDB deployment.
type MongoDBAdapter struct {
	config Config
	mapper mapper.Mapper
	logger logger.Logger

	mu   sync.RWMutex
	conn conn // swapped for the disconnected sentinel by Disconnect
}

var _ adapter.Adapter = (*MongoDBAdapter)(nil)

// conn is the owned client handle: a live Mongo client or, after Disconnect,
// the disconnected sentinel.
type conn interface {
	database() (*mongo.Database, error)
	ping(ctx context.Context) error
	startSession() (mongo.Session, error)
	close(ctx context.Context) error
}

type liveConn struct {
	client *mongo.Client
	db     string
}

func (c *liveConn) database() (*mongo.Database, error) { return c.client.Database(c.db), nil }
func (c *liveConn) ping(ctx context.Context) error     { return c.client.Ping(ctx, readpref.Primary()) }
func (c *liveConn) startSession() (mongo.Session, error) {
	return c.client.StartSession()
}
func (c *liveConn) close(ctx context.Context) error { return c.client.Disconnect(ctx) }

// disconnectedConn uniformly fails with ErrDisconnected, whatever was called.
type disconnectedConn struct{}

func (disconnectedConn) database() (*mongo.Database, error)   { return nil, adapter.ErrDisconnected }
func (disconnectedConn) ping(context.Context) error           { return adapter.ErrDisconnected }
func (disconnectedConn) startSession() (mongo.Session, error) { return nil, adapter.ErrDisconnected }
func (disconnectedConn) close(context.Context) error          { return adapter.ErrDisconnected }

// New creates a MongoDB adapter and verifies connectivity via ping.
func New(cfg Config, m mapper.Mapper, log logger.Logger) (*MongoDBAdapter, error) {
	a := &MongoDBAdapter{config: cfg, mapper: m, logger: log}
	if err := adapter.CheckURI(a, cfg.URL); err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	a.config = cfg

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	a.conn = &liveConn{client: client, db: cfg.Database}
	return a, nil
}

// Persist writes the entity under its identity, creating it when it has none.
func (a *MongoDBAdapter) Persist(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		id = uuid.NewString()
		col.SetIdentity(rec, id)
	}

	mc, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = mc.UpdateOne(opCtx,
		bson.M{col.Identity: id},
		bson.M{"$set": bson.M(rec)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Create inserts the entity, assigning a fresh identity when it has none.
func (a *MongoDBAdapter) Create(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	if _, ok := col.IdentityOf(rec); !ok {
		col.SetIdentity(rec, uuid.NewString())
	}

	mc, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	if _, err := mc.InsertOne(opCtx, bson.M(rec)); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Update replaces the document carrying the entity's identity.
func (a *MongoDBAdapter) Update(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return nil, fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	mc, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res, err := mc.UpdateOne(opCtx, bson.M{col.Identity: id}, bson.M{"$set": bson.M(rec)})
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Delete removes the document carrying the entity's identity.
func (a *MongoDBAdapter) Delete(ctx context.Context, collection string, entity any) error {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	mc, err := a.collection(collection)
	if err != nil {
		return err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res, err := mc.DeleteOne(opCtx, bson.M{col.Identity: id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
	}
	return nil
}

// All returns every document of the collection.
func (a *MongoDBAdapter) All(ctx context.Context, collection string) ([]any, error) {
	return a.findMany(ctx, collection, bson.M{}, nil)
}

// Find returns the document with the given identity.
func (a *MongoDBAdapter) Find(ctx context.Context, collection string, id any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	return a.findOne(ctx, collection, bson.M{col.Identity: identityKey(id)}, nil)
}

// First returns the document with the smallest identity.
func (a *MongoDBAdapter) First(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, 1)
}

// Last returns the document with the largest identity.
func (a *MongoDBAdapter) Last(ctx context.Context, collection string) (any, error) {
	return a.edge(ctx, collection, -1)
}

func (a *MongoDBAdapter) edge(ctx context.Context, collection string, direction int) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne().SetSort(bson.D{{Key: col.Identity, Value: direction}})
	return a.findOne(ctx, collection, bson.M{}, opts)
}

// Clear removes every document of the collection.
func (a *MongoDBAdapter) Clear(ctx context.Context, collection string) error {
	if _, err := a.mapper.Collection(collection); err != nil {
		return err
	}
	mc, err := a.collection(collection)
	if err != nil {
		return err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	if _, err := mc.DeleteMany(opCtx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

// Query opens a deferred read scope on the collection.
func (a *MongoDBAdapter) Query(collection string) (adapter.Query, error) {
	return &Query{a: a, scope: adapter.NewScope(collection)}, nil
}

// Command removes every document matched by the scope.
func (a *MongoDBAdapter) Command(ctx context.Context, q adapter.Query) error {
	mq, ok := q.(*Query)
	if !ok || mq.a != a {
		return fmt.Errorf("command: query %T does not belong to this MongoDB adapter", q)
	}
	mc, err := a.collection(mq.scope.Coll)
	if err != nil {
		return err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	if _, err := mc.DeleteMany(opCtx, scopeFilter(mq.scope)); err != nil {
		return fmt.Errorf("failed to execute command: %w", err)
	}
	return nil
}

// Transaction runs fn inside a session transaction. Requires a replica set
// or mongos deployment; ReadOnly has no Mongo equivalent and is ignored.
func (a *MongoDBAdapter) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	a.mu.RLock()
	c := a.conn
	a.mu.RUnlock()

	sess, err := c.startSession()
	if err != nil {
		if errors.Is(err, adapter.ErrDisconnected) {
			return err
		}
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

// Execute runs a raw database command given as extended JSON.
func (a *MongoDBAdapter) Execute(ctx context.Context, raw string, args ...any) error {
	_, err := a.runCommand(ctx, raw)
	return err
}

// Fetch runs a raw database command and returns its result documents: the
// first cursor batch when the command opens one, otherwise the reply itself.
func (a *MongoDBAdapter) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	reply, err := a.runCommand(ctx, raw)
	if err != nil {
		return nil, err
	}
	if cursor, ok := reply["cursor"].(bson.M); ok {
		if batch, ok := cursor["firstBatch"].(bson.A); ok {
			out := make([]mapper.Record, 0, len(batch))
			for _, doc := range batch {
				if m, ok := doc.(bson.M); ok {
					out = append(out, mapper.Record(m))
				}
			}
			return out, nil
		}
	}
	return []mapper.Record{mapper.Record(reply)}, nil
}

func (a *MongoDBAdapter) runCommand(ctx context.Context, raw string) (bson.M, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &cmd); err != nil {
		return nil, fmt.Errorf("invalid raw command: %w", err)
	}

	db, err := a.db()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	var reply bson.M
	if err := db.RunCommand(opCtx, cmd).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	return reply, nil
}

// ConnectionString reports the locator.
func (a *MongoDBAdapter) ConnectionString() (string, error) {
	return a.config.URL, nil
}

// HealthCheck verifies the deployment is reachable with a short timeout.
func (a *MongoDBAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	a.mu.RLock()
	c := a.conn
	a.mu.RUnlock()
	if err := c.ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

// Disconnect closes the client and installs the disconnected sentinel.
// Terminal: every later call, Disconnect included, fails with
// ErrDisconnected.
func (a *MongoDBAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.conn.close(ctx)
	if errors.Is(err, adapter.ErrDisconnected) {
		return err
	}
	a.conn = disconnectedConn{}
	if err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	a.logger.Info("MongoDB connection closed")
	return nil
}

func (a *MongoDBAdapter) db() (*mongo.Database, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn.database()
}

func (a *MongoDBAdapter) collection(name string) (*mongo.Collection, error) {
	db, err := a.db()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

func (a *MongoDBAdapter) prepare(collection string, entity any) (mapper.Collection, mapper.Record, error) {
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

func (a *MongoDBAdapter) findOne(ctx context.Context, collection string, filter bson.M, opts *options.FindOneOptions) (any, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	mc, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	findOpts := make([]*options.FindOneOptions, 0, 1)
	if opts != nil {
		findOpts = append(findOpts, opts)
	}

	var rec mapper.Record
	if err := mc.FindOne(opCtx, filter, findOpts...).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", adapter.ErrNotFound, collection)
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	stripObjectID(rec, collection, a.mapper)
	return a.mapper.Deserialize(collection, rec)
}

func (a *MongoDBAdapter) findMany(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions) ([]any, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	mc, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	var cursor *mongo.Cursor
	if opts != nil {
		cursor, err = mc.Find(opCtx, filter, opts)
	} else {
		cursor, err = mc.Find(opCtx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}

	var recs []mapper.Record
	if err := cursor.All(opCtx, &recs); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		stripObjectID(rec, collection, a.mapper)
		entity, err := a.mapper.Deserialize(collection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (a *MongoDBAdapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.OperationTimeout)
}

// stripObjectID drops Mongo's own _id unless the mapper addresses it.
func stripObjectID(rec mapper.Record, collection string, m mapper.Mapper) {
	if col, err := m.Collection(collection); err == nil && col.Identity != "_id" {
		delete(rec, "_id")
	}
}

func identityKey(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id)
}
