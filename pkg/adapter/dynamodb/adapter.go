// Package dynamodb implements the persistence contract on DynamoDB.
//
// Collections map to tables whose partition key is the mapper's identity
// field. DynamoDB has no total ordering over a table, so First, Last,
// Query, Command and Transaction are not supported; raw access goes
// through PartiQL statements.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/google/uuid"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// Config holds DynamoDB adapter configuration. Region is the locator;
// Endpoint overrides the AWS endpoint for local deployments.
type Config struct {
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
}

// DynamoDBAdapter provides item storage on DynamoDB tables.
type DynamoDBAdapter struct {
	config Config
	mapper mapper.Mapper
	logger logger.Logger

	mu   sync.RWMutex
	conn conn // swapped for the disconnected sentinel by Disconnect
}

var _ adapter.Adapter = (*DynamoDBAdapter)(nil)

// conn is the owned client handle: a live DynamoDB client or, after
// Disconnect, the disconnected sentinel.
type conn interface {
	client() (*dynamodb.Client, error)
	release() error
}

type liveConn struct{ c *dynamodb.Client }

func (l *liveConn) client() (*dynamodb.Client, error) { return l.c, nil }
func (l *liveConn) release() error                    { return nil }

// disconnectedConn uniformly fails with ErrDisconnected, whatever was
// called.
type disconnectedConn struct{}

func (disconnectedConn) client() (*dynamodb.Client, error) { return nil, adapter.ErrDisconnected }
func (disconnectedConn) release() error                    { return adapter.ErrDisconnected }

// New creates a DynamoDB adapter and verifies connectivity by listing
// tables.
func New(cfg Config, m mapper.Mapper, log logger.Logger) (*DynamoDBAdapter, error) {
	a := &DynamoDBAdapter{config: cfg, mapper: m, logger: log}
	if err := adapter.CheckURI(a, cfg.Region); err != nil {
		return nil, err
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	a.config = cfg

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := dynamodb.NewFromConfig(awsCfg, opts...)
	a.conn = &liveConn{c: client}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return nil, fmt.Errorf("failed to reach dynamodb: %w", err)
	}

	log.Info("DynamoDB adapter initialized", "region", cfg.Region, "endpoint", cfg.Endpoint)
	return a, nil
}

// Persist writes the item under its identity, creating it when it has
// none.
func (a *DynamoDBAdapter) Persist(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	if _, ok := col.IdentityOf(rec); !ok {
		col.SetIdentity(rec, uuid.NewString())
	}

	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = client.PutItem(opCtx, &dynamodb.PutItemInput{
		TableName: aws.String(collection),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist item: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Create inserts the item, assigning a fresh identity when it has none.
// Fails when an item with the same identity already exists.
func (a *DynamoDBAdapter) Create(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		id = uuid.NewString()
		col.SetIdentity(rec, id)
	}

	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = client.PutItem(opCtx, &dynamodb.PutItemInput{
		TableName:                aws.String(collection),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": col.Identity},
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, fmt.Errorf("item %q already exists", id)
		}
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Update replaces the item carrying the entity's identity.
func (a *DynamoDBAdapter) Update(ctx context.Context, collection string, entity any) (any, error) {
	col, rec, err := a.prepare(collection, entity)
	if err != nil {
		return nil, err
	}
	id, ok := col.IdentityOf(rec)
	if !ok {
		return nil, fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
	}

	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = client.PutItem(opCtx, &dynamodb.PutItemInput{
		TableName:                aws.String(collection),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": col.Identity},
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// Delete removes the item carrying the entity's identity.
func (a *DynamoDBAdapter) Delete(ctx context.Context, collection string, entity any) error {
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
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = client.DeleteItem(opCtx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(collection),
		Key:                      identityKey(col.Identity, id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": col.Identity},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, id)
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// All scans the whole table. Scan order is undefined.
func (a *DynamoDBAdapter) All(ctx context.Context, collection string) ([]any, error) {
	recs, err := a.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}
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

// Find returns the item with the given identity.
func (a *DynamoDBAdapter) Find(ctx context.Context, collection string, id any) (any, error) {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return nil, err
	}
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	out, err := client.GetItem(opCtx, &dynamodb.GetItemInput{
		TableName: aws.String(collection),
		Key:       identityKey(col.Identity, fmt.Sprintf("%v", id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s %v", adapter.ErrNotFound, collection, id)
	}

	var rec mapper.Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return a.mapper.Deserialize(collection, rec)
}

// First is not supported: DynamoDB tables have no total order.
func (a *DynamoDBAdapter) First(ctx context.Context, collection string) (any, error) {
	if _, err := a.client(); err != nil {
		return nil, err
	}
	return nil, adapter.NotSupported("first")
}

// Last is not supported: DynamoDB tables have no total order.
func (a *DynamoDBAdapter) Last(ctx context.Context, collection string) (any, error) {
	if _, err := a.client(); err != nil {
		return nil, err
	}
	return nil, adapter.NotSupported("last")
}

// Clear removes every item of the table in batches of 25.
func (a *DynamoDBAdapter) Clear(ctx context.Context, collection string) error {
	col, err := a.mapper.Collection(collection)
	if err != nil {
		return err
	}
	recs, err := a.scanAll(ctx, collection)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	var requests []types.WriteRequest
	for _, rec := range recs {
		id, ok := col.IdentityOf(rec)
		if !ok {
			continue
		}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: identityKey(col.Identity, id)},
		})
	}

	const batchSize = 25 // BatchWriteItem limit
	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		opCtx, cancel := a.withOperationTimeout(ctx)
		_, err := client.BatchWriteItem(opCtx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{collection: requests[start:end]},
		})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to clear table: %w", err)
		}
	}
	return nil
}

// Query is not supported: portable scopes cannot be expressed over a
// schemaless table without its key layout. Use Fetch with PartiQL instead.
func (a *DynamoDBAdapter) Query(collection string) (adapter.Query, error) {
	return nil, adapter.NotSupported("query")
}

// Command is not supported.
func (a *DynamoDBAdapter) Command(ctx context.Context, q adapter.Query) error {
	if _, err := a.client(); err != nil {
		return err
	}
	return adapter.NotSupported("command")
}

// Transaction is not supported: TransactWriteItems takes a static item
// list, not an interactive callback.
func (a *DynamoDBAdapter) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	if _, err := a.client(); err != nil {
		return err
	}
	return adapter.NotSupported("transaction")
}

// Execute runs a raw PartiQL statement.
func (a *DynamoDBAdapter) Execute(ctx context.Context, raw string, args ...any) error {
	_, err := a.executeStatement(ctx, raw, args...)
	return err
}

// Fetch runs a raw PartiQL statement and returns the result items.
func (a *DynamoDBAdapter) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	out, err := a.executeStatement(ctx, raw, args...)
	if err != nil {
		return nil, err
	}
	recs := make([]mapper.Record, 0, len(out.Items))
	for _, item := range out.Items {
		var rec mapper.Record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (a *DynamoDBAdapter) executeStatement(ctx context.Context, raw string, args ...any) (*dynamodb.ExecuteStatementOutput, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	var params []types.AttributeValue
	if len(args) > 0 {
		params = make([]types.AttributeValue, 0, len(args))
		for _, arg := range args {
			av, err := attributevalue.Marshal(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal statement parameter: %w", err)
			}
			params = append(params, av)
		}
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	out, err := client.ExecuteStatement(opCtx, &dynamodb.ExecuteStatementInput{
		Statement:  aws.String(raw),
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return out, nil
}

// ConnectionString is not supported: the adapter is located by region and
// credentials, not a single URI.
func (a *DynamoDBAdapter) ConnectionString() (string, error) {
	return "", adapter.NotSupported("connection_string")
}

// HealthCheck verifies the service is reachable with a short timeout.
func (a *DynamoDBAdapter) HealthCheck(ctx context.Context) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.ListTables(hcCtx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		a.logger.Error("DynamoDB health check failed", "error", err)
		return fmt.Errorf("dynamodb health check failed: %w", err)
	}
	return nil
}

// Disconnect installs the disconnected sentinel. The SDK client holds no
// persistent connection to close. Terminal: every later call, Disconnect
// included, fails with ErrDisconnected.
func (a *DynamoDBAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.conn.release()
	if errors.Is(err, adapter.ErrDisconnected) {
		return err
	}
	a.conn = disconnectedConn{}
	a.logger.Info("DynamoDB adapter disconnected")
	return err
}

func (a *DynamoDBAdapter) client() (*dynamodb.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn.client()
}

func (a *DynamoDBAdapter) prepare(collection string, entity any) (mapper.Collection, mapper.Record, error) {
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

// scanAll pages through the whole table.
func (a *DynamoDBAdapter) scanAll(ctx context.Context, collection string) ([]mapper.Record, error) {
	if _, err := a.mapper.Collection(collection); err != nil {
		return nil, err
	}
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	var recs []mapper.Record
	var startKey map[string]types.AttributeValue
	for {
		opCtx, cancel := a.withOperationTimeout(ctx)
		out, err := client.Scan(opCtx, &dynamodb.ScanInput{
			TableName:         aws.String(collection),
			ExclusiveStartKey: startKey,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		for _, item := range out.Items {
			var rec mapper.Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			recs = append(recs, rec)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return recs, nil
}

func (a *DynamoDBAdapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.OperationTimeout)
}

func identityKey(field, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		field: &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailure(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}
