package adapter

import (
	"context"

	"github.com/stratadb/strata/pkg/mapper"
)

// Unimplemented is the base a partial backend embeds: every contract method
// fails with ErrNotImplemented until the backend overrides it, so an
// incomplete adapter reports itself as a bug instead of crashing ambiguously.
// ConnectionString is the one exception: it fails with ErrNotSupported,
// marking the operation as inapplicable rather than forgotten.
type Unimplemented struct{}

var _ Adapter = Unimplemented{}

func (Unimplemented) Persist(ctx context.Context, collection string, entity any) (any, error) {
	return nil, NotImplemented("persist")
}

func (Unimplemented) Create(ctx context.Context, collection string, entity any) (any, error) {
	return nil, NotImplemented("create")
}

func (Unimplemented) Update(ctx context.Context, collection string, entity any) (any, error) {
	return nil, NotImplemented("update")
}

func (Unimplemented) Delete(ctx context.Context, collection string, entity any) error {
	return NotImplemented("delete")
}

func (Unimplemented) All(ctx context.Context, collection string) ([]any, error) {
	return nil, NotImplemented("all")
}

func (Unimplemented) Find(ctx context.Context, collection string, id any) (any, error) {
	return nil, NotImplemented("find")
}

func (Unimplemented) First(ctx context.Context, collection string) (any, error) {
	return nil, NotImplemented("first")
}

func (Unimplemented) Last(ctx context.Context, collection string) (any, error) {
	return nil, NotImplemented("last")
}

func (Unimplemented) Clear(ctx context.Context, collection string) error {
	return NotImplemented("clear")
}

func (Unimplemented) Query(collection string) (Query, error) {
	return nil, NotImplemented("query")
}

func (Unimplemented) Command(ctx context.Context, q Query) error {
	return NotImplemented("command")
}

func (Unimplemented) Transaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	return NotImplemented("transaction")
}

func (Unimplemented) Execute(ctx context.Context, raw string, args ...any) error {
	return NotImplemented("execute")
}

func (Unimplemented) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	return nil, NotImplemented("fetch")
}

func (Unimplemented) ConnectionString() (string, error) {
	return "", NotSupported("connection_string")
}

func (Unimplemented) HealthCheck(ctx context.Context) error {
	return NotImplemented("health_check")
}

func (Unimplemented) Disconnect() error {
	return NotImplemented("disconnect")
}
