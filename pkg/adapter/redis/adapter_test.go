package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

func usersMapper(t *testing.T) *mapper.EntityMapper {
	t.Helper()
	m := mapper.NewEntityMapper()
	if err := m.Register(mapper.Collection{Name: "users"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return m
}

func disconnectedAdapter(t *testing.T) *RedisAdapter {
	t.Helper()
	return &RedisAdapter{
		config: Config{URL: "redis://localhost:6379"},
		mapper: usersMapper(t),
		logger: logger.Nop(),
		conn:   disconnectedConn{},
	}
}

func TestNew_BlankURL(t *testing.T) {
	_, err := New(Config{}, usersMapper(t), logger.Nop())
	var missing *adapter.MissingURIError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want *adapter.MissingURIError", err)
	}
	if missing.Adapter != "redis" {
		t.Errorf("Adapter = %q, want %q", missing.Adapter, "redis")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{URL: "not-a-redis-url"}, usersMapper(t), logger.Nop()); err == nil {
		t.Fatal("expected error for unparseable URL")
	}
}

func TestKeys(t *testing.T) {
	if got := recordsKey("users"); got != "users:records" {
		t.Errorf("recordsKey = %q", got)
	}
	if got := idsKey("users"); got != "users:ids" {
		t.Errorf("idsKey = %q", got)
	}
}

func TestDisconnected_UniformSentinel(t *testing.T) {
	ctx := context.Background()
	a := disconnectedAdapter(t)

	calls := map[string]func() error{
		"persist":      func() error { _, err := a.Persist(ctx, "users", mapper.Record{"id": "u1"}); return err },
		"create":       func() error { _, err := a.Create(ctx, "users", mapper.Record{"id": "u1"}); return err },
		"update":       func() error { _, err := a.Update(ctx, "users", mapper.Record{"id": "u1"}); return err },
		"delete":       func() error { return a.Delete(ctx, "users", mapper.Record{"id": "u1"}) },
		"all":          func() error { _, err := a.All(ctx, "users"); return err },
		"find":         func() error { _, err := a.Find(ctx, "users", "u1"); return err },
		"first":        func() error { _, err := a.First(ctx, "users"); return err },
		"last":         func() error { _, err := a.Last(ctx, "users"); return err },
		"clear":        func() error { return a.Clear(ctx, "users") },
		"execute":      func() error { return a.Execute(ctx, "PING") },
		"fetch":        func() error { _, err := a.Fetch(ctx, "PING"); return err },
		"transaction":  func() error { return a.Transaction(ctx, adapter.TxOptions{}, func(context.Context) error { return nil }) },
		"health_check": func() error { return a.HealthCheck(ctx) },
		"disconnect":   func() error { return a.Disconnect() },
	}

	for op, call := range calls {
		t.Run(op, func(t *testing.T) {
			if err := call(); !errors.Is(err, adapter.ErrDisconnected) {
				t.Fatalf("%s = %v, want ErrDisconnected", op, err)
			}
		})
	}
}

func TestReplyRecords(t *testing.T) {
	tests := []struct {
		name  string
		reply any
		want  int
	}{
		{"nil", nil, 0},
		{"scalar", "PONG", 1},
		{"array", []any{"a", "b", "c"}, 3},
		{"map", map[string]any{"role": "master"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replyRecords(tt.reply); len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	recs := replyRecords("PONG")
	if recs[0]["result"] != "PONG" {
		t.Errorf("scalar reply = %v", recs[0])
	}
	recs = replyRecords([]any{"a"})
	if recs[0]["value"] != "a" {
		t.Errorf("array element = %v", recs[0])
	}
}

func TestAdapterName(t *testing.T) {
	if got := adapter.Name(disconnectedAdapter(t)); got != "redis" {
		t.Errorf("Name = %q, want %q", got, "redis")
	}
}
