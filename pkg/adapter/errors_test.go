package adapter

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "   \t\n", true},
		{"valid", "postgres://localhost/db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckURI(&MemoryAdapter{}, tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckURI() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckURI_ErrorNamesAdapter(t *testing.T) {
	err := CheckURI(&MongoDBAdapter{}, "")
	if err == nil {
		t.Fatal("expected error for blank URI")
	}

	var missing *MissingURIError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingURIError, got %T", err)
	}
	if missing.Adapter != "mongo_db" {
		t.Errorf("Adapter = %q, want %q", missing.Adapter, "mongo_db")
	}
	if !strings.Contains(err.Error(), "mongo_db adapter") {
		t.Errorf("message %q does not name the adapter", err.Error())
	}
	if !errors.Is(err, ErrMissingURI) {
		t.Error("expected errors.Is(err, ErrMissingURI)")
	}
}

func TestNotImplemented(t *testing.T) {
	err := NotImplemented("persist")
	if !errors.Is(err, ErrNotImplemented) {
		t.Error("expected errors.Is(err, ErrNotImplemented)")
	}
	if !strings.Contains(err.Error(), "persist") {
		t.Errorf("message %q does not name the operation", err.Error())
	}
}

func TestNotSupported(t *testing.T) {
	err := NotSupported("transaction")
	if !errors.Is(err, ErrNotSupported) {
		t.Error("expected errors.Is(err, ErrNotSupported)")
	}
	if errors.Is(err, ErrNotImplemented) {
		t.Error("not supported must not satisfy ErrNotImplemented")
	}
	if !strings.Contains(err.Error(), "transaction") {
		t.Errorf("message %q does not name the operation", err.Error())
	}
}

func TestErrorTaxonomyIsDisjoint(t *testing.T) {
	sentinels := map[string]error{
		"not_implemented": ErrNotImplemented,
		"not_supported":   ErrNotSupported,
		"disconnected":    ErrDisconnected,
		"not_found":       ErrNotFound,
		"missing_uri":     ErrMissingURI,
	}
	for aName, a := range sentinels {
		for bName, b := range sentinels {
			if aName != bName && errors.Is(a, b) {
				t.Errorf("sentinel %s unexpectedly satisfies %s", aName, bName)
			}
		}
	}
}
