package mapper

import (
	"errors"
	"testing"
)

type user struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func usersMapper(t *testing.T) *EntityMapper {
	t.Helper()
	m := NewEntityMapper()
	if err := m.Register(Collection{
		Name:      "users",
		NewEntity: func() any { return &user{} },
	}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return m
}

func TestRegister_Validation(t *testing.T) {
	m := NewEntityMapper()

	if err := m.Register(Collection{Name: ""}); err == nil {
		t.Error("expected error for blank name")
	}
	if err := m.Register(Collection{Name: "   "}); err == nil {
		t.Error("expected error for whitespace name")
	}
	if err := m.Register(Collection{Name: "users"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := m.Register(Collection{Name: "users"}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestRegister_IdentityDefault(t *testing.T) {
	m := NewEntityMapper()
	if err := m.Register(Collection{Name: "users"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	c, err := m.Collection("users")
	if err != nil {
		t.Fatalf("Collection error: %v", err)
	}
	if c.Identity != DefaultIdentity {
		t.Errorf("Identity = %q, want %q", c.Identity, DefaultIdentity)
	}
}

func TestCollection_Unknown(t *testing.T) {
	m := NewEntityMapper()
	_, err := m.Collection("ghosts")
	if !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("error = %v, want ErrUnknownCollection", err)
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	m := usersMapper(t)

	rec, err := m.Serialize("users", &user{ID: "u1", Name: "ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	if rec["id"] != "u1" || rec["name"] != "ada" {
		t.Fatalf("unexpected record: %v", rec)
	}

	out, err := m.Deserialize("users", rec)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}
	got, ok := out.(*user)
	if !ok {
		t.Fatalf("Deserialize returned %T, want *user", out)
	}
	if got.ID != "u1" || got.Name != "ada" || got.Email != "ada@example.com" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestSerialize_RecordPassThroughClones(t *testing.T) {
	m := usersMapper(t)

	in := Record{"id": "u1", "name": "ada"}
	rec, err := m.Serialize("users", in)
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	rec["name"] = "mutated"
	if in["name"] != "ada" {
		t.Error("Serialize must not alias the caller's record")
	}
}

func TestSerialize_InvalidEntity(t *testing.T) {
	m := usersMapper(t)

	if _, err := m.Serialize("users", make(chan int)); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("chan entity error = %v, want ErrInvalidEntity", err)
	}
	if _, err := m.Serialize("users", 42); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("scalar entity error = %v, want ErrInvalidEntity", err)
	}
}

func TestDeserialize_UntypedCollection(t *testing.T) {
	m := NewEntityMapper()
	if err := m.Register(Collection{Name: "events"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	rec := Record{"id": "e1", "kind": "signup"}
	out, err := m.Deserialize("events", rec)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}
	got, ok := out.(Record)
	if !ok {
		t.Fatalf("Deserialize returned %T, want Record", out)
	}
	got["kind"] = "mutated"
	if rec["kind"] != "signup" {
		t.Error("Deserialize must not alias the stored record")
	}
}

func TestIdentityOf(t *testing.T) {
	c := Collection{Name: "users", Identity: "id"}

	tests := []struct {
		name   string
		rec    Record
		want   string
		wantOk bool
	}{
		{"present", Record{"id": "u1"}, "u1", true},
		{"absent", Record{"name": "ada"}, "", false},
		{"nil value", Record{"id": nil}, "", false},
		{"empty string", Record{"id": ""}, "", false},
		{"numeric identity", Record{"id": float64(7)}, "7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.IdentityOf(tt.rec)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("IdentityOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
