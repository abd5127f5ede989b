package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultIdentity is the record key assumed to hold an entity's identity
// when a collection does not override it.
const DefaultIdentity = "id"

var (
	// ErrUnknownCollection classifies lookups of collections that were never registered.
	ErrUnknownCollection = errors.New("mapper unknown collection")
	// ErrInvalidEntity classifies entities that cannot be translated to or from a record.
	ErrInvalidEntity = errors.New("mapper invalid entity")
)

// Record is the storage-level shape of an entity: one row or document.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Collection describes how one named group of records maps to entities.
type Collection struct {
	Name     string
	Identity string // record key holding the identity, defaults to "id"

	// NewEntity builds an empty entity for deserialization. When nil,
	// records pass through untyped.
	NewEntity func() any
}

// IdentityOf reads the identity value of rec. The second return is false when
// the identity is absent or blank.
func (c Collection) IdentityOf(rec Record) (string, bool) {
	v, ok := rec[c.Identity]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// SetIdentity writes id under the collection's identity key.
func (c Collection) SetIdentity(rec Record, id string) {
	rec[c.Identity] = id
}

// Mapper translates between entities and storage records. Adapters receive a
// Mapper at construction and never inspect entity internals directly.
type Mapper interface {
	Collection(name string) (Collection, error)
	Serialize(collection string, entity any) (Record, error)
	Deserialize(collection string, rec Record) (any, error)
}

// EntityMapper is a JSON round-trip Mapper with an explicit collection registry.
type EntityMapper struct {
	mu          sync.RWMutex
	collections map[string]Collection
}

// NewEntityMapper creates an empty mapper.
func NewEntityMapper() *EntityMapper {
	return &EntityMapper{collections: make(map[string]Collection)}
}

// Register adds a collection mapping. The name must be non-blank and unique.
func (m *EntityMapper) Register(c Collection) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	c.Name = name
	if c.Identity == "" {
		c.Identity = DefaultIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.collections[name]; exists {
		return fmt.Errorf("collection %q already registered", name)
	}
	m.collections[name] = c
	return nil
}

// Collection returns the mapping registered under name.
func (m *EntityMapper) Collection(name string) (Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Serialize converts an entity into a record for the given collection.
func (m *EntityMapper) Serialize(collection string, entity any) (Record, error) {
	if _, err := m.Collection(collection); err != nil {
		return nil, err
	}
	if rec, ok := entity.(Record); ok {
		return rec.Clone(), nil
	}
	if rec, ok := entity.(map[string]any); ok {
		return Record(rec).Clone(), nil
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: entity must map to a record, got %T", ErrInvalidEntity, entity)
	}
	return rec, nil
}

// Deserialize converts a record back into the collection's entity type. For
// collections registered without NewEntity the record itself is returned.
func (m *EntityMapper) Deserialize(collection string, rec Record) (any, error) {
	c, err := m.Collection(collection)
	if err != nil {
		return nil, err
	}
	if c.NewEntity == nil {
		return rec.Clone(), nil
	}

	entity := c.NewEntity()
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	if err := json.Unmarshal(data, entity); err != nil {
		return nil, fmt.Errorf("%w: record does not fit %T: %v", ErrInvalidEntity, entity, err)
	}
	return entity, nil
}
