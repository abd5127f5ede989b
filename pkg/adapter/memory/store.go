package memory

import (
	"fmt"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
)

// store is the adapter's owned resource handle: a live in-process store, or
// the disconnected sentinel installed by Disconnect. Every access path
// through the sentinel fails with ErrDisconnected, whatever was called.
type store interface {
	collection(name, identity string) (*collectionData, error)
	snapshot() (store, error)
	ping() error
	release() error
}

type liveStore struct {
	collections map[string]*collectionData
}

func newLiveStore() *liveStore {
	return &liveStore{collections: make(map[string]*collectionData)}
}

func (s *liveStore) collection(name, identity string) (*collectionData, error) {
	c, ok := s.collections[name]
	if !ok {
		c = newCollectionData(identity)
		s.collections[name] = c
	}
	return c, nil
}

func (s *liveStore) snapshot() (store, error) {
	snap := newLiveStore()
	for name, c := range s.collections {
		snap.collections[name] = c.clone()
	}
	return snap, nil
}

func (s *liveStore) ping() error    { return nil }
func (s *liveStore) release() error { return nil }

type disconnectedStore struct{}

func (disconnectedStore) collection(string, string) (*collectionData, error) {
	return nil, adapter.ErrDisconnected
}

func (disconnectedStore) snapshot() (store, error) { return nil, adapter.ErrDisconnected }
func (disconnectedStore) ping() error              { return adapter.ErrDisconnected }
func (disconnectedStore) release() error           { return adapter.ErrDisconnected }

// collectionData holds one collection's records in insertion order plus an
// identity index into that order.
type collectionData struct {
	identity string
	records  []mapper.Record
	index    map[string]int
}

func newCollectionData(identity string) *collectionData {
	return &collectionData{identity: identity, index: make(map[string]int)}
}

func (c *collectionData) clone() *collectionData {
	out := newCollectionData(c.identity)
	out.records = make([]mapper.Record, len(c.records))
	for i, rec := range c.records {
		out.records[i] = rec.Clone()
	}
	for id, i := range c.index {
		out.index[id] = i
	}
	return out
}

func (c *collectionData) get(id string) (mapper.Record, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.records[i], true
}

func (c *collectionData) insert(id string, rec mapper.Record) error {
	if _, exists := c.index[id]; exists {
		return fmt.Errorf("record %q already exists", id)
	}
	c.index[id] = len(c.records)
	c.records = append(c.records, rec)
	return nil
}

func (c *collectionData) replace(id string, rec mapper.Record) error {
	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", adapter.ErrNotFound, id)
	}
	c.records[i] = rec
	return nil
}

// upsert replaces in place or appends, keeping insertion order for records
// that already existed.
func (c *collectionData) upsert(id string, rec mapper.Record) {
	if i, ok := c.index[id]; ok {
		c.records[i] = rec
		return
	}
	c.index[id] = len(c.records)
	c.records = append(c.records, rec)
}

func (c *collectionData) remove(id string) error {
	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", adapter.ErrNotFound, id)
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	c.reindex()
	return nil
}

func (c *collectionData) removeMatching(match func(mapper.Record) bool) {
	kept := c.records[:0]
	for _, rec := range c.records {
		if !match(rec) {
			kept = append(kept, rec)
		}
	}
	c.records = kept
	c.reindex()
}

func (c *collectionData) reset() {
	c.records = nil
	c.index = make(map[string]int)
}

func (c *collectionData) reindex() {
	c.index = make(map[string]int, len(c.records))
	for i, rec := range c.records {
		if v, ok := rec[c.identity]; ok && v != nil {
			c.index[fmt.Sprintf("%v", v)] = i
		}
	}
}
