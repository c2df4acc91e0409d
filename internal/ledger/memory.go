package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var errReadOnly = errors.New("ledger: write in read-only transaction")

// MemoryStore keeps records in process memory. Transactions are serialized
// by a store-wide lock and stage their writes in an overlay that is merged
// only when the callback succeeds.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key][]byte
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key][]byte)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{base: s.records, writes: make(map[Key][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		s.records[k] = v
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memoryTx{base: s.records, readOnly: true})
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	base     map[Key][]byte
	writes   map[Key][]byte
	readOnly bool
}

func (tx *memoryTx) lookup(key Key) ([]byte, bool) {
	if data, ok := tx.writes[key]; ok {
		return data, true
	}
	data, ok := tx.base[key]
	return data, ok
}

func (tx *memoryTx) Get(key Key, v any) error {
	data, ok := tx.lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (tx *memoryTx) Put(key Key, v any) error {
	if tx.readOnly {
		return errReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tx.writes[key] = data
	return nil
}

func (tx *memoryTx) Create(key Key, v any) error {
	if _, ok := tx.lookup(key); ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	return tx.Put(key, v)
}

func (tx *memoryTx) Scan(kind Kind, fn func(key Key, decode func(v any) error) error) error {
	var keys []Key
	for k := range tx.base {
		if k.Kind() == kind {
			keys = append(keys, k)
		}
	}
	for k := range tx.writes {
		if _, ok := tx.base[k]; !ok && k.Kind() == kind {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		data, _ := tx.lookup(k)
		decode := func(v any) error { return json.Unmarshal(data, v) }
		if err := fn(k, decode); err != nil {
			return err
		}
	}
	return nil
}
