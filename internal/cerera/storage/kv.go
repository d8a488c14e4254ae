package storage

import (
	"fmt"
	"sync"

	"github.com/akrylysov/pogreb"
)

// KV is the generic namespaced key/value store consumed by the consensus
// core: view state, view-change bookkeeping, the validator set and the
// last executed sequence live behind this interface rather than the
// account vault's own storage path. The last proof and peer tables are
// not persisted.
type KV interface {
	Put(namespace string, key []byte, value []byte) error
	Get(namespace string, key []byte) ([]byte, error)
	Delete(namespace string, key []byte) error
	WriteBatch(namespace string, puts map[string][]byte, deletes [][]byte) error
}

// ErrNotFound is returned by Get when the key is absent from the namespace.
var ErrNotFound = fmt.Errorf("storage: key not found")

// PogrebKV backs KV with one pogreb store per namespace, opened lazily
// under a common directory. pogreb is already used for the account vault's
// underlying engine; here it is exercised directly for the consensus
// metadata, which the engine writes as a single `snapshot` key in the
// `consensus` namespace (see consensus/persist.go) rather than one key
// per field.
type PogrebKV struct {
	mu     sync.Mutex
	dir    string
	stores map[string]*pogreb.DB
}

func NewPogrebKV(dir string) *PogrebKV {
	return &PogrebKV{
		dir:    dir,
		stores: make(map[string]*pogreb.DB),
	}
}

func (kv *PogrebKV) store(namespace string) (*pogreb.DB, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if db, ok := kv.stores[namespace]; ok {
		return db, nil
	}
	path := kv.dir + "/" + sanitizeNamespace(namespace) + ".pogreb"
	db, err := pogreb.Open(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open namespace %q: %w", namespace, err)
	}
	kv.stores[namespace] = db
	return db, nil
}

func sanitizeNamespace(ns string) string {
	b := []byte(ns)
	for i, c := range b {
		if c == '/' {
			b[i] = '_'
		}
	}
	return string(b)
}

func (kv *PogrebKV) Put(namespace string, key []byte, value []byte) error {
	db, err := kv.store(namespace)
	if err != nil {
		return err
	}
	return db.Put(key, value)
}

func (kv *PogrebKV) Get(namespace string, key []byte) ([]byte, error) {
	db, err := kv.store(namespace)
	if err != nil {
		return nil, err
	}
	v, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (kv *PogrebKV) Delete(namespace string, key []byte) error {
	db, err := kv.store(namespace)
	if err != nil {
		return err
	}
	return db.Delete(key)
}

// WriteBatch applies puts then deletes. pogreb has no native multi-key
// transaction, so this is best-effort ordered application with no
// atomicity beyond a single key.
func (kv *PogrebKV) WriteBatch(namespace string, puts map[string][]byte, deletes [][]byte) error {
	db, err := kv.store(namespace)
	if err != nil {
		return err
	}
	for k, v := range puts {
		if err := db.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for _, k := range deletes {
		if err := db.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every opened namespace store.
func (kv *PogrebKV) Close() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var firstErr error
	for ns, db := range kv.stores {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close namespace %q: %w", ns, err)
		}
	}
	kv.stores = make(map[string]*pogreb.DB)
	return firstErr
}
