package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrKeyNotFound is returned when a key has no value in the store.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. The ledger state
// manager is written against this interface so tests run in memory while the
// daemon persists to disk.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Write(batch *Batch) error
	Close()
}

type batchEntry struct {
	key   []byte
	value []byte
}

// Batch accumulates writes that Database.Write applies as one atomic unit.
// Entries apply in insertion order; a later entry for the same key wins.
type Batch struct {
	entries []batchEntry
}

// Put stages a key/value pair in the batch.
func (b *Batch) Put(key, value []byte) {
	b.entries = append(b.entries, batchEntry{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Len reports the number of staged entries.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// --- In-memory backend (tests) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

// Write applies every staged entry under a single lock.
func (db *MemDB) Write(batch *Batch) error {
	if batch == nil {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, entry := range batch.entries {
		db.data[string(entry.key)] = append([]byte(nil), entry.value...)
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {}

// Len reports the number of stored keys. Test helper.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// --- LevelDB backend (daemon) ---

type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Write applies the batch through leveldb's atomic multi-key write, so a
// crash mid-flush never persists a partial batch.
func (ldb *LevelDB) Write(batch *Batch) error {
	if batch == nil || len(batch.entries) == 0 {
		return nil
	}
	var lb leveldb.Batch
	for _, entry := range batch.entries {
		lb.Put(entry.key, entry.value)
	}
	return ldb.db.Write(&lb, nil)
}

func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
