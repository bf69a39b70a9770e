package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
)

// Database backs the marketplace state trie. Implementations expose the
// triedb handle shared by the trie wrapper and commit machinery.
type Database interface {
	TrieDB() *triedb.Database
	Close()
}

// KVStore is a plain key-value store used for data that lives outside the
// state trie, such as the append-only event history.
type KVStore interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close()
}

// --- In-memory trie database (for testing) ---

type MemDB struct {
	kv     *memorydb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	kv := memorydb.New()
	return &MemDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), nil),
	}
}

func (db *MemDB) TrieDB() *triedb.Database { return db.trieDB }

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {}

// --- Persistent trie database ---

// LevelDB is a persistent state database using LevelDB through go-ethereum's
// ethdb adapter so the trie layer can share the same handle.
type LevelDB struct {
	kv     *leveldb.Database
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.New(path, 128, 1024, "tokenmart", false)
	if err != nil {
		return nil, err
	}
	return &LevelDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), nil),
	}, nil
}

func (db *LevelDB) TrieDB() *triedb.Database { return db.trieDB }

func (db *LevelDB) Close() {
	_ = db.trieDB.Close()
	_ = db.kv.Close()
}

// --- Plain key-value stores ---

type MemKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (db *MemKV) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemKV) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return value, nil
}

func (db *MemKV) Close() {}

// LevelKV is a persistent key-value store using LevelDB directly. It holds
// the event history so the history survives restarts without bloating the
// state trie.
type LevelKV struct {
	db *goleveldb.DB
}

// NewLevelKV creates or opens a LevelDB key-value store at the specified path.
func NewLevelKV(path string) (*LevelKV, error) {
	db, err := goleveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelKV{db: db}, nil
}

func (kv *LevelKV) Put(key []byte, value []byte) error {
	return kv.db.Put(key, value, nil)
}

func (kv *LevelKV) Get(key []byte) ([]byte, error) {
	return kv.db.Get(key, nil)
}

func (kv *LevelKV) Close() {
	_ = kv.db.Close()
}
