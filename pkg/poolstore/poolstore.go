// Package poolstore provides durable storage for stake pool state and its
// operation journal.
//
// The pool is stored as a single serialized record alongside its digest.
// Every commit appends the operation receipt to the journal in the same bbolt
// transaction, so the stored state always matches the newest journal entry.
// Journal entries are keyed by pool version in big-endian order, which keeps
// them sorted for range scans.
package poolstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

var (
	// ErrNotInitialized is returned when the store holds no pool.
	ErrNotInitialized = errors.New("pool store not initialized")

	// ErrAlreadyInitialized is returned when initializing a store that
	// already holds a pool.
	ErrAlreadyInitialized = errors.New("pool store already initialized")

	// ErrVersionMismatch is returned when a commit does not follow the
	// stored version.
	ErrVersionMismatch = errors.New("pool version mismatch")

	// ErrDigestMismatch is returned when stored state fails its digest check.
	ErrDigestMismatch = errors.New("pool digest mismatch")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("pool store closed")
)

// Bucket names.
var (
	// bucketState holds the serialized pool and its digest.
	bucketState = []byte("state")

	// bucketJournal holds gob-encoded receipts keyed by version.
	bucketJournal = []byte("journal")
)

// State keys.
var (
	keyPool   = []byte("pool")
	keyDigest = []byte("digest")
)

// Config holds pool store configuration options.
type Config struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// NoSync disables fsync after each commit (faster but less durable).
	NoSync bool `yaml:"no_sync"`

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool `yaml:"read_only"`

	// JournalRetain is the number of newest journal entries Prune keeps.
	// Zero keeps the full journal.
	JournalRetain uint64 `yaml:"journal_retain"`
}

// DefaultConfig returns the default pool store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path: path,
	}
}

// Stats contains pool store statistics.
type Stats struct {
	Version        uint64
	JournalEntries int
	DatabaseSize   int64
}

// BoltStore implements stakepool.Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	mu      sync.RWMutex
	version uint64
	hasPool bool
	closed  bool
}

// Open creates or opens a pool store.
func Open(config Config) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}
	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	s := &BoltStore{db: db, config: config}
	if !config.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, name := range [][]byte{bucketState, bucketJournal} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return errors.Wrapf(err, "create bucket %s", name)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := s.loadCachedValues(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load cached values")
	}
	return s, nil
}

func (s *BoltStore) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return nil
		}
		data := b.Get(keyPool)
		if data == nil {
			return nil
		}
		pool, err := stakepool.DeserializePool(data)
		if err != nil {
			return err
		}
		s.version = pool.Version
		s.hasPool = true
		return nil
	})
}

func versionKey(version uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, version)
	return key
}

func encodeReceipt(r *stakepool.Receipt) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, errors.Wrap(err, "encode receipt")
	}
	return buf.Bytes(), nil
}

func decodeReceipt(data []byte) (stakepool.Receipt, error) {
	var r stakepool.Receipt
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return r, errors.Wrap(err, "decode receipt")
	}
	return r, nil
}

// putLocked writes the pool and its receipt inside tx.
func putLocked(tx *bolt.Tx, pool *stakepool.Pool, receipt *stakepool.Receipt) error {
	state := tx.Bucket(bucketState)
	digest := pool.Digest()
	if err := state.Put(keyPool, pool.Serialize()); err != nil {
		return err
	}
	if err := state.Put(keyDigest, digest[:]); err != nil {
		return err
	}
	if receipt == nil {
		return nil
	}
	data, err := encodeReceipt(receipt)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketJournal).Put(versionKey(pool.Version), data)
}

// Init stores the initial pool state and its genesis journal entry.
func (s *BoltStore) Init(pool *stakepool.Pool, genesis *stakepool.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.hasPool {
		return ErrAlreadyInitialized
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return putLocked(tx, pool, genesis)
	}); err != nil {
		return err
	}
	s.version = pool.Version
	s.hasPool = true
	return nil
}

// Commit implements stakepool.Store. The pool version must be exactly one
// past the stored version.
func (s *BoltStore) Commit(pool *stakepool.Pool, receipt *stakepool.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.hasPool {
		return ErrNotInitialized
	}
	if pool.Version != s.version+1 {
		return errors.Wrapf(ErrVersionMismatch, "stored %d, committing %d", s.version, pool.Version)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return putLocked(tx, pool, receipt)
	}); err != nil {
		return errors.Wrap(err, "commit pool")
	}
	s.version = pool.Version
	return nil
}

// Load returns the stored pool after verifying its digest.
func (s *BoltStore) Load() (*stakepool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var pool *stakepool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b == nil {
			return ErrNotInitialized
		}
		data := b.Get(keyPool)
		if data == nil {
			return ErrNotInitialized
		}
		p, err := stakepool.DeserializePool(data)
		if err != nil {
			return err
		}
		want, err := types.HashFromBytes(b.Get(keyDigest))
		if err != nil {
			return errors.Wrap(ErrDigestMismatch, err.Error())
		}
		if got := p.Digest(); got != want {
			return errors.Wrapf(ErrDigestMismatch, "stored %s, computed %s", want, got)
		}
		pool = p
		return nil
	})
	return pool, err
}

// Version returns the stored pool version.
func (s *BoltStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Journal returns up to limit receipts, newest first. A limit of zero or
// less returns the whole journal.
func (s *BoltStore) Journal(limit int) ([]stakepool.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []stakepool.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			r, err := decodeReceipt(v)
			if err != nil {
				return errors.WithMessagef(err, "version %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Receipt returns the journal entry for version.
func (s *BoltStore) Receipt(version uint64) (*stakepool.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var r *stakepool.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJournal).Get(versionKey(version))
		if data == nil {
			return errors.Errorf("no journal entry for version %d", version)
		}
		dec, err := decodeReceipt(data)
		if err != nil {
			return err
		}
		r = &dec
		return nil
	})
	return r, err
}

// Prune deletes journal entries older than the newest JournalRetain and
// returns how many were removed.
func (s *BoltStore) Prune() (int, error) {
	if s.config.JournalRetain == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.version < s.config.JournalRetain {
		return 0, nil
	}
	cutoff := versionKey(s.version - s.config.JournalRetain + 1)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Stats returns pool store statistics.
func (s *BoltStore) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	stats := &Stats{Version: s.version}
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketJournal); b != nil {
			stats.JournalEntries = b.Stats().KeyN
		}
		stats.DatabaseSize = tx.Size()
		return nil
	})
	return stats, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}
