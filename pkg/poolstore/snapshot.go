package poolstore

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// snapshotMagic prefixes every snapshot file.
var snapshotMagic = []byte("SPSNAP01")

// ErrInvalidSnapshot is returned for malformed snapshot archives.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Balance is a pool token balance carried in a snapshot.
type Balance struct {
	Account types.Pubkey
	Amount  uint64
}

// Snapshot is a portable copy of a pool, its journal, and its token balances.
type Snapshot struct {
	Pool     *stakepool.Pool
	Digest   types.Hash
	Journal  []stakepool.Receipt
	Balances []Balance
}

// snapshotFile is the gob payload. The pool travels in its canonical
// serialized form so the digest can be checked on read.
type snapshotFile struct {
	Pool     []byte
	Digest   types.Hash
	Journal  []stakepool.Receipt
	Balances []Balance
}

// WriteSnapshot writes snap to w as a zstd-compressed archive.
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	if snap.Pool == nil {
		return errors.Wrap(ErrInvalidSnapshot, "missing pool")
	}
	file := snapshotFile{
		Pool:     snap.Pool.Serialize(),
		Digest:   snap.Pool.Digest(),
		Journal:  snap.Journal,
		Balances: snap.Balances,
	}

	if _, err := w.Write(snapshotMagic); err != nil {
		return errors.Wrap(err, "write magic")
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.Wrap(err, "create zstd writer")
	}
	if err := gob.NewEncoder(enc).Encode(&file); err != nil {
		enc.Close()
		return errors.Wrap(err, "encode snapshot")
	}
	return enc.Close()
}

// ReadSnapshot reads an archive written by WriteSnapshot and verifies the
// pool digest.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, "short header")
	}
	if !bytes.Equal(magic, snapshotMagic) {
		return nil, errors.Wrap(ErrInvalidSnapshot, "bad magic")
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "create zstd reader")
	}
	defer dec.Close()

	var file snapshotFile
	if err := gob.NewDecoder(dec).Decode(&file); err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}
	pool, err := stakepool.DeserializePool(file.Pool)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}
	if got := pool.Digest(); got != file.Digest {
		return nil, errors.Wrapf(ErrDigestMismatch, "snapshot %s, computed %s", file.Digest, got)
	}
	return &Snapshot{
		Pool:     pool,
		Digest:   file.Digest,
		Journal:  file.Journal,
		Balances: file.Balances,
	}, nil
}

// Snapshot captures the stored pool and its full journal. Balances are left
// for the caller to fill from its token ledger.
func (s *BoltStore) Snapshot() (*Snapshot, error) {
	pool, err := s.Load()
	if err != nil {
		return nil, err
	}
	journal, err := s.Journal(0)
	if err != nil {
		return nil, err
	}
	// Oldest first so a restore replays in order.
	for i, j := 0, len(journal)-1; i < j; i, j = i+1, j-1 {
		journal[i], journal[j] = journal[j], journal[i]
	}
	return &Snapshot{Pool: pool, Digest: pool.Digest(), Journal: journal}, nil
}

// Restore initializes an empty store from snap.
func (s *BoltStore) Restore(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.hasPool {
		return ErrAlreadyInitialized
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putLocked(tx, snap.Pool, nil); err != nil {
			return err
		}
		journal := tx.Bucket(bucketJournal)
		for i := range snap.Journal {
			data, err := encodeReceipt(&snap.Journal[i])
			if err != nil {
				return err
			}
			if err := journal.Put(versionKey(snap.Journal[i].Version), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "restore snapshot")
	}
	s.version = snap.Pool.Version
	s.hasPool = true
	return nil
}
