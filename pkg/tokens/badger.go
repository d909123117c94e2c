package tokens

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// Key prefixes for BadgerDB storage.
var (
	// prefixBalance is the prefix for holder balances.
	// Key format: prefixBalance + pubkey (32 bytes)
	prefixBalance = []byte{0x01}

	// prefixMeta is the prefix for metadata.
	prefixMeta = []byte{0x02}

	// metaSupply is the key for the total token supply.
	metaSupply = append(append([]byte{}, prefixMeta...), []byte("supply")...)
)

// BadgerConfig contains configuration for BadgerLedger.
type BadgerConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures every balance change is synced to disk.
	SyncWrites bool

	// Logger is an optional logger. Nil disables badger logging.
	Logger badger.Logger
}

// DefaultBadgerConfig returns default configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// BadgerLedger is a BadgerDB-backed token ledger. Each call runs in its own
// badger transaction, so a balance change and the supply update it implies
// are written atomically.
type BadgerLedger struct {
	db *badger.DB

	// mu serializes writers so read-modify-write cycles never conflict.
	mu sync.Mutex

	supply atomic.Uint64
	closed atomic.Bool
}

// OpenBadger opens or creates a ledger.
func OpenBadger(cfg BadgerConfig) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	l := &BadgerLedger{db: db}
	err = db.View(func(txn *badger.Txn) error {
		v, err := readUint64(txn, metaSupply)
		l.supply.Store(v)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load supply")
	}
	return l, nil
}

func balanceKey(account types.Pubkey) []byte {
	key := make([]byte, 1+types.PubkeySize)
	key[0] = prefixBalance[0]
	copy(key[1:], account[:])
	return key
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return errors.Errorf("corrupt value for key %x", key)
		}
		v = binary.LittleEndian.Uint64(val)
		return nil
	})
	return v, err
}

func writeUint64(txn *badger.Txn, key []byte, v uint64) error {
	if v == 0 && key[0] == prefixBalance[0] {
		return txn.Delete(key)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return txn.Set(key, buf)
}

// update runs fn in a write transaction under the writer lock.
func (l *BadgerLedger) update(fn func(txn *badger.Txn) error) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Update(fn)
}

// Mint credits amount to account.
func (l *BadgerLedger) Mint(account types.Pubkey, amount uint64) error {
	var supply uint64
	err := l.update(func(txn *badger.Txn) error {
		bal, err := readUint64(txn, balanceKey(account))
		if err != nil {
			return err
		}
		cur, err := readUint64(txn, metaSupply)
		if err != nil {
			return err
		}
		if bal+amount < bal || cur+amount < cur {
			return errors.Wrapf(ErrOverflow, "mint %d to %s", amount, account)
		}
		supply = cur + amount
		if err := writeUint64(txn, balanceKey(account), bal+amount); err != nil {
			return err
		}
		return writeUint64(txn, metaSupply, supply)
	})
	if err != nil {
		return err
	}
	l.supply.Store(supply)
	return nil
}

// Burn debits amount from account.
func (l *BadgerLedger) Burn(account types.Pubkey, amount uint64) error {
	var supply uint64
	err := l.update(func(txn *badger.Txn) error {
		bal, err := readUint64(txn, balanceKey(account))
		if err != nil {
			return err
		}
		if bal < amount {
			return errors.Wrapf(ErrInsufficientBalance, "burn %d from %s holding %d", amount, account, bal)
		}
		cur, err := readUint64(txn, metaSupply)
		if err != nil {
			return err
		}
		supply = cur - amount
		if err := writeUint64(txn, balanceKey(account), bal-amount); err != nil {
			return err
		}
		return writeUint64(txn, metaSupply, supply)
	})
	if err != nil {
		return err
	}
	l.supply.Store(supply)
	return nil
}

// Transfer moves amount between accounts.
func (l *BadgerLedger) Transfer(from, to types.Pubkey, amount uint64) error {
	return l.update(func(txn *badger.Txn) error {
		src, err := readUint64(txn, balanceKey(from))
		if err != nil {
			return err
		}
		if src < amount {
			return errors.Wrapf(ErrInsufficientBalance, "transfer %d from %s holding %d", amount, from, src)
		}
		if from == to {
			return nil
		}
		dst, err := readUint64(txn, balanceKey(to))
		if err != nil {
			return err
		}
		if dst+amount < dst {
			return errors.Wrapf(ErrOverflow, "transfer %d to %s", amount, to)
		}
		if err := writeUint64(txn, balanceKey(from), src-amount); err != nil {
			return err
		}
		return writeUint64(txn, balanceKey(to), dst+amount)
	})
}

// BalanceOf returns the balance of account.
func (l *BadgerLedger) BalanceOf(account types.Pubkey) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	var bal uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		bal, err = readUint64(txn, balanceKey(account))
		return err
	})
	return bal, err
}

// Supply returns the total token supply.
func (l *BadgerLedger) Supply() uint64 {
	return l.supply.Load()
}

// IterateBalances calls fn for every non-zero balance in pubkey order.
// Return an error from fn to stop iteration.
func (l *BadgerLedger) IterateBalances(fn func(account types.Pubkey, balance uint64) error) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixBalance
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 1+types.PubkeySize {
				continue
			}
			var account types.Pubkey
			copy(account[:], key[1:])
			var bal uint64
			err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return errors.Errorf("corrupt balance for %s", account)
				}
				bal = binary.LittleEndian.Uint64(val)
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(account, bal); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (l *BadgerLedger) Close() error {
	if l.closed.Swap(true) {
		return ErrClosed
	}
	return l.db.Close()
}
