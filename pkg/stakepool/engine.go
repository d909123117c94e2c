package stakepool

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

var logger = log15.New("module", "stakepool")

// Engine owns a pool and applies operations to it atomically.
//
// Every operation snapshots the pool, computes its full mutation on a private
// clone without holding the lock, then commits under a short critical section
// if no other operation committed in between. Token side effects and the
// durable store write happen inside that section and are rolled back together.
type Engine struct {
	cfg      Config
	oracle   Oracle
	tokens   TokenLedger
	store    Store
	recorder Recorder
	log      log15.Logger
	now      func() time.Time

	mu   sync.RWMutex
	pool *Pool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the default engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithStore persists every commit to s.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger replaces the engine logger.
func WithLogger(l log15.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the time source used for receipt timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine for pool. The engine takes ownership of pool.
func NewEngine(pool *Pool, oracle Oracle, tokens TokenLedger, opts ...Option) (*Engine, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	if oracle == nil || tokens == nil {
		return nil, errors.New("oracle and token ledger are required")
	}
	if err := pool.CheckInvariant(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    DefaultConfig(),
		oracle: oracle,
		tokens: tokens,
		now:    time.Now,
		pool:   pool,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.log == nil {
		e.log = logger.New("pool", pool.Address.String())
	}
	if e.recorder != nil {
		e.recorder.ObservePool(pool)
	}
	return e, nil
}

// Pool returns a copy of the current pool state.
func (e *Engine) Pool() *Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Clone()
}

// Version returns the current commit counter.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Version
}

type tokenOpKind uint8

const (
	tokenMint tokenOpKind = iota
	tokenBurn
	tokenTransfer
)

type tokenOp struct {
	kind   tokenOpKind
	from   types.Pubkey
	to     types.Pubkey
	amount uint64
}

func (op tokenOp) apply(l TokenLedger) error {
	switch op.kind {
	case tokenMint:
		return l.Mint(op.to, op.amount)
	case tokenBurn:
		return l.Burn(op.from, op.amount)
	default:
		return l.Transfer(op.from, op.to, op.amount)
	}
}

func (op tokenOp) inverse() tokenOp {
	switch op.kind {
	case tokenMint:
		return tokenOp{kind: tokenBurn, from: op.to, amount: op.amount}
	case tokenBurn:
		return tokenOp{kind: tokenMint, to: op.from, amount: op.amount}
	default:
		return tokenOp{kind: tokenTransfer, from: op.to, to: op.from, amount: op.amount}
	}
}

// txn is an operation in progress against a private clone of the pool.
type txn struct {
	pool    *Pool
	epoch   uint64
	ops     []tokenOp
	receipt Receipt
}

func (tx *txn) mint(to types.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply, err := checkedAdd(tx.pool.TotalPoolTokens, amount)
	if err != nil {
		return err
	}
	tx.pool.TotalPoolTokens = supply
	tx.ops = append(tx.ops, tokenOp{kind: tokenMint, to: to, amount: amount})
	return nil
}

func (tx *txn) burn(from types.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply, err := checkedSub(tx.pool.TotalPoolTokens, amount)
	if err != nil {
		return err
	}
	tx.pool.TotalPoolTokens = supply
	tx.ops = append(tx.ops, tokenOp{kind: tokenBurn, from: from, amount: amount})
	return nil
}

func (tx *txn) transfer(from, to types.Pubkey, amount uint64) {
	if amount == 0 || from == to {
		return
	}
	tx.ops = append(tx.ops, tokenOp{kind: tokenTransfer, from: from, to: to, amount: amount})
}

// execute runs fn against a fresh snapshot and commits the result. fn must
// not touch the engine's pool or the token ledger's balances directly.
func (e *Engine) execute(ctx context.Context, op Operation, fn func(tx *txn) error) (*Receipt, error) {
	receipt, err := e.run(ctx, op, fn)
	e.observe(op, err)
	return receipt, err
}

func (e *Engine) run(ctx context.Context, op Operation, fn func(tx *txn) error) (*Receipt, error) {
	epoch, err := e.oracle.CurrentEpoch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query current epoch")
	}
	snap := e.Pool()
	if snap.LastUpdateEpoch != epoch {
		return nil, errors.Wrapf(ErrStaleLedger, "last update epoch %d, current epoch %d", snap.LastUpdateEpoch, epoch)
	}
	tx := &txn{pool: snap, epoch: epoch, receipt: Receipt{Operation: op, Epoch: epoch}}
	if err := fn(tx); err != nil {
		return nil, err
	}
	return e.commit(tx, snap.Version)
}

// commit installs tx.pool if the pool is still at base.
func (e *Engine) commit(tx *txn, base uint64) (*Receipt, error) {
	if err := tx.pool.CheckInvariant(); err != nil {
		return nil, errors.Wrap(ErrCalculationFailure, err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool.Version != base {
		return nil, errors.Wrapf(ErrConcurrentModification, "version %d, expected %d", e.pool.Version, base)
	}
	for i, op := range tx.ops {
		if err := op.apply(e.tokens); err != nil {
			e.revert(tx.ops[:i])
			return nil, errors.Wrapf(err, "apply token operation %d", i)
		}
	}

	tx.pool.Version = base + 1
	receipt := tx.receipt
	receipt.seal(tx.pool, e.now())

	if e.store != nil {
		if err := e.store.Commit(tx.pool, &receipt); err != nil {
			e.revert(tx.ops)
			return nil, errors.Wrap(err, "persist pool state")
		}
	}
	e.pool = tx.pool
	if e.recorder != nil {
		e.recorder.ObservePool(tx.pool)
	}
	e.log.Debug("Committed operation", "op", receipt.Operation, "version", receipt.Version,
		"lamports", receipt.Lamports, "tokens", receipt.PoolTokens)
	return &receipt, nil
}

// revert undoes applied token operations in reverse order.
func (e *Engine) revert(applied []tokenOp) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i].inverse().apply(e.tokens); err != nil {
			e.log.Error("Token rollback failed", "index", i, "err", err)
		}
	}
}

func (e *Engine) observe(op Operation, err error) {
	if e.recorder != nil {
		e.recorder.ObserveOperation(op, CodeOf(err))
	}
	if err != nil {
		e.log.Debug("Operation rejected", "op", op, "err", err)
	}
}

func requireSigner(signer, want types.Pubkey, sentinel *PoolError) error {
	if signer != want {
		return errors.Wrapf(sentinel, "signer %s", signer)
	}
	return nil
}
