package tokens

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// Memory is an in-memory pool token ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[types.Pubkey]uint64
	supply   uint64
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[types.Pubkey]uint64)}
}

// Mint credits amount to account.
func (m *Memory) Mint(account types.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[account]
	if bal+amount < bal || m.supply+amount < m.supply {
		return errors.Wrapf(ErrOverflow, "mint %d to %s", amount, account)
	}
	m.balances[account] = bal + amount
	m.supply += amount
	return nil
}

// Burn debits amount from account.
func (m *Memory) Burn(account types.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[account]
	if bal < amount {
		return errors.Wrapf(ErrInsufficientBalance, "burn %d from %s holding %d", amount, account, bal)
	}
	m.setLocked(account, bal-amount)
	m.supply -= amount
	return nil
}

// Transfer moves amount from one account to another.
func (m *Memory) Transfer(from, to types.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.balances[from]
	if src < amount {
		return errors.Wrapf(ErrInsufficientBalance, "transfer %d from %s holding %d", amount, from, src)
	}
	if from == to {
		return nil
	}
	dst := m.balances[to]
	if dst+amount < dst {
		return errors.Wrapf(ErrOverflow, "transfer %d to %s", amount, to)
	}
	m.setLocked(from, src-amount)
	m.balances[to] = dst + amount
	return nil
}

// BalanceOf returns the balance of account.
func (m *Memory) BalanceOf(account types.Pubkey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account], nil
}

// Supply returns the sum of all balances.
func (m *Memory) Supply() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply
}

// Balances returns a copy of every non-zero balance.
func (m *Memory) Balances() map[types.Pubkey]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.Pubkey]uint64, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out
}

func (m *Memory) setLocked(account types.Pubkey, bal uint64) {
	if bal == 0 {
		delete(m.balances, account)
		return
	}
	m.balances[account] = bal
}
