// Package mempool holds admitted transactions until they are proposed.
// Transactions are queued per account in nonce order and accounts are
// served round-robin so one busy account cannot starve the others.
package mempool

import (
	"errors"
	"slices"
	"sync"

	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/types"
)

const (
	DefaultMaxBacklog      = 64
	DefaultMaxTransactions = 100_000

	// compactAfterStaleSkips bounds how many dead queue entries are
	// skipped before the queue is rebuilt.
	compactAfterStaleSkips = 1024
)

var (
	ErrDuplicateNonce  = errors.New("mempool: duplicate nonce")
	ErrMempoolFull     = errors.New("mempool: full")
	ErrBacklogExceeded = errors.New("mempool: account backlog exceeded")
)

// Config bounds the mempool.
type Config struct {
	// MaxBacklog is the most transactions one account may hold.
	MaxBacklog int `toml:"max_backlog"`
	// MaxTransactions is the most transactions held overall.
	MaxTransactions int `toml:"max_transactions"`
}

func DefaultConfig() Config {
	return Config{MaxBacklog: DefaultMaxBacklog, MaxTransactions: DefaultMaxTransactions}
}

// Mempool is safe for concurrent use.
type Mempool struct {
	mu      sync.Mutex
	cfg     Config
	metrics *metrics.MempoolMetrics

	total   int
	tracked map[types.PublicKey][]types.Transaction // sorted by nonce
	// queue holds accounts in service order. Entries for accounts no
	// longer in queued are stale and skipped.
	queue  []types.PublicKey
	queued map[types.PublicKey]struct{}
}

// New returns an empty mempool. Zero limits take their defaults.
func New(cfg Config, m *metrics.MempoolMetrics) *Mempool {
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = DefaultMaxBacklog
	}
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = DefaultMaxTransactions
	}
	return &Mempool{
		cfg:     cfg,
		metrics: m,
		tracked: make(map[types.PublicKey][]types.Transaction),
		queued:  make(map[types.PublicKey]struct{}),
	}
}

func byNonce(tx types.Transaction, nonce uint64) int {
	switch {
	case tx.Nonce < nonce:
		return -1
	case tx.Nonce > nonce:
		return 1
	}
	return 0
}

// Add inserts tx. When the account's backlog overflows, the
// transaction with the highest nonce is evicted; if that is tx itself
// Add returns ErrBacklogExceeded.
func (m *Mempool) Add(tx types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.updateMetrics()

	if m.total >= m.cfg.MaxTransactions {
		return ErrMempoolFull
	}
	txs := m.tracked[tx.Public]
	i, found := slices.BinarySearchFunc(txs, tx.Nonce, byNonce)
	if found {
		return ErrDuplicateNonce
	}
	txs = slices.Insert(txs, i, tx)
	m.total++

	var evicted bool
	if len(txs) > m.cfg.MaxBacklog {
		last := txs[len(txs)-1]
		txs = txs[:len(txs)-1]
		m.total--
		evicted = last.Nonce == tx.Nonce
	}
	m.tracked[tx.Public] = txs
	if _, ok := m.queued[tx.Public]; !ok {
		m.queued[tx.Public] = struct{}{}
		m.queue = append(m.queue, tx.Public)
	}
	if evicted {
		return ErrBacklogExceeded
	}
	return nil
}

// Retain drops the account's transactions with a nonce below minNonce.
func (m *Mempool) Retain(account types.PublicKey, minNonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.updateMetrics()

	txs, ok := m.tracked[account]
	if !ok {
		return
	}
	i, _ := slices.BinarySearchFunc(txs, minNonce, byNonce)
	m.total -= i
	txs = txs[i:]
	if len(txs) == 0 {
		m.untrack(account)
		return
	}
	m.tracked[account] = txs
}

// Next removes and returns the lowest-nonce transaction of the next
// account in round-robin order.
func (m *Mempool) Next() (types.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.updateMetrics()

	stale := 0
	for len(m.queue) > 0 {
		account := m.queue[0]
		m.queue = m.queue[1:]
		txs, live := m.tracked[account]
		if _, ok := m.queued[account]; !ok || !live {
			stale++
			if stale >= compactAfterStaleSkips {
				m.compact()
				stale = 0
			}
			continue
		}
		tx := txs[0]
		m.total--
		if len(txs) == 1 {
			m.untrack(account)
		} else {
			m.tracked[account] = txs[1:]
			m.queue = append(m.queue, account)
		}
		return tx, true
	}
	return types.Transaction{}, false
}

// Select returns up to limit transactions without removing them.
// Accounts are visited in round-robin order and each visit takes the
// account's next transaction only if its nonce is the one expected;
// later rounds continue with consecutive nonces. An account whose
// queue does not start at expected(account) contributes nothing. A nil
// expected starts every account at its lowest queued nonce.
func (m *Mempool) Select(limit int, expected func(types.PublicKey) uint64) []types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || m.total == 0 {
		return nil
	}

	type cursor struct {
		txs  []types.Transaction
		next uint64
	}
	cursors := make([]cursor, 0, len(m.queued))
	seen := make(map[types.PublicKey]struct{}, len(m.queued))
	for _, account := range m.queue {
		if _, ok := m.queued[account]; !ok {
			continue
		}
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		txs := m.tracked[account]
		if len(txs) == 0 {
			continue
		}
		next := txs[0].Nonce
		if expected != nil {
			next = expected(account)
			i, found := slices.BinarySearchFunc(txs, next, byNonce)
			if !found {
				continue
			}
			txs = txs[i:]
		}
		cursors = append(cursors, cursor{txs: txs, next: next})
	}

	out := make([]types.Transaction, 0, min(limit, m.total))
	for len(out) < limit {
		progressed := false
		for i := range cursors {
			c := &cursors[i]
			if len(c.txs) == 0 || c.txs[0].Nonce != c.next {
				continue
			}
			out = append(out, c.txs[0])
			c.txs = c.txs[1:]
			c.next++
			progressed = true
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

// Pending returns the account's queued transactions in nonce order.
func (m *Mempool) Pending(account types.PublicKey) []types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tracked[account])
}

// Len returns the number of transactions and of accounts held.
func (m *Mempool) Len() (transactions, accounts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, len(m.tracked)
}

func (m *Mempool) untrack(account types.PublicKey) {
	delete(m.tracked, account)
	delete(m.queued, account)
}

// compact drops stale queue entries, keeping the first occurrence of
// each live account.
func (m *Mempool) compact() {
	seen := make(map[types.PublicKey]struct{}, len(m.queued))
	live := m.queue[:0]
	for _, account := range m.queue {
		if _, ok := m.queued[account]; !ok {
			continue
		}
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		live = append(live, account)
	}
	m.queue = live
}

func (m *Mempool) updateMetrics() {
	m.metrics.SetSize(m.total, len(m.tracked))
}
