package ledger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blockberries/nullspace/types"
)

// RateLimit bounds submissions per account. PerSecond <= 0 disables
// limiting.
type RateLimit struct {
	PerSecond float64
	Burst     int
	// MaxAccounts bounds the number of limiters kept; idle ones are
	// dropped first.
	MaxAccounts int
}

func (r RateLimit) withDefaults() RateLimit {
	if r.Burst <= 0 {
		r.Burst = 1
	}
	if r.MaxAccounts <= 0 {
		r.MaxAccounts = 100_000
	}
	return r
}

const limiterIdleAfter = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type submitLimiter struct {
	cfg      RateLimit
	mu       sync.Mutex
	accounts map[types.PublicKey]*limiterEntry
	clockNow func() time.Time
}

func newSubmitLimiter(cfg RateLimit) *submitLimiter {
	return &submitLimiter{
		cfg:      cfg,
		accounts: make(map[types.PublicKey]*limiterEntry),
		clockNow: time.Now,
	}
}

// Allow consumes one token from the account's bucket.
func (s *submitLimiter) Allow(account types.PublicKey) bool {
	if s.cfg.PerSecond <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clockNow()
	entry, ok := s.accounts[account]
	if !ok {
		if len(s.accounts) >= s.cfg.MaxAccounts {
			s.prune(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.PerSecond), s.cfg.Burst)}
		s.accounts[account] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// prune drops idle limiters, or all of them if none is idle.
func (s *submitLimiter) prune(now time.Time) {
	for pk, e := range s.accounts {
		if now.Sub(e.lastSeen) > limiterIdleAfter {
			delete(s.accounts, pk)
		}
	}
	if len(s.accounts) >= s.cfg.MaxAccounts {
		clear(s.accounts)
	}
}
