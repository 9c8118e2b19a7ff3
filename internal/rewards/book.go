package rewards

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoCashbackToClaim is returned when the cashback bucket is empty.
	ErrNoCashbackToClaim = errors.New("no cashback to claim")

	// ErrNoReferralToClaim is returned when the referral bucket is empty.
	ErrNoReferralToClaim = errors.New("no referral rewards to claim")

	// ErrNoCreatorFeeToClaim is returned when the creator fee bucket is empty.
	ErrNoCreatorFeeToClaim = errors.New("no creator fee to claim")

	// ErrClaimCooldown is returned when the claim cooldown window has not
	// elapsed since the account's last claim.
	ErrClaimCooldown = errors.New("claim cooldown not met")

	// ErrAccountActive is returned when a reclaim targets an account whose
	// last activity is inside the inactivity window.
	ErrAccountActive = errors.New("account still active")
)

// account is one trader's reward state. All mutation happens under mu so a
// user being credited concurrently as trader, referrer and creator never
// loses an increment.
type account struct {
	mu sync.Mutex

	totalVolume         uint64
	accumulatedCashback uint64
	accumulatedReferral uint64
	accumulatedCreator  uint64
	lastClaim           time.Time
	lastActivity        time.Time
	createdAt           time.Time
}

// Snapshot is a read-only copy of one account, taken under its lock.
// TierIndex is derived from TotalVolume at snapshot time, never stored.
type Snapshot struct {
	User                string    `json:"user"`
	TotalVolume         uint64    `json:"total_volume"`
	TierIndex           int       `json:"tier_index"`
	TierName            string    `json:"tier_name"`
	AccumulatedCashback uint64    `json:"accumulated_cashback"`
	AccumulatedReferral uint64    `json:"accumulated_referral"`
	AccumulatedCreator  uint64    `json:"accumulated_creator_fee"`
	LastClaim           time.Time `json:"last_claim"`
	LastActivity        time.Time `json:"last_activity"`
	CreatedAt           time.Time `json:"created_at"`
}

// Book owns every reward account, keyed by user ID. Accounts are created
// lazily on first interaction; the claim cooldown starts at creation, so a
// brand-new account waits a full window before its first claim.
type Book struct {
	table    *TierTable
	cooldown time.Duration

	mu       sync.RWMutex
	accounts map[string]*account

	credits atomic.Int64
	claims  atomic.Int64
}

// NewBook creates a reward book over the given tier table. cooldown gates
// all claim buckets of an account; zero disables the gate.
func NewBook(table *TierTable, cooldown time.Duration) *Book {
	return &Book{
		table:    table,
		cooldown: cooldown,
		accounts: make(map[string]*account),
	}
}

// Table returns the tier table the book prices cashback against.
func (b *Book) Table() *TierTable { return b.table }

// get returns the account for user, creating it if needed.
func (b *Book) get(user string, now time.Time) *account {
	b.mu.RLock()
	a, ok := b.accounts[user]
	b.mu.RUnlock()
	if ok {
		return a
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok = b.accounts[user]; ok {
		return a
	}
	a = &account{lastClaim: now, lastActivity: now, createdAt: now}
	b.accounts[user] = a
	log.Debug().Str("user", user).Msg("Reward account created")
	return a
}

// CashbackBPS returns the cashback rate the user's cumulative volume earns
// right now. Tier is recomputed from volume on every read, so a rate can
// change mid-session without any explicit upgrade step.
func (b *Book) CashbackBPS(user string, now time.Time) uint64 {
	a := b.get(user, now)
	a.mu.Lock()
	defer a.mu.Unlock()
	return b.table.CashbackBPS(a.totalVolume)
}

// AccrueTrade records a completed trade for the user: volume is added to the
// lifetime total and the cashback bucket grows by the trade's cashback fee.
func (b *Book) AccrueTrade(user string, volumeDelta, cashbackFee uint64, now time.Time) {
	a := b.get(user, now)
	a.mu.Lock()
	a.totalVolume += volumeDelta
	a.accumulatedCashback += cashbackFee
	a.lastActivity = now
	a.mu.Unlock()
	b.credits.Add(1)
}

// CreditReferral adds a referral fee bucket to the user's balance.
func (b *Book) CreditReferral(user string, amount uint64, now time.Time) {
	if amount == 0 {
		return
	}
	a := b.get(user, now)
	a.mu.Lock()
	a.accumulatedReferral += amount
	a.lastActivity = now
	a.mu.Unlock()
	b.credits.Add(1)
}

// CreditCreatorFee adds a creator fee bucket to the user's balance.
func (b *Book) CreditCreatorFee(user string, amount uint64, now time.Time) {
	if amount == 0 {
		return
	}
	a := b.get(user, now)
	a.mu.Lock()
	a.accumulatedCreator += amount
	a.lastActivity = now
	a.mu.Unlock()
	b.credits.Add(1)
}

// CanClaim reports whether the user's claim cooldown has elapsed, and if
// not, how long until it does.
func (b *Book) CanClaim(user string, now time.Time) (bool, time.Duration) {
	a := b.get(user, now)
	a.mu.Lock()
	defer a.mu.Unlock()
	return b.claimable(a, now)
}

func (b *Book) claimable(a *account, now time.Time) (bool, time.Duration) {
	if b.cooldown == 0 {
		return true, 0
	}
	next := a.lastClaim.Add(b.cooldown)
	if now.Before(next) {
		return false, next.Sub(now)
	}
	return true, 0
}

// PayoutFunc transfers a claimed amount to the user. A non-nil error aborts
// the claim with no account mutation.
type PayoutFunc func(amount uint64) error

// ClaimCashback drains the cashback bucket. All-or-nothing: the payout runs
// under the account lock and the bucket is zeroed only after it succeeds.
func (b *Book) ClaimCashback(user string, now time.Time, pay PayoutFunc) (uint64, error) {
	return b.claim(user, now, ErrNoCashbackToClaim, pay, func(a *account) *uint64 {
		return &a.accumulatedCashback
	})
}

// ClaimReferral drains the referral bucket.
func (b *Book) ClaimReferral(user string, now time.Time, pay PayoutFunc) (uint64, error) {
	return b.claim(user, now, ErrNoReferralToClaim, pay, func(a *account) *uint64 {
		return &a.accumulatedReferral
	})
}

// ClaimCreatorFee drains the creator fee bucket.
func (b *Book) ClaimCreatorFee(user string, now time.Time, pay PayoutFunc) (uint64, error) {
	return b.claim(user, now, ErrNoCreatorFeeToClaim, pay, func(a *account) *uint64 {
		return &a.accumulatedCreator
	})
}

func (b *Book) claim(user string, now time.Time, emptyErr error, pay PayoutFunc, bucket func(*account) *uint64) (uint64, error) {
	a := b.get(user, now)
	a.mu.Lock()
	defer a.mu.Unlock()

	if ok, remaining := b.claimable(a, now); !ok {
		return 0, fmt.Errorf("%w: %s remaining", ErrClaimCooldown, remaining.Round(time.Second))
	}

	ptr := bucket(a)
	amount := *ptr
	if amount == 0 {
		return 0, emptyErr
	}
	if pay != nil {
		if err := pay(amount); err != nil {
			return 0, fmt.Errorf("claim payout: %w", err)
		}
	}
	*ptr = 0
	a.lastClaim = now
	a.lastActivity = now
	b.claims.Add(1)
	return amount, nil
}

// ReclaimInactive zeroes the cashback bucket of an account with no activity
// for at least inactiveFor and returns the forfeited amount. Referral and
// creator buckets are left alone: they were earned on other users' trades.
func (b *Book) ReclaimInactive(user string, inactiveFor time.Duration, now time.Time) (uint64, error) {
	a := b.get(user, now)
	a.mu.Lock()
	defer a.mu.Unlock()

	if since := now.Sub(a.lastActivity); since < inactiveFor {
		return 0, fmt.Errorf("%w: last activity %s ago", ErrAccountActive, since.Round(time.Second))
	}
	amount := a.accumulatedCashback
	if amount == 0 {
		return 0, ErrNoCashbackToClaim
	}
	a.accumulatedCashback = 0
	log.Info().
		Str("user", user).
		Uint64("amount", amount).
		Msg("Inactive cashback reclaimed")
	return amount, nil
}

// Snapshot returns a read-only copy of the user's account.
func (b *Book) Snapshot(user string, now time.Time) Snapshot {
	a := b.get(user, now)
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := b.table.TierOf(a.totalVolume)
	return Snapshot{
		User:                user,
		TotalVolume:         a.totalVolume,
		TierIndex:           idx,
		TierName:            b.table.Tier(idx).Name,
		AccumulatedCashback: a.accumulatedCashback,
		AccumulatedReferral: a.accumulatedReferral,
		AccumulatedCreator:  a.accumulatedCreator,
		LastClaim:           a.lastClaim,
		LastActivity:        a.lastActivity,
		CreatedAt:           a.createdAt,
	}
}

// Stats returns lifetime credit and claim counters.
func (b *Book) Stats() (credits, claims int64) {
	return b.credits.Load(), b.claims.Load()
}
