package collab

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaperLedger is an in-memory TokenTransferrer for tests and dry runs.
// Balances are keyed by (token, account). Accounts listed as faucets have
// unlimited balance.
//
// Thread-safe: all shared state is guarded by mu.
type PaperLedger struct {
	mu       sync.Mutex
	balances map[string]uint64 // token|account -> balance
	faucets  map[string]struct{}

	// failNext forces the next Transfer to fail. Used by tests to exercise
	// the fatal-transfer path.
	failNext bool
}

// NewPaperLedger creates an empty ledger. Accounts named in faucets are
// treated as having unlimited balance.
func NewPaperLedger(faucets ...string) *PaperLedger {
	f := make(map[string]struct{}, len(faucets))
	for _, a := range faucets {
		f[a] = struct{}{}
	}
	return &PaperLedger{
		balances: make(map[string]uint64),
		faucets:  f,
	}
}

func key(token, account string) string { return token + "|" + account }

// Mint credits an account out of thin air.
func (l *PaperLedger) Mint(token, account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(token, account)] += amount
}

// Balance returns an account's balance for token.
func (l *PaperLedger) Balance(token, account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(token, account)]
}

// FailNextTransfer makes the next Transfer return ErrFailedTransfer.
func (l *PaperLedger) FailNextTransfer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = true
}

// Transfer implements TokenTransferrer.
func (l *PaperLedger) Transfer(ctx context.Context, token, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext {
		l.failNext = false
		return ErrFailedTransfer
	}

	if _, faucet := l.faucets[from]; !faucet {
		bal := l.balances[key(token, from)]
		if bal < amount {
			return fmt.Errorf("%w: %s has %d %s, need %d", ErrFailedTransfer, from, bal, token, amount)
		}
		l.balances[key(token, from)] = bal - amount
	}
	l.balances[key(token, to)] += amount
	return nil
}

var _ TokenTransferrer = (*PaperLedger)(nil)

// PaperPool is an in-memory PoolSeeder. Pools are recorded with their seeded
// amounts so tests can assert migration seeded liquidity exactly once.
//
// Thread-safe: all shared state is guarded by mu.
type PaperPool struct {
	mu    sync.Mutex
	pools map[string]*seededPool
}

type seededPool struct {
	handle  PoolHandle
	amountA uint64
	amountB uint64
	seeded  bool
}

// NewPaperPool creates an empty paper AMM.
func NewPaperPool() *PaperPool {
	return &PaperPool{pools: make(map[string]*seededPool)}
}

// CreatePool implements PoolSeeder.
func (p *PaperPool) CreatePool(ctx context.Context, tokenA, tokenB string, feeBPS uint64, initialPrice decimal.Decimal) (PoolHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := PoolHandle{
		Address: "pool-" + uuid.New().String()[:8],
		TokenA:  tokenA,
		TokenB:  tokenB,
		FeeBPS:  feeBPS,
		Price:   initialPrice,
	}
	p.pools[h.Address] = &seededPool{handle: h}
	log.Info().
		Str("pool", h.Address).
		Str("token_a", tokenA).
		Str("token_b", tokenB).
		Uint64("fee_bps", feeBPS).
		Msg("Paper pool created")
	return h, nil
}

// AddFullRangeLiquidity implements PoolSeeder. Liquidity is reported as the
// integer geometric mean of the two amounts, which is enough for assertions.
func (p *PaperPool) AddFullRangeLiquidity(ctx context.Context, pool PoolHandle, amountA, amountB uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.pools[pool.Address]
	if !ok {
		return 0, fmt.Errorf("unknown pool %s", pool.Address)
	}
	if sp.seeded {
		return 0, fmt.Errorf("pool %s already seeded", pool.Address)
	}
	sp.amountA = amountA
	sp.amountB = amountB
	sp.seeded = true

	liq := isqrtMul(amountA, amountB)
	log.Info().
		Str("pool", pool.Address).
		Uint64("amount_a", amountA).
		Uint64("amount_b", amountB).
		Uint64("liquidity", liq).
		Msg("Full-range liquidity added")
	return liq, nil
}

// Seeded returns the amounts deposited into pool, and whether it was seeded.
func (p *PaperPool) Seeded(address string) (amountA, amountB uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, found := p.pools[address]
	if !found || !sp.seeded {
		return 0, 0, false
	}
	return sp.amountA, sp.amountB, true
}

var _ PoolSeeder = (*PaperPool)(nil)

// isqrtMul returns floor(sqrt(a*b)) without overflowing uint64.
func isqrtMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	x := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	return new(big.Int).Sqrt(x).Uint64()
}
