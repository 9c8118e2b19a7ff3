package collab

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperLedgerTransfer(t *testing.T) {
	l := NewPaperLedger()
	ctx := context.Background()

	l.Mint("WSOL", "alice", 100)

	require.NoError(t, l.Transfer(ctx, "WSOL", "alice", "bob", 60))
	assert.Equal(t, uint64(40), l.Balance("WSOL", "alice"))
	assert.Equal(t, uint64(60), l.Balance("WSOL", "bob"))

	// Balances are per token.
	assert.Equal(t, uint64(0), l.Balance("USDC", "bob"))
}

func TestPaperLedgerInsufficientBalance(t *testing.T) {
	l := NewPaperLedger()
	ctx := context.Background()

	l.Mint("WSOL", "alice", 10)
	err := l.Transfer(ctx, "WSOL", "alice", "bob", 11)
	assert.ErrorIs(t, err, ErrFailedTransfer)

	// Nothing moved.
	assert.Equal(t, uint64(10), l.Balance("WSOL", "alice"))
	assert.Equal(t, uint64(0), l.Balance("WSOL", "bob"))
}

func TestPaperLedgerFaucet(t *testing.T) {
	l := NewPaperLedger("mint-authority")
	ctx := context.Background()

	// Faucets never run dry and their balance is not tracked.
	require.NoError(t, l.Transfer(ctx, "TOKEN", "mint-authority", "vault", 1_000_000))
	require.NoError(t, l.Transfer(ctx, "TOKEN", "mint-authority", "vault", 1_000_000))
	assert.Equal(t, uint64(2_000_000), l.Balance("TOKEN", "vault"))
}

func TestPaperLedgerFailNext(t *testing.T) {
	l := NewPaperLedger("faucet")
	ctx := context.Background()

	l.FailNextTransfer()
	assert.ErrorIs(t, l.Transfer(ctx, "WSOL", "faucet", "bob", 1), ErrFailedTransfer)

	// One-shot: the next transfer goes through.
	require.NoError(t, l.Transfer(ctx, "WSOL", "faucet", "bob", 1))
}

func TestPaperPoolSeedOnce(t *testing.T) {
	p := NewPaperPool()
	ctx := context.Background()

	h, err := p.CreatePool(ctx, "TOKEN", "WSOL", PoolFeeTierBPS, decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	assert.NotEmpty(t, h.Address)
	assert.Equal(t, uint64(PoolFeeTierBPS), h.FeeBPS)

	liq, err := p.AddFullRangeLiquidity(ctx, h, 400, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), liq) // floor(sqrt(400*100))

	a, b, ok := p.Seeded(h.Address)
	require.True(t, ok)
	assert.Equal(t, uint64(400), a)
	assert.Equal(t, uint64(100), b)

	// Seeding twice is rejected.
	_, err = p.AddFullRangeLiquidity(ctx, h, 1, 1)
	assert.Error(t, err)
}

func TestPaperPoolUnknownPool(t *testing.T) {
	p := NewPaperPool()
	_, err := p.AddFullRangeLiquidity(context.Background(), PoolHandle{Address: "nope"}, 1, 1)
	assert.Error(t, err)

	_, _, ok := p.Seeded("nope")
	assert.False(t, ok)
}
