// Package collab defines the boundary contracts the engine consumes from the
// surrounding systems: token transfers and external-AMM pool seeding. The
// engine never knows whether it is talking to a real chain or an in-memory
// paper implementation.
package collab

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// PoolFeeTierBPS is the fee tier of every migrated pool. Fixed at the 1%
// tier; the external pool owns all tick/liquidity math.
const PoolFeeTierBPS = 100

// ErrFailedTransfer is returned by a token transfer that could not complete.
// The engine treats it as fatal to the enclosing swap, claim or migration.
var ErrFailedTransfer = errors.New("token transfer failed")

// TokenTransferrer moves token balances between principals.
type TokenTransferrer interface {
	// Transfer moves amount of token from one account to another. Any
	// failure is returned as (or wrapping) ErrFailedTransfer.
	Transfer(ctx context.Context, token, from, to string, amount uint64) error
}

// PoolHandle identifies a pool created on the external AMM.
type PoolHandle struct {
	Address string          `json:"address"`
	TokenA  string          `json:"token_a"`
	TokenB  string          `json:"token_b"`
	FeeBPS  uint64          `json:"fee_bps"`
	Price   decimal.Decimal `json:"initial_price"`
}

// PoolSeeder creates and seeds pools on the external AMM at migration.
// The engine only supplies two token amounts and the fee tier constant;
// it never computes tick ranges or liquidity-curve math.
type PoolSeeder interface {
	// CreatePool creates an empty pool for the token pair at the given fee
	// tier and initial price, returning its handle.
	CreatePool(ctx context.Context, tokenA, tokenB string, feeBPS uint64, initialPrice decimal.Decimal) (PoolHandle, error)

	// AddFullRangeLiquidity deposits both amounts as full-range liquidity
	// and returns the liquidity amount minted.
	AddFullRangeLiquidity(ctx context.Context, pool PoolHandle, amountA, amountB uint64) (uint64, error)
}
