// Package curve implements the bonding-curve pricing engine: constant-product
// virtual-reserve swap math with a pool-favoring rounding policy, and the
// Active -> Graduated -> Migrated lifecycle of one traded token.
package curve

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"github.com/lumen-amm/lumen/internal/fees"
	"github.com/lumen-amm/lumen/internal/umath"
)

// Direction of a swap relative to the curve.
type Direction uint8

const (
	// Buy swaps quote into base.
	Buy Direction = iota
	// Sell swaps base into quote.
	Sell
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

// Status is the lifecycle state of a curve.
// Transitions are one-way: Active -> Graduated -> Migrated.
type Status uint8

const (
	// StatusActive allows swaps.
	StatusActive Status = iota
	// StatusGraduated rejects swaps; the curve awaits migration.
	StatusGraduated
	// StatusMigrated is terminal; liquidity lives in the external pool.
	StatusMigrated
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusGraduated:
		return "graduated"
	case StatusMigrated:
		return "migrated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

var (
	// ErrCurveGraduated is returned when a swap reaches a curve that is no
	// longer active.
	ErrCurveGraduated = errors.New("curve graduated")

	// ErrInvalidAmount is returned for zero-sized swap inputs.
	ErrInvalidAmount = errors.New("amount is zero")

	// ErrInsufficientLiquidity is returned when a sell would extract more
	// quote than the curve actually holds.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrInvalidCurveParams is returned when curve parameters are internally
	// inconsistent.
	ErrInvalidCurveParams = errors.New("invalid curve params")
)

// Params are the creation-time constants shared by every curve under one
// configuration.
type Params struct {
	InitialVirtualQuote     uint64 `yaml:"initial_virtual_quote"`
	InitialVirtualBase      uint64 `yaml:"initial_virtual_base"`
	InitialBaseReserve      uint64 `yaml:"initial_base_reserve"`
	MigrationBaseThreshold  uint64 `yaml:"migration_base_threshold"`
	MigrationQuoteThreshold uint64 `yaml:"migration_quote_threshold"`
}

// Validate checks internal consistency. The quote threshold must be exactly
// the virtual quote reserve implied by draining the base reserve down to the
// base threshold, so graduation fires on both axes in the same fill.
func (p Params) Validate() error {
	if p.InitialVirtualQuote == 0 || p.InitialVirtualBase == 0 {
		return fmt.Errorf("%w: virtual reserves must be nonzero", ErrInvalidCurveParams)
	}
	if p.InitialBaseReserve <= p.MigrationBaseThreshold {
		return fmt.Errorf("%w: initial base reserve %d must exceed migration base threshold %d",
			ErrInvalidCurveParams, p.InitialBaseReserve, p.MigrationBaseThreshold)
	}
	sellable := p.InitialBaseReserve - p.MigrationBaseThreshold
	if sellable >= p.InitialVirtualBase {
		return fmt.Errorf("%w: sellable base %d exceeds virtual base reserve %d",
			ErrInvalidCurveParams, sellable, p.InitialVirtualBase)
	}
	impliedQuote, err := umath.CeilDiv128(
		umath.Mul128(p.InitialVirtualQuote, p.InitialVirtualBase),
		p.InitialVirtualBase-sellable,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCurveParams, err)
	}
	if impliedQuote != p.MigrationQuoteThreshold {
		return fmt.Errorf("%w: migration_quote_threshold %d does not match implied graduation reserve %d",
			ErrInvalidCurveParams, p.MigrationQuoteThreshold, impliedQuote)
	}
	return nil
}

// Curve is the bonding-curve state for one traded token. It is a plain value
// owner: the engine serializes all access per curve, so no lock lives here.
type Curve struct {
	ID      string
	Creator string

	// Price-determining virtual reserves. Never reach zero.
	VirtualQuoteReserve uint64
	VirtualBaseReserve  uint64

	// Real inventory owned by the curve.
	BaseReserve  uint64
	QuoteReserve uint64

	// Unclaimed fee accumulators.
	ProtocolFeeAccrued uint64
	CreatorFeeAccrued  uint64

	Status      Status
	PoolAddress string
	CreatedAt   time.Time
	GraduatedAt time.Time
	MigratedAt  time.Time

	params Params
}

// New creates an active curve from validated params.
func New(id, creator string, p Params, now time.Time) *Curve {
	return &Curve{
		ID:                  id,
		Creator:             creator,
		VirtualQuoteReserve: p.InitialVirtualQuote,
		VirtualBaseReserve:  p.InitialVirtualBase,
		BaseReserve:         p.InitialBaseReserve,
		Status:              StatusActive,
		CreatedAt:           now,
		params:              p,
	}
}

// Params returns the curve's creation-time constants.
func (c *Curve) Params() Params { return c.params }

// Result encodes everything a computed swap would do, before it is applied.
type Result struct {
	Direction Direction

	// AmountIn is the gross input actually charged. For a buy capped at the
	// graduation boundary this is smaller than the requested input.
	AmountIn uint64
	// AmountOut is the amount transferred to the recipient: base for buys,
	// net quote for sells.
	AmountOut uint64
	// Volume is the quote-denominated trade size used for tier progression:
	// gross quote in for buys, gross quote out for sells.
	Volume uint64

	Fees fees.Breakdown

	// Capped is set when a buy was partially filled at the boundary.
	Capped bool
	// Graduates is set when applying this result completes the curve.
	Graduates bool
}

// ComputeSwap prices a swap without mutating the curve. The caller checks
// slippage against Result.AmountOut and then calls Apply, or discards the
// result; nothing is written in between.
func (c *Curve) ComputeSwap(cfg fees.Config, fctx fees.Context, amountIn uint64, dir Direction) (Result, error) {
	if c.Status != StatusActive {
		return Result{}, ErrCurveGraduated
	}
	if amountIn == 0 {
		return Result{}, ErrInvalidAmount
	}

	if dir == Buy {
		return c.computeBuy(cfg, fctx, amountIn)
	}
	return c.computeSell(cfg, fctx, amountIn)
}

func (c *Curve) computeBuy(cfg fees.Config, fctx fees.Context, amountIn uint64) (Result, error) {
	bd := cfg.Split(amountIn, fctx)

	out, _, _, err := quoteBuy(c.VirtualQuoteReserve, c.VirtualBaseReserve, bd.Net)
	if err != nil {
		return Result{}, err
	}

	sellable := c.BaseReserve - c.params.MigrationBaseThreshold
	if out < sellable {
		return Result{
			Direction: Buy,
			AmountIn:  amountIn,
			AmountOut: out,
			Volume:    amountIn,
			Fees:      bd,
		}, nil
	}

	// Partial fill at the graduation boundary: cap the output at the exact
	// sellable remainder, re-derive the implied net input from the curve,
	// and recompute the waterfall on the implied gross.
	cappedNet, err := quoteForBaseOut(c.VirtualQuoteReserve, c.VirtualBaseReserve, sellable)
	if err != nil {
		return Result{}, err
	}
	gross := cfg.GrossForNet(cappedNet, fctx.HasReferrer())
	if gross > amountIn {
		// Double ceiling rounding can overshoot the requested input by a
		// unit; the requested input already nets enough for the capped out.
		gross = amountIn
	}
	bd = cfg.Split(gross, fctx)

	return Result{
		Direction: Buy,
		AmountIn:  gross,
		AmountOut: sellable,
		Volume:    gross,
		Fees:      bd,
		Capped:    true,
		Graduates: true,
	}, nil
}

func (c *Curve) computeSell(cfg fees.Config, fctx fees.Context, amountIn uint64) (Result, error) {
	grossOut, _, _, err := quoteSell(c.VirtualQuoteReserve, c.VirtualBaseReserve, amountIn)
	if err != nil {
		return Result{}, err
	}
	if grossOut > c.QuoteReserve {
		return Result{}, ErrInsufficientLiquidity
	}

	bd := cfg.Split(grossOut, fctx)
	return Result{
		Direction: Sell,
		AmountIn:  amountIn,
		AmountOut: bd.Net,
		Volume:    grossOut,
		Fees:      bd,
	}, nil
}

// Apply commits a computed result to the reserves and fee accumulators, and
// flips the curve to Graduated when the fill completed it.
func (c *Curve) Apply(r Result, now time.Time) {
	if r.Direction == Buy {
		c.VirtualQuoteReserve += r.Fees.Net
		c.VirtualBaseReserve -= r.AmountOut
		c.QuoteReserve += r.Fees.Net
		c.BaseReserve -= r.AmountOut
	} else {
		c.VirtualBaseReserve += r.AmountIn
		c.VirtualQuoteReserve -= r.Volume
		c.BaseReserve += r.AmountIn
		c.QuoteReserve -= r.Volume
	}

	c.ProtocolFeeAccrued += r.Fees.ProtocolFee
	c.CreatorFeeAccrued += r.Fees.CreatorFee

	if r.Graduates || c.VirtualQuoteReserve >= c.params.MigrationQuoteThreshold {
		c.Status = StatusGraduated
		c.GraduatedAt = now
	}
}

// InvariantProduct returns virtualQuote * virtualBase. Non-decreasing across
// swaps; the pricing tests assert this over long swap sequences.
func (c *Curve) InvariantProduct() uint128.Uint128 {
	return umath.Mul128(c.VirtualQuoteReserve, c.VirtualBaseReserve)
}

// dec converts a uint64 amount to a decimal.
func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// SpotPrice returns the instantaneous quote-per-base price implied by the
// virtual reserves.
func (c *Curve) SpotPrice() decimal.Decimal {
	if c.VirtualBaseReserve == 0 {
		return decimal.Zero
	}
	return dec(c.VirtualQuoteReserve).Div(dec(c.VirtualBaseReserve))
}

// Progress returns graduation progress in [0, 1]: the share of the sellable
// base inventory already sold.
func (c *Curve) Progress() decimal.Decimal {
	total := c.params.InitialBaseReserve - c.params.MigrationBaseThreshold
	if total == 0 {
		return decimal.Zero
	}
	sold := c.params.InitialBaseReserve - c.BaseReserve
	return dec(sold).Div(dec(total))
}

// MigrationAmounts returns the migration fee retained by the protocol and
// the quote remainder seeded into the external pool.
func (c *Curve) MigrationAmounts(migrationFeeBPS uint64) (fee, quoteForLiquidity uint64) {
	fee, err := umath.MulDivFloor(c.QuoteReserve, migrationFeeBPS, fees.BPSDenominator)
	if err != nil {
		fee = 0
	}
	return fee, c.QuoteReserve - fee
}
