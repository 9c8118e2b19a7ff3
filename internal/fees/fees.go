// Package fees implements the trading fee schedule and the waterfall that
// decomposes one fee amount into referral, creator, cashback and residual
// protocol buckets.
package fees

import (
	"errors"
	"fmt"

	"github.com/lumen-amm/lumen/internal/umath"
)

// BPSDenominator is the basis-point denominator used by every rate in the system.
const BPSDenominator = 10_000

// ErrInvalidFeeConfig is returned when a fee schedule violates the bucket
// hierarchy or bound invariants. It can only fire at configuration time;
// a schedule that passes Validate can never produce a negative residual
// at swap time.
var ErrInvalidFeeConfig = errors.New("invalid fee config")

// Config is an immutable fee schedule. All rates are in basis points.
// Mutation goes through the engine's admin setter, which validates and
// swaps the whole value; swap paths only ever read it.
type Config struct {
	FeeBPS             uint64 `yaml:"fee_bps"`
	CreatorFeeBPS      uint64 `yaml:"creator_fee_bps"`
	L1ReferralFeeBPS   uint64 `yaml:"l1_referral_fee_bps"`
	L2ReferralFeeBPS   uint64 `yaml:"l2_referral_fee_bps"`
	L3ReferralFeeBPS   uint64 `yaml:"l3_referral_fee_bps"`
	RefereeDiscountBPS uint64 `yaml:"referee_discount_bps"`
	MigrationFeeBPS    uint64 `yaml:"migration_fee_bps"`

	// Version increments on every accepted admin update.
	Version uint64 `yaml:"-"`
}

// Validate checks the schedule invariants. maxCashbackBPS is the highest
// cashback rate any tier can grant; it is included in the bound so the
// residual protocol bucket cannot underflow even for a top-tier referee.
func (c Config) Validate(maxCashbackBPS uint64) error {
	if c.FeeBPS > BPSDenominator {
		return fmt.Errorf("%w: fee_bps %d exceeds %d", ErrInvalidFeeConfig, c.FeeBPS, BPSDenominator)
	}
	if c.MigrationFeeBPS > BPSDenominator {
		return fmt.Errorf("%w: migration_fee_bps %d exceeds %d", ErrInvalidFeeConfig, c.MigrationFeeBPS, BPSDenominator)
	}
	if c.L1ReferralFeeBPS < c.L2ReferralFeeBPS || c.L2ReferralFeeBPS < c.L3ReferralFeeBPS {
		return fmt.Errorf("%w: referral levels must be non-increasing (l1=%d l2=%d l3=%d)",
			ErrInvalidFeeConfig, c.L1ReferralFeeBPS, c.L2ReferralFeeBPS, c.L3ReferralFeeBPS)
	}
	if c.RefereeDiscountBPS > c.FeeBPS {
		return fmt.Errorf("%w: referee_discount_bps %d exceeds fee_bps %d",
			ErrInvalidFeeConfig, c.RefereeDiscountBPS, c.FeeBPS)
	}
	buckets := c.CreatorFeeBPS + c.L1ReferralFeeBPS + c.L2ReferralFeeBPS + c.L3ReferralFeeBPS
	if buckets > c.FeeBPS {
		return fmt.Errorf("%w: bucket rates sum to %d bps, above fee_bps %d",
			ErrInvalidFeeConfig, buckets, c.FeeBPS)
	}
	// The discount shrinks the total while the named buckets stay fixed, so
	// the bound has to hold against the discounted rate, cashback included.
	if buckets+maxCashbackBPS > c.FeeBPS-c.RefereeDiscountBPS {
		return fmt.Errorf("%w: bucket rates plus max cashback (%d bps) exceed discounted fee rate (%d bps)",
			ErrInvalidFeeConfig, buckets+maxCashbackBPS, c.FeeBPS-c.RefereeDiscountBPS)
	}
	return nil
}

// Context carries the per-trade inputs the waterfall depends on: which
// referral levels exist for the trader, and the trader's tier cashback rate.
type Context struct {
	HasL1       bool
	HasL2       bool
	HasL3       bool
	CashbackBPS uint64
}

// HasReferrer reports whether the trader has any referrer. The referee
// discount applies exactly when this is true.
func (c Context) HasReferrer() bool {
	return c.HasL1 || c.HasL2 || c.HasL3
}

// Breakdown is the result of splitting a fee across the waterfall.
// The invariant L1+L2+L3+Creator+Cashback+Protocol == TotalFee holds exactly:
// the protocol bucket is the residual and absorbs all floor-rounding dust.
type Breakdown struct {
	L1Fee       uint64 `json:"l1_fee"`
	L2Fee       uint64 `json:"l2_fee"`
	L3Fee       uint64 `json:"l3_fee"`
	CreatorFee  uint64 `json:"creator_fee"`
	CashbackFee uint64 `json:"cashback_fee"`
	ProtocolFee uint64 `json:"protocol_fee"`
	TotalFee    uint64 `json:"total_fee"`
	Net         uint64 `json:"net"`
}

// EffectiveRateBPS returns the total fee rate applied to a trade: the base
// rate, reduced by the referee discount when the trader has a referrer.
func (c Config) EffectiveRateBPS(hasReferrer bool) uint64 {
	if hasReferrer {
		return c.FeeBPS - c.RefereeDiscountBPS
	}
	return c.FeeBPS
}

// Split decomposes the fee on amount into named buckets. Pure: the caller
// applies the buckets to accounts. Each named bucket is floored on the
// unmodified per-bucket rate; the referee discount reduces only the total.
// A validated Config cannot make the residual underflow, so Split never fails.
func (c Config) Split(amount uint64, fctx Context) Breakdown {
	var bd Breakdown

	if fctx.HasL1 {
		bd.L1Fee = mulBPS(amount, c.L1ReferralFeeBPS)
	}
	if fctx.HasL2 {
		bd.L2Fee = mulBPS(amount, c.L2ReferralFeeBPS)
	}
	if fctx.HasL3 {
		bd.L3Fee = mulBPS(amount, c.L3ReferralFeeBPS)
	}
	bd.CreatorFee = mulBPS(amount, c.CreatorFeeBPS)
	bd.CashbackFee = mulBPS(amount, fctx.CashbackBPS)

	bd.TotalFee = mulBPS(amount, c.EffectiveRateBPS(fctx.HasReferrer()))
	bd.ProtocolFee = bd.TotalFee - bd.L1Fee - bd.L2Fee - bd.L3Fee - bd.CreatorFee - bd.CashbackFee
	bd.Net = amount - bd.TotalFee
	return bd
}

// GrossForNet returns a gross amount whose net (after the effective fee rate)
// covers net. Used when a buy is capped at the graduation boundary and the
// implied input must be re-derived from the capped net amount.
func (c Config) GrossForNet(net uint64, hasReferrer bool) uint64 {
	rate := c.EffectiveRateBPS(hasReferrer)
	if rate >= BPSDenominator {
		return net
	}
	gross, err := umath.MulDivCeil(net, BPSDenominator, BPSDenominator-rate)
	if err != nil {
		// Unreachable for validated configs and uint64 trade sizes.
		return net
	}
	return gross
}

// mulBPS computes floor(amount * bps / 10000) with a 128-bit intermediate.
func mulBPS(amount, bps uint64) uint64 {
	v, err := umath.MulDivFloor(amount, bps, BPSDenominator)
	if err != nil {
		return 0
	}
	return v
}
