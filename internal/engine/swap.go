package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lumen-amm/lumen/internal/bus"
	"github.com/lumen-amm/lumen/internal/curve"
	"github.com/lumen-amm/lumen/internal/fees"
)

// SwapRequest is one swap against a curve.
type SwapRequest struct {
	CurveID      string
	Trader       string
	Recipient    string
	Direction    curve.Direction
	AmountIn     uint64
	MinAmountOut uint64
}

// SwapReceipt reports what a committed swap actually did.
type SwapReceipt struct {
	CurveID   string
	Trader    string
	Direction curve.Direction

	// AmountIn is the gross input charged; smaller than requested when the
	// buy was capped at the graduation boundary.
	AmountIn  uint64
	AmountOut uint64
	Volume    uint64
	Fees      fees.Breakdown
	Capped    bool
	Graduated bool
	TierIndex int
}

// transferStep is one token movement of a swap, kept so completed steps can
// be compensated when a later one fails.
type transferStep struct {
	token, from, to string
	amount          uint64
}

// Swap executes a swap end to end: price, slippage check, token transfers,
// reserve update, reward accrual, graduation check, event emission. All
// validation happens before the first write; on any error the curve and
// every account are left untouched.
func (e *Engine) Swap(ctx context.Context, req SwapRequest) (SwapReceipt, error) {
	if req.Recipient == "" {
		e.rejectCount.Add(1)
		return SwapReceipt{}, ErrInvalidRecipient
	}
	if req.AmountIn == 0 {
		e.rejectCount.Add(1)
		return SwapReceipt{}, curve.ErrInvalidAmount
	}

	entry, err := e.entry(req.CurveID)
	if err != nil {
		e.rejectCount.Add(1)
		return SwapReceipt{}, err
	}

	now := e.now()
	cfg := e.FeeConfig()
	chain := e.graph.ChainOf(req.Trader)
	fctx := fees.Context{
		HasL1:       chain.L1 != "",
		HasL2:       chain.L2 != "",
		HasL3:       chain.L3 != "",
		CashbackBPS: e.book.CashbackBPS(req.Trader, now),
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c := entry.c

	result, err := c.ComputeSwap(cfg, fctx, req.AmountIn, req.Direction)
	if err != nil {
		e.rejectCount.Add(1)
		return SwapReceipt{}, err
	}
	if result.AmountOut < req.MinAmountOut {
		e.rejectCount.Add(1)
		return SwapReceipt{}, fmt.Errorf("%w: out %d below minimum %d",
			ErrSlippageExceeded, result.AmountOut, req.MinAmountOut)
	}

	if err := e.settleSwap(ctx, c, req, result); err != nil {
		e.rejectCount.Add(1)
		return SwapReceipt{}, err
	}

	c.Apply(result, now)

	// Reward accrual: the trader's volume and cashback, each present
	// referral level, and the curve creator's fee share.
	e.book.AccrueTrade(req.Trader, result.Volume, result.Fees.CashbackFee, now)
	e.book.CreditReferral(chain.L1, result.Fees.L1Fee, now)
	e.book.CreditReferral(chain.L2, result.Fees.L2Fee, now)
	e.book.CreditReferral(chain.L3, result.Fees.L3Fee, now)
	e.book.CreditCreatorFee(c.Creator, result.Fees.CreatorFee, now)

	e.swapCount.Add(1)
	tierIdx := e.book.Snapshot(req.Trader, now).TierIndex

	evt := bus.SwapExecuted{
		BaseEvent:   bus.NewBaseEvent(producerName, schemaVersion),
		CurveID:     req.CurveID,
		Trader:      req.Trader,
		Recipient:   req.Recipient,
		Direction:   req.Direction.String(),
		AmountIn:    result.AmountIn,
		AmountOut:   result.AmountOut,
		Volume:      result.Volume,
		TradingFee:  result.Fees.TotalFee,
		Fees:        result.Fees,
		HasReferrer: fctx.HasReferrer(),
		TierIndex:   tierIdx,
		Capped:      result.Capped,
	}
	e.publish(ctx, bus.TopicSwaps, req.CurveID, evt)

	log.Info().
		Str("trace_id", evt.TraceID).
		Str("curve_id", req.CurveID).
		Str("trader", req.Trader).
		Str("direction", req.Direction.String()).
		Uint64("amount_in", result.AmountIn).
		Uint64("amount_out", result.AmountOut).
		Uint64("trading_fee", result.Fees.TotalFee).
		Bool("capped", result.Capped).
		Msg("Swap executed")

	if result.Graduates {
		log.Info().
			Str("curve_id", req.CurveID).
			Uint64("virtual_quote_reserve", c.VirtualQuoteReserve).
			Uint64("base_reserve", c.BaseReserve).
			Msg("Curve graduated")
		e.publish(ctx, bus.TopicLifecycle, req.CurveID, bus.CurveGraduated{
			BaseEvent:           bus.NewBaseEvent(producerName, schemaVersion),
			CurveID:             req.CurveID,
			VirtualQuoteReserve: c.VirtualQuoteReserve,
			BaseReserve:         c.BaseReserve,
			QuoteReserve:        c.QuoteReserve,
		})
	}

	return SwapReceipt{
		CurveID:   req.CurveID,
		Trader:    req.Trader,
		Direction: req.Direction,
		AmountIn:  result.AmountIn,
		AmountOut: result.AmountOut,
		Volume:    result.Volume,
		Fees:      result.Fees,
		Capped:    result.Capped,
		Graduated: result.Graduates,
		TierIndex: tierIdx,
	}, nil
}

// settleSwap runs the token movements of a computed swap. A failure on any
// step reverses the completed ones, so a failed swap moves nothing.
func (e *Engine) settleSwap(ctx context.Context, c *curve.Curve, req SwapRequest, r curve.Result) error {
	vault := vaultAccount(c.ID)

	var steps []transferStep
	if req.Direction == curve.Buy {
		steps = []transferStep{
			{e.quoteToken, req.Trader, vault, r.AmountIn},
			{e.quoteToken, vault, treasuryAccount, r.Fees.TotalFee},
			{c.ID, vault, req.Recipient, r.AmountOut},
		}
	} else {
		steps = []transferStep{
			{c.ID, req.Trader, vault, r.AmountIn},
			{e.quoteToken, vault, req.Recipient, r.AmountOut},
			{e.quoteToken, vault, treasuryAccount, r.Fees.TotalFee},
		}
	}
	return e.runTransfers(ctx, steps)
}

// runTransfers executes steps in order, compensating completed steps in
// reverse when one fails.
func (e *Engine) runTransfers(ctx context.Context, steps []transferStep) error {
	for i, s := range steps {
		if s.amount == 0 {
			continue
		}
		if err := e.transferrer.Transfer(ctx, s.token, s.from, s.to, s.amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				u := steps[j]
				if u.amount == 0 {
					continue
				}
				if rbErr := e.transferrer.Transfer(ctx, u.token, u.to, u.from, u.amount); rbErr != nil {
					log.Error().Err(rbErr).
						Str("token", u.token).
						Str("from", u.to).
						Str("to", u.from).
						Uint64("amount", u.amount).
						Msg("Compensating transfer failed")
				}
			}
			return fmt.Errorf("transfer %s %d from %s to %s: %w", s.token, s.amount, s.from, s.to, err)
		}
	}
	return nil
}
