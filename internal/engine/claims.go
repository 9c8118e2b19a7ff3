package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumen-amm/lumen/internal/bus"
)

// reclaimInactivePeriod is how long an account must sit idle before its
// unclaimed cashback can be reclaimed by the admin.
const reclaimInactivePeriod = 365 * 24 * time.Hour

// payoutTo builds the payout callback for an account-level claim: the
// claimed bucket moves from the treasury to the user.
func (e *Engine) payoutTo(ctx context.Context, user string) func(amount uint64) error {
	return func(amount uint64) error {
		return e.transferrer.Transfer(ctx, e.quoteToken, treasuryAccount, user, amount)
	}
}

// ClaimCashback drains the user's cashback bucket to their account.
func (e *Engine) ClaimCashback(ctx context.Context, user string) (uint64, error) {
	amount, err := e.book.ClaimCashback(user, e.now(), e.payoutTo(ctx, user))
	if err != nil {
		return 0, err
	}
	e.logClaim(ctx, user, "cashback", amount)
	return amount, nil
}

// ClaimReferral drains the user's referral bucket to their account.
func (e *Engine) ClaimReferral(ctx context.Context, user string) (uint64, error) {
	amount, err := e.book.ClaimReferral(user, e.now(), e.payoutTo(ctx, user))
	if err != nil {
		return 0, err
	}
	e.logClaim(ctx, user, "referral", amount)
	return amount, nil
}

// ClaimCreatorFee drains the user's creator fee bucket to their account.
func (e *Engine) ClaimCreatorFee(ctx context.Context, user string) (uint64, error) {
	amount, err := e.book.ClaimCreatorFee(user, e.now(), e.payoutTo(ctx, user))
	if err != nil {
		return 0, err
	}
	e.logClaim(ctx, user, "creator_fee", amount)
	return amount, nil
}

// ClaimProtocolFee drains a curve's protocol fee accumulator to the admin.
// Admin-gated; the accumulator includes the migration fee once migrated.
func (e *Engine) ClaimProtocolFee(ctx context.Context, caller, curveID string) (uint64, error) {
	if caller != e.admin {
		return 0, ErrUnauthorized
	}
	entry, err := e.entry(curveID)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c := entry.c

	amount := c.ProtocolFeeAccrued
	if amount == 0 {
		return 0, ErrNoProtocolFeeToClaim
	}
	if err := e.transferrer.Transfer(ctx, e.quoteToken, treasuryAccount, caller, amount); err != nil {
		return 0, fmt.Errorf("claim payout: %w", err)
	}
	c.ProtocolFeeAccrued = 0

	e.logClaim(ctx, caller, "protocol_fee", amount)
	return amount, nil
}

// ReclaimInactiveCashback forfeits the unclaimed cashback of an account with
// no activity for a year. Admin-gated. The cashback was never paid out of the
// treasury, so no transfer happens; the bucket is simply zeroed and the funds
// stay with the protocol.
func (e *Engine) ReclaimInactiveCashback(ctx context.Context, caller, user string) (uint64, error) {
	if caller != e.admin {
		return 0, ErrUnauthorized
	}
	amount, err := e.book.ReclaimInactive(user, reclaimInactivePeriod, e.now())
	if err != nil {
		return 0, err
	}
	e.logClaim(ctx, user, "reclaim", amount)
	return amount, nil
}

func (e *Engine) logClaim(ctx context.Context, user, bucket string, amount uint64) {
	log.Info().
		Str("user", user).
		Str("bucket", bucket).
		Uint64("amount", amount).
		Msg("Reward claimed")
	e.publish(ctx, bus.TopicClaims, user, bus.RewardClaimed{
		BaseEvent: bus.NewBaseEvent(producerName, schemaVersion),
		User:      user,
		Bucket:    bucket,
		Amount:    amount,
	})
}
