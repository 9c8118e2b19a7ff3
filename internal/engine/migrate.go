package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lumen-amm/lumen/internal/bus"
	"github.com/lumen-amm/lumen/internal/collab"
	"github.com/lumen-amm/lumen/internal/curve"
)

// MigrationReceipt reports a completed migration.
type MigrationReceipt struct {
	CurveID        string
	PoolAddress    string
	DepositedBase  uint64
	DepositedQuote uint64
	MigrationFee   uint64
	Liquidity      uint64
}

// Migrate performs the one-time hand-off of a graduated curve's liquidity to
// the external AMM. The migration fee is retained for the protocol; the
// remainder of the quote balance and the full remaining base inventory seed
// a full-range position in a fresh pool at the fixed fee tier. A second call
// fails cleanly with ErrAlreadyMigrated; liquidity can never be seeded twice.
func (e *Engine) Migrate(ctx context.Context, curveID string) (MigrationReceipt, error) {
	entry, err := e.entry(curveID)
	if err != nil {
		return MigrationReceipt{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c := entry.c

	switch c.Status {
	case curve.StatusActive:
		return MigrationReceipt{}, fmt.Errorf("%w: %s", ErrNotGraduated, curveID)
	case curve.StatusMigrated:
		return MigrationReceipt{}, fmt.Errorf("%w: %s", ErrAlreadyMigrated, curveID)
	}

	cfg := e.FeeConfig()
	migrationFee, quoteForLiquidity := c.MigrationAmounts(cfg.MigrationFeeBPS)
	depositedBase := c.BaseReserve

	pool, err := e.seeder.CreatePool(ctx, curveID, e.quoteToken, collab.PoolFeeTierBPS, c.SpotPrice())
	if err != nil {
		return MigrationReceipt{}, fmt.Errorf("create pool: %w", err)
	}

	vault := vaultAccount(curveID)
	steps := []transferStep{
		{e.quoteToken, vault, treasuryAccount, migrationFee},
		{e.quoteToken, vault, pool.Address, quoteForLiquidity},
		{curveID, vault, pool.Address, depositedBase},
	}
	if err := e.runTransfers(ctx, steps); err != nil {
		return MigrationReceipt{}, err
	}

	liquidity, err := e.seeder.AddFullRangeLiquidity(ctx, pool, depositedBase, quoteForLiquidity)
	if err != nil {
		// Give the liquidity back to the vault; the curve stays Graduated
		// and a later migration attempt can retry.
		rollback := []transferStep{
			{curveID, pool.Address, vault, depositedBase},
			{e.quoteToken, pool.Address, vault, quoteForLiquidity},
			{e.quoteToken, treasuryAccount, vault, migrationFee},
		}
		if rbErr := e.runTransfers(ctx, rollback); rbErr != nil {
			log.Error().Err(rbErr).Str("curve_id", curveID).Msg("Migration rollback failed")
		}
		return MigrationReceipt{}, fmt.Errorf("seed liquidity: %w", err)
	}

	c.ProtocolFeeAccrued += migrationFee
	c.PoolAddress = pool.Address
	c.BaseReserve = 0
	c.QuoteReserve = 0
	c.Status = curve.StatusMigrated
	c.MigratedAt = e.now()
	e.migrateCount.Add(1)

	log.Info().
		Str("curve_id", curveID).
		Str("pool", pool.Address).
		Uint64("deposited_base", depositedBase).
		Uint64("deposited_quote", quoteForLiquidity).
		Uint64("migration_fee", migrationFee).
		Uint64("liquidity", liquidity).
		Msg("Curve migrated")

	e.publish(ctx, bus.TopicLifecycle, curveID, bus.CurveMigrated{
		BaseEvent:      bus.NewBaseEvent(producerName, schemaVersion),
		CurveID:        curveID,
		PoolAddress:    pool.Address,
		DepositedBase:  depositedBase,
		DepositedQuote: quoteForLiquidity,
		MigrationFee:   migrationFee,
		Liquidity:      liquidity,
	})

	return MigrationReceipt{
		CurveID:        curveID,
		PoolAddress:    pool.Address,
		DepositedBase:  depositedBase,
		DepositedQuote: quoteForLiquidity,
		MigrationFee:   migrationFee,
		Liquidity:      liquidity,
	}, nil
}
