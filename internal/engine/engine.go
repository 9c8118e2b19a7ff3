// Package engine is the coordinating service that owns every bonding curve
// and reward account, serializes swaps per curve, and drives the
// graduation/migration state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumen-amm/lumen/internal/bus"
	"github.com/lumen-amm/lumen/internal/collab"
	"github.com/lumen-amm/lumen/internal/curve"
	"github.com/lumen-amm/lumen/internal/fees"
	"github.com/lumen-amm/lumen/internal/referral"
	"github.com/lumen-amm/lumen/internal/rewards"
)

var (
	// ErrCurveNotFound is returned for operations against an unknown curve.
	ErrCurveNotFound = errors.New("curve not found")

	// ErrCurveExists is returned when creating a curve whose ID is taken.
	ErrCurveExists = errors.New("curve already exists")

	// ErrInvalidRecipient is returned for swaps with an empty recipient.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrSlippageExceeded is returned when the final (possibly capped)
	// output falls below the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrNotGraduated is returned when migrating a curve that is still active.
	ErrNotGraduated = errors.New("curve not graduated")

	// ErrAlreadyMigrated is returned on a second migration attempt.
	ErrAlreadyMigrated = errors.New("curve already migrated")

	// ErrUnauthorized is returned for admin operations from a non-admin
	// principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoProtocolFeeToClaim is returned when a curve's protocol fee
	// accumulator is empty.
	ErrNoProtocolFeeToClaim = errors.New("no protocol fee to claim")
)

const (
	producerName  = "amm-engine"
	schemaVersion = "1.0"

	// treasuryAccount holds every collected fee bucket until it is claimed.
	treasuryAccount = "treasury"
)

// curveEntry pairs a curve with the mutex that serializes all access to it.
// Swaps against different curves proceed fully in parallel; swaps against
// the same curve never interleave their reserve reads and writes.
type curveEntry struct {
	mu sync.Mutex
	c  *curve.Curve
}

// Options configures an Engine.
type Options struct {
	// Admin is the single principal allowed to mutate the fee schedule and
	// claim protocol fees.
	Admin string

	// QuoteToken names the quote asset every curve trades against.
	QuoteToken string

	// MintAuthority is the account new base inventory is issued from when a
	// curve is created.
	MintAuthority string

	FeeConfig fees.Config
	Params    curve.Params

	Book        *rewards.Book
	Graph       *referral.Graph
	Transferrer collab.TokenTransferrer
	Seeder      collab.PoolSeeder
	Producer    bus.Producer

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine owns the keyed curve and account maps and all state transitions.
type Engine struct {
	admin         string
	quoteToken    string
	mintAuthority string
	params        curve.Params

	cfgMu  sync.RWMutex
	feeCfg fees.Config

	mu     sync.RWMutex
	curves map[string]*curveEntry

	book        *rewards.Book
	graph       *referral.Graph
	transferrer collab.TokenTransferrer
	seeder      collab.PoolSeeder
	producer    bus.Producer
	now         func() time.Time

	swapCount    atomic.Int64
	rejectCount  atomic.Int64
	migrateCount atomic.Int64
}

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if err := opts.FeeConfig.Validate(opts.Book.Table().MaxCashbackBPS()); err != nil {
		return nil, err
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	cfg := opts.FeeConfig
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	e := &Engine{
		admin:         opts.Admin,
		quoteToken:    opts.QuoteToken,
		mintAuthority: opts.MintAuthority,
		params:        opts.Params,
		feeCfg:        cfg,
		curves:        make(map[string]*curveEntry),
		book:          opts.Book,
		graph:         opts.Graph,
		transferrer:   opts.Transferrer,
		seeder:        opts.Seeder,
		producer:      opts.Producer,
		now:           nowFn,
	}
	log.Info().
		Str("quote_token", opts.QuoteToken).
		Uint64("fee_bps", cfg.FeeBPS).
		Uint64("migration_quote_threshold", opts.Params.MigrationQuoteThreshold).
		Msg("Engine initialized")
	return e, nil
}

// vaultAccount names the token vault owned by a curve.
func vaultAccount(curveID string) string { return "vault:" + curveID }

// FeeConfig returns the current fee schedule.
func (e *Engine) FeeConfig() fees.Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.feeCfg
}

// SetFeeConfig validates and installs a new fee schedule. Gated to the admin
// principal; the version counter increments on every accepted update.
func (e *Engine) SetFeeConfig(ctx context.Context, caller string, cfg fees.Config) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	if err := cfg.Validate(e.book.Table().MaxCashbackBPS()); err != nil {
		return err
	}

	e.cfgMu.Lock()
	cfg.Version = e.feeCfg.Version + 1
	e.feeCfg = cfg
	version := cfg.Version
	e.cfgMu.Unlock()

	log.Info().
		Uint64("version", version).
		Uint64("fee_bps", cfg.FeeBPS).
		Uint64("referee_discount_bps", cfg.RefereeDiscountBPS).
		Msg("Fee config updated")

	e.publish(ctx, bus.TopicAdmin, "fee-config", bus.FeeConfigUpdated{
		BaseEvent: bus.NewBaseEvent(producerName, schemaVersion),
		Version:   version,
		Config:    cfg,
	})
	return nil
}

// CreateCurve instantiates a new active curve from the configured initial
// reserves and issues its base inventory into the curve vault.
func (e *Engine) CreateCurve(ctx context.Context, curveID, creator string) (CurveSnapshot, error) {
	if curveID == "" || creator == "" {
		return CurveSnapshot{}, fmt.Errorf("%w: curve ID and creator required", ErrInvalidRecipient)
	}

	now := e.now()
	c := curve.New(curveID, creator, e.params, now)

	e.mu.Lock()
	if _, ok := e.curves[curveID]; ok {
		e.mu.Unlock()
		return CurveSnapshot{}, fmt.Errorf("%w: %s", ErrCurveExists, curveID)
	}
	e.curves[curveID] = &curveEntry{c: c}
	e.mu.Unlock()

	if err := e.transferrer.Transfer(ctx, curveID, e.mintAuthority, vaultAccount(curveID), e.params.InitialBaseReserve); err != nil {
		e.mu.Lock()
		delete(e.curves, curveID)
		e.mu.Unlock()
		return CurveSnapshot{}, fmt.Errorf("issue base inventory: %w", err)
	}

	log.Info().
		Str("curve_id", curveID).
		Str("creator", creator).
		Uint64("base_reserve", c.BaseReserve).
		Msg("Curve created")

	e.publish(ctx, bus.TopicLifecycle, curveID, bus.CurveCreated{
		BaseEvent:           bus.NewBaseEvent(producerName, schemaVersion),
		CurveID:             curveID,
		Creator:             creator,
		VirtualQuoteReserve: c.VirtualQuoteReserve,
		VirtualBaseReserve:  c.VirtualBaseReserve,
		BaseReserve:         c.BaseReserve,
	})
	return snapshotCurve(c), nil
}

// SetReferrer permanently assigns a referrer for user.
func (e *Engine) SetReferrer(ctx context.Context, user, referrer string) error {
	if err := e.graph.SetReferrer(user, referrer); err != nil {
		return err
	}
	log.Info().Str("user", user).Str("referrer", referrer).Msg("Referrer assigned")
	e.publish(ctx, bus.TopicReferrals, user, bus.ReferrerSet{
		BaseEvent: bus.NewBaseEvent(producerName, schemaVersion),
		User:      user,
		Referrer:  referrer,
	})
	return nil
}

// entry returns the locked entry holder for a curve.
func (e *Engine) entry(curveID string) (*curveEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.curves[curveID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCurveNotFound, curveID)
	}
	return entry, nil
}

// publish sends an event, logging instead of failing the operation when the
// bus rejects it: event delivery is best-effort by design, state is not.
func (e *Engine) publish(ctx context.Context, topic, key string, event interface{}) {
	if e.producer == nil {
		return
	}
	if err := e.producer.PublishJSON(ctx, topic, key, event); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Event publish failed")
	}
}

// --- Read surface ---

// CurveSnapshot is a read-only projection of one curve.
type CurveSnapshot struct {
	ID                  string          `json:"id"`
	Creator             string          `json:"creator"`
	VirtualQuoteReserve uint64          `json:"virtual_quote_reserve"`
	VirtualBaseReserve  uint64          `json:"virtual_base_reserve"`
	BaseReserve         uint64          `json:"base_reserve"`
	QuoteReserve        uint64          `json:"quote_reserve"`
	ProtocolFeeAccrued  uint64          `json:"protocol_fee_accrued"`
	CreatorFeeAccrued   uint64          `json:"creator_fee_accrued"`
	Status              string          `json:"status"`
	Graduated           bool            `json:"graduated"`
	Migrated            bool            `json:"migrated"`
	PoolAddress         string          `json:"pool_address,omitempty"`
	SpotPrice           decimal.Decimal `json:"spot_price"`
	Progress            decimal.Decimal `json:"progress"`
}

func snapshotCurve(c *curve.Curve) CurveSnapshot {
	return CurveSnapshot{
		ID:                  c.ID,
		Creator:             c.Creator,
		VirtualQuoteReserve: c.VirtualQuoteReserve,
		VirtualBaseReserve:  c.VirtualBaseReserve,
		BaseReserve:         c.BaseReserve,
		QuoteReserve:        c.QuoteReserve,
		ProtocolFeeAccrued:  c.ProtocolFeeAccrued,
		CreatorFeeAccrued:   c.CreatorFeeAccrued,
		Status:              c.Status.String(),
		Graduated:           c.Status != curve.StatusActive,
		Migrated:            c.Status == curve.StatusMigrated,
		PoolAddress:         c.PoolAddress,
		SpotPrice:           c.SpotPrice(),
		Progress:            c.Progress(),
	}
}

// GetCurve returns a read-only snapshot of one curve.
func (e *Engine) GetCurve(curveID string) (CurveSnapshot, error) {
	entry, err := e.entry(curveID)
	if err != nil {
		return CurveSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return snapshotCurve(entry.c), nil
}

// GetCashbackAccount returns the user's reward account snapshot.
func (e *Engine) GetCashbackAccount(user string) rewards.Snapshot {
	return e.book.Snapshot(user, e.now())
}

// GetCurrentTier returns the user's tier index and tier, derived from
// cumulative volume at call time.
func (e *Engine) GetCurrentTier(user string) (int, rewards.Tier) {
	snap := e.book.Snapshot(user, e.now())
	return snap.TierIndex, e.book.Table().Tier(snap.TierIndex)
}

// CanClaim reports whether the user can claim now and, if not, the time
// until the cooldown expires.
func (e *Engine) CanClaim(user string) (bool, time.Duration) {
	return e.book.CanClaim(user, e.now())
}

// Stats returns lifetime operation counters.
func (e *Engine) Stats() (swaps, rejects, migrations int64) {
	return e.swapCount.Load(), e.rejectCount.Load(), e.migrateCount.Load()
}
