package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumen-amm/lumen/internal/fees"
)

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with generated IDs.
func NewBaseEvent(producer, schemaVersion string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		SchemaVersion: schemaVersion,
		Producer:      producer,
		TraceID:       uuid.New().String()[:16],
	}
}

// Topic names for the event stream.
const (
	TopicSwaps     = "amm.swaps"
	TopicLifecycle = "amm.curve_lifecycle"
	TopicClaims    = "amm.claims"
	TopicReferrals = "amm.referrals"
	TopicAdmin     = "amm.admin"
)

// --- Trading Events ---

// SwapExecuted is the per-swap record consumed by indexers and the cashback
// pipeline downstream. Fee buckets always sum exactly to TradingFee.
type SwapExecuted struct {
	BaseEvent
	CurveID     string         `json:"curve_id"`
	Trader      string         `json:"trader"`
	Recipient   string         `json:"recipient"`
	Direction   string         `json:"direction"` // buy|sell
	AmountIn    uint64         `json:"amount_in"`
	AmountOut   uint64         `json:"amount_out"`
	Volume      uint64         `json:"volume"`
	TradingFee  uint64         `json:"trading_fee"`
	Fees        fees.Breakdown `json:"fees"`
	HasReferrer bool           `json:"has_referrer"`
	TierIndex   int            `json:"tier_index"`
	Capped      bool           `json:"capped"`
}

// --- Lifecycle Events ---

// CurveCreated marks a new bonding curve entering the Active state.
type CurveCreated struct {
	BaseEvent
	CurveID             string `json:"curve_id"`
	Creator             string `json:"creator"`
	VirtualQuoteReserve uint64 `json:"virtual_quote_reserve"`
	VirtualBaseReserve  uint64 `json:"virtual_base_reserve"`
	BaseReserve         uint64 `json:"base_reserve"`
}

// CurveGraduated marks the automatic Active -> Graduated transition.
type CurveGraduated struct {
	BaseEvent
	CurveID             string `json:"curve_id"`
	VirtualQuoteReserve uint64 `json:"virtual_quote_reserve"`
	BaseReserve         uint64 `json:"base_reserve"`
	QuoteReserve        uint64 `json:"quote_reserve"`
}

// CurveMigrated marks the one-time hand-off to the external pool.
type CurveMigrated struct {
	BaseEvent
	CurveID        string `json:"curve_id"`
	PoolAddress    string `json:"pool_address"`
	DepositedBase  uint64 `json:"deposited_base"`
	DepositedQuote uint64 `json:"deposited_quote"`
	MigrationFee   uint64 `json:"migration_fee"`
	Liquidity      uint64 `json:"liquidity"`
}

// --- Reward Events ---

// RewardClaimed records a successful claim of one reward bucket.
type RewardClaimed struct {
	BaseEvent
	User   string `json:"user"`
	Bucket string `json:"bucket"` // cashback|referral|creator_fee|protocol_fee
	Amount uint64 `json:"amount"`
}

// ReferrerSet records a permanent referrer assignment.
type ReferrerSet struct {
	BaseEvent
	User     string `json:"user"`
	Referrer string `json:"referrer"`
}

// --- Admin Events ---

// FeeConfigUpdated records an accepted admin fee schedule change.
type FeeConfigUpdated struct {
	BaseEvent
	Version uint64      `json:"version"`
	Config  fees.Config `json:"config"`
}
