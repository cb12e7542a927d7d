package models

import (
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
)

// RawTrade represents one executed trade as received from upstream
type RawTrade struct {
	TradeID   string `json:"trade_id" validate:"nonzero"`
	UserID    string `json:"user_id" validate:"nonzero"`
	Symbol    string `json:"symbol" validate:"nonzero,max=64"`
	Exchange  string `json:"exchange" validate:"nonzero,max=64"`
	Side      string `json:"side" validate:"nonzero"`
	OrderType string `json:"order_type" validate:"nonzero"`
	Quantity  string `json:"quantity" validate:"nonzero"`
	Price     string `json:"price" validate:"nonzero"`
	Fee       string `json:"fee" validate:"nonzero"`
	Timestamp int64  `json:"timestamp" validate:"min=0"`
}

// ProcessedTrade is the field-encoded form of a RawTrade.
// Field order matches the circuit's leaf layout.
type ProcessedTrade struct {
	TradeID   *felt.Felt
	UserID    *felt.Felt
	Symbol    *felt.Felt
	Exchange  *felt.Felt
	Side      *felt.Felt
	OrderType *felt.Felt
	Quantity  *felt.Felt
	Price     *felt.Felt
	Fee       *felt.Felt
	Timestamp *felt.Felt
}

// Leaf returns the ten encoded fields in leaf order
func (t ProcessedTrade) Leaf() []*felt.Felt {
	return []*felt.Felt{
		t.TradeID, t.UserID, t.Symbol, t.Exchange, t.Side,
		t.OrderType, t.Quantity, t.Price, t.Fee, t.Timestamp,
	}
}

// SymbolPnL is the aggregated profit/loss for one symbol (sign-magnitude)
type SymbolPnL struct {
	Name         string
	Symbol       *felt.Felt
	Magnitude    *big.Int
	IsNegative   bool
	IsProfitable bool
}

// SignedPnL is a sign-magnitude amount scaled by 10^18
type SignedPnL struct {
	Value      *big.Int
	IsNegative bool
}

// TradingReportInput is the record submitted on-chain
type TradingReportInput struct {
	TraderAddress  *felt.Felt
	TimestampStart uint64
	TimestampEnd   uint64
	TradeCount     uint64
	SymbolCount    uint64
	ReportHash     *felt.Felt
	Commitment     *felt.Felt
}

// SubmitResult describes a confirmed contract invocation
type SubmitResult struct {
	ReportID        *felt.Felt
	TransactionHash *felt.Felt
	BlockNumber     uint64
}

// TraderStats is the contract's per-trader aggregate
type TraderStats struct {
	TotalReports uint64
	TotalTrades  uint64
	TotalPnL     SignedPnL
}

// PaymentProof records a confirmed subscription payment
type PaymentProof struct {
	PaymentID   string    `json:"payment_id"`
	Tier        string    `json:"tier"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ReportRecord is the local ledger entry for a confirmed submission
type ReportRecord struct {
	ReportID         string    `json:"report_id"`
	TraderID         string    `json:"trader_id"`
	TraderAddress    string    `json:"trader_address"`
	Commitment       string    `json:"commitment"`
	ReportHash       string    `json:"report_hash"`
	TradeCount       uint64    `json:"trade_count"`
	SymbolCount      uint64    `json:"symbol_count"`
	TimestampStart   int64     `json:"timestamp_start"`
	TimestampEnd     int64     `json:"timestamp_end"`
	TotalPnLValue    string    `json:"total_pnl_value"`
	TotalPnLNegative bool      `json:"total_pnl_negative"`
	TransactionHash  string    `json:"transaction_hash"`
	BlockNumber      uint64    `json:"block_number"`
	CreatedAt        time.Time `json:"created_at"`
}
