package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/metrics"
	"github.com/xtrntr/tradeproof/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized        = errors.New("chain client not initialized")
	ErrContractNotConfigured = errors.New("verifier contract address not configured")
	ErrTransactionReverted   = errors.New("transaction reverted")
	ErrUnexpectedResult      = errors.New("unexpected contract result")
)

// Contract entry points and events
const (
	fnSubmitReport       = "submit_report"
	fnIsCommitmentUsed   = "is_commitment_used"
	fnGetTraderStats     = "get_trader_stats"
	fnGetReportCount     = "get_report_count"
	fnIsTraderRegistered = "is_trader_registered"
	fnRegisterTrader     = "register_trader"
	evReportSubmitted    = "ReportSubmitted"
)

// Event is a contract event from a transaction receipt
type Event struct {
	FromAddress *felt.Felt
	Keys        []*felt.Felt
	Data        []*felt.Felt
}

// Receipt is the confirmed outcome of an invocation
type Receipt struct {
	TransactionHash *felt.Felt
	BlockNumber     uint64
	Reverted        bool
	RevertReason    string
	Events          []Event
}

// Backend is the subset of a Starknet node and account the client needs
type Backend interface {
	Call(ctx context.Context, contract *felt.Felt, function string, calldata []*felt.Felt) ([]*felt.Felt, error)
	Invoke(ctx context.Context, contract *felt.Felt, function string, calldata []*felt.Felt) (*felt.Felt, error)
	WaitForReceipt(ctx context.Context, txHash *felt.Felt) (*Receipt, error)
	// CanSign reports whether Invoke is available
	CanSign() bool
}

// Client talks to the verifier contract
type Client struct {
	backend       Backend
	contract      *felt.Felt
	submitTimeout time.Duration
	log           *zap.Logger
}

// NewClient creates a new client. A nil contract is allowed; every contract
// call then fails with ErrContractNotConfigured.
func NewClient(backend Backend, contract *felt.Felt, submitTimeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		backend:       backend,
		contract:      contract,
		submitTimeout: submitTimeout,
		log:           log.Named("chain"),
	}
}

// Ready reports whether signing credentials are loaded. A missing contract
// address does not affect readiness; writes then fail with
// ErrContractNotConfigured.
func (c *Client) Ready() bool {
	return c.backend != nil && c.backend.CanSign()
}

func (c *Client) withSubmitTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.submitTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.submitTimeout)
}

func (c *Client) canWrite() error {
	if c.backend == nil || !c.backend.CanSign() {
		return ErrNotInitialized
	}
	if c.contract == nil {
		return ErrContractNotConfigured
	}
	return nil
}

func (c *Client) call(ctx context.Context, function string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	if c.backend == nil {
		return nil, ErrNotInitialized
	}
	if c.contract == nil {
		return nil, ErrContractNotConfigured
	}

	start := time.Now()
	out, err := c.backend.Call(ctx, c.contract, function, calldata)
	metrics.ChainCallDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("contract call failed", zap.String("function", function), zap.Error(err))
		return nil, fmt.Errorf("failed to call %s: %w", function, err)
	}
	return out, nil
}

// invoke sends a transaction and waits until it is accepted or reverted
func (c *Client) invoke(ctx context.Context, function string, calldata []*felt.Felt) (*Receipt, error) {
	if err := c.canWrite(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withSubmitTimeout(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.ChainCallDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	}()

	txHash, err := c.backend.Invoke(ctx, c.contract, function, calldata)
	if err != nil {
		c.log.Error("invoke failed", zap.String("function", function), zap.Error(err))
		return nil, fmt.Errorf("failed to invoke %s: %w", function, err)
	}
	c.log.Info("transaction sent", zap.String("function", function), zap.String("tx_hash", field.Hex(txHash)))

	receipt, err := c.backend.WaitForReceipt(ctx, txHash)
	if err != nil {
		c.log.Error("waiting for receipt failed", zap.String("tx_hash", field.Hex(txHash)), zap.Error(err))
		return nil, fmt.Errorf("failed to confirm %s: %w", field.Hex(txHash), err)
	}
	if receipt.TransactionHash == nil {
		receipt.TransactionHash = txHash
	}
	if receipt.Reverted {
		c.log.Error("transaction reverted",
			zap.String("tx_hash", field.Hex(txHash)),
			zap.String("reason", receipt.RevertReason),
		)
		return nil, fmt.Errorf("%w: %s", ErrTransactionReverted, receipt.RevertReason)
	}

	c.log.Info("transaction confirmed",
		zap.String("function", function),
		zap.String("tx_hash", field.Hex(txHash)),
		zap.Uint64("block", receipt.BlockNumber),
	)
	return receipt, nil
}

// SubmitReport invokes submit_report and blocks until confirmation or until
// ctx or the submit timeout expires
func (c *Client) SubmitReport(ctx context.Context, report models.TradingReportInput, pnl models.SignedPnL) (*models.SubmitResult, error) {
	if err := c.canWrite(); err != nil {
		return nil, err
	}
	calldata, err := SubmitCalldata(report, pnl)
	if err != nil {
		return nil, err
	}

	// One deadline covers the invoke, the wait and the report id lookup
	ctx, cancel := c.withSubmitTimeout(ctx)
	defer cancel()

	receipt, err := c.invoke(ctx, fnSubmitReport, calldata)
	if err != nil {
		return nil, err
	}

	reportID := c.reportIDFromEvents(receipt.Events)
	if reportID == nil {
		// Falls back to the counter; may race with concurrent submitters
		count, err := c.GetReportCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve report id: %w", err)
		}
		reportID = field.FromUint64(count)
	}

	return &models.SubmitResult{
		ReportID:        reportID,
		TransactionHash: receipt.TransactionHash,
		BlockNumber:     receipt.BlockNumber,
	}, nil
}

func (c *Client) reportIDFromEvents(events []Event) *felt.Felt {
	selector := Selector(evReportSubmitted)
	for _, ev := range events {
		if ev.FromAddress != nil && !ev.FromAddress.Equal(c.contract) {
			continue
		}
		if len(ev.Keys) == 0 || !ev.Keys[0].Equal(selector) {
			continue
		}
		if len(ev.Keys) > 1 {
			return ev.Keys[1]
		}
		if len(ev.Data) > 0 {
			return ev.Data[0]
		}
	}
	return nil
}

// IsCommitmentUsed asks the contract whether commitment was already accepted
func (c *Client) IsCommitmentUsed(ctx context.Context, commitment *felt.Felt) (bool, error) {
	out, err := c.call(ctx, fnIsCommitmentUsed, commitment)
	if err != nil {
		return false, err
	}
	return decodeBool(fnIsCommitmentUsed, out)
}

// GetTraderStats returns the contract's aggregate for a trader
func (c *Client) GetTraderStats(ctx context.Context, trader *felt.Felt) (*models.TraderStats, error) {
	out, err := c.call(ctx, fnGetTraderStats, trader)
	if err != nil {
		return nil, err
	}
	return decodeStats(out)
}

// GetReportCount returns the number of reports the contract has accepted
func (c *Client) GetReportCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, fnGetReportCount)
	if err != nil {
		return 0, err
	}
	if len(out) < 1 {
		return 0, fmt.Errorf("%w: %s returned no values", ErrUnexpectedResult, fnGetReportCount)
	}
	return decodeUint64(fnGetReportCount, out[0])
}

func (c *Client) IsTraderRegistered(ctx context.Context, trader *felt.Felt) (bool, error) {
	out, err := c.call(ctx, fnIsTraderRegistered, trader)
	if err != nil {
		return false, err
	}
	return decodeBool(fnIsTraderRegistered, out)
}

// RegisterTrader invokes register_trader and waits for confirmation
func (c *Client) RegisterTrader(ctx context.Context, trader *felt.Felt) (*Receipt, error) {
	return c.invoke(ctx, fnRegisterTrader, []*felt.Felt{trader})
}

func decodeBool(function string, out []*felt.Felt) (bool, error) {
	if len(out) < 1 {
		return false, fmt.Errorf("%w: %s returned no values", ErrUnexpectedResult, function)
	}
	return field.BigInt(out[0]).Sign() != 0, nil
}
