package proof

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/cache"
	"github.com/xtrntr/tradeproof/internal/chain"
	"github.com/xtrntr/tradeproof/internal/commitment"
	"github.com/xtrntr/tradeproof/internal/db"
	"github.com/xtrntr/tradeproof/internal/events"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/metrics"
	"github.com/xtrntr/tradeproof/internal/models"
	"github.com/xtrntr/tradeproof/internal/pnl"
	"go.uber.org/zap"
)

var ErrCommitmentUsed = errors.New("commitment already used")

// Chain is the verifier contract as seen by the service
type Chain interface {
	SubmitReport(ctx context.Context, report models.TradingReportInput, pnl models.SignedPnL) (*models.SubmitResult, error)
	IsCommitmentUsed(ctx context.Context, commitment *felt.Felt) (bool, error)
	GetTraderStats(ctx context.Context, trader *felt.Felt) (*models.TraderStats, error)
	GetReportCount(ctx context.Context) (uint64, error)
	IsTraderRegistered(ctx context.Context, trader *felt.Felt) (bool, error)
	RegisterTrader(ctx context.Context, trader *felt.Felt) (*chain.Receipt, error)
	Ready() bool
}

// GenerateResult is a batch commitment plus its PnL summary
type GenerateResult struct {
	Commitment  *felt.Felt
	ReportHash  *felt.Felt
	TradeCount  uint64
	SymbolCount uint64
	TotalPnL    models.SignedPnL
	SymbolPnLs  []models.SymbolPnL
}

// ReportStatus is what is known locally and on-chain about a report id
type ReportStatus struct {
	ReportID     string
	TotalReports uint64
	Report       *models.ReportRecord
}

// Service runs the generate and submit flows
type Service struct {
	Encoder *field.Encoder
	Chain   Chain
	Replay  cache.Replay
	Store   db.Store
	Events  events.Publisher
	log     *zap.Logger
}

// NewService creates a new proof service
func NewService(encoder *field.Encoder, c Chain, replay cache.Replay, store db.Store, publisher events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Encoder: encoder,
		Chain:   c,
		Replay:  replay,
		Store:   store,
		Events:  publisher,
		log:     log.Named("proof"),
	}
}

func (s *Service) publish(ev events.Event) {
	if s.Events != nil {
		s.Events.Publish(ev)
	}
}

// Generate encodes the batch and derives its commitment and report hash. It
// never touches the chain.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := req.Validate(s.Encoder.LenientEnums); err != nil {
		return nil, err
	}

	processed, err := s.Encoder.ProcessBatch(req.Trades)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "trades", Message: err.Error()}}}
	}
	symbols, total, err := pnl.Aggregate(req.Trades)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "trades", Message: err.Error()}}}
	}

	trader := field.StringToFelt(req.TraderID)
	start, end := uint64(req.TimestampStart), uint64(req.TimestampEnd)
	tradeCount := uint64(len(processed))

	c := commitment.CreateTradeCommitment(trader, start, end, processed)
	reportHash, err := commitment.CreateReportHash(trader, start, end, tradeCount, symbols)
	if errors.Is(err, field.ErrOutOfField) {
		return nil, &ValidationError{Fields: []FieldError{{Field: "trades", Message: "symbol pnl does not fit in a field element"}}}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build report hash: %w", err)
	}

	metrics.ProofsGenerated.Inc()
	s.log.Info("proof generated",
		zap.String("trader_id", req.TraderID),
		zap.Uint64("trades", tradeCount),
		zap.String("commitment", field.Hex(c)),
	)
	s.publish(events.Event{
		Type:       events.ProofGenerated,
		TraderID:   req.TraderID,
		Commitment: field.Hex(c),
		ReportHash: field.Hex(reportHash),
	})

	return &GenerateResult{
		Commitment:  c,
		ReportHash:  reportHash,
		TradeCount:  tradeCount,
		SymbolCount: uint64(len(symbols)),
		TotalPnL:    total,
		SymbolPnLs:  symbols,
	}, nil
}

// checkReplay consults the cache first, then the contract
func (s *Service) checkReplay(ctx context.Context, c *felt.Felt) error {
	key := field.Hex(c)
	if s.Replay != nil {
		seen, err := s.Replay.Seen(ctx, key)
		if err != nil {
			s.log.Warn("replay cache lookup failed", zap.Error(err))
		} else if seen {
			return ErrCommitmentUsed
		}
	}

	used, err := s.Chain.IsCommitmentUsed(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to check commitment: %w", err)
	}
	if used {
		s.markUsed(ctx, key)
		return ErrCommitmentUsed
	}
	return nil
}

func (s *Service) markUsed(ctx context.Context, key string) {
	if s.Replay == nil {
		return
	}
	if err := s.Replay.Mark(ctx, key); err != nil {
		s.log.Warn("failed to mark commitment", zap.String("commitment", key), zap.Error(err))
	}
}

// Submit validates the report, rejects replays and records it on-chain. No
// retry is attempted on failure.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.SubmitResult, error) {
	p, err := req.parse()
	if err != nil {
		return nil, err
	}

	if err := s.checkReplay(ctx, p.report.Commitment); err != nil {
		if errors.Is(err, ErrCommitmentUsed) {
			metrics.ReplayRejections.Inc()
			metrics.Submissions.WithLabelValues("replay").Inc()
		} else {
			metrics.Submissions.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	res, err := s.Chain.SubmitReport(ctx, p.report, p.pnl)
	if err != nil {
		metrics.Submissions.WithLabelValues("error").Inc()
		s.publish(events.Event{
			Type:       events.ProofFailed,
			TraderID:   req.TraderID,
			Commitment: field.Hex(p.report.Commitment),
			Error:      "submission failed",
		})
		return nil, fmt.Errorf("failed to submit report: %w", err)
	}
	metrics.Submissions.WithLabelValues("confirmed").Inc()

	commitmentHex := field.Hex(p.report.Commitment)
	s.markUsed(ctx, commitmentHex)

	record := &models.ReportRecord{
		ReportID:         field.Decimal(res.ReportID),
		TraderID:         req.TraderID,
		TraderAddress:    field.Hex(p.report.TraderAddress),
		Commitment:       commitmentHex,
		ReportHash:       field.Hex(p.report.ReportHash),
		TradeCount:       p.report.TradeCount,
		SymbolCount:      p.report.SymbolCount,
		TimestampStart:   req.TimestampStart,
		TimestampEnd:     req.TimestampEnd,
		TotalPnLValue:    p.pnl.Value.String(),
		TotalPnLNegative: p.pnl.IsNegative,
		TransactionHash:  field.Hex(res.TransactionHash),
		BlockNumber:      res.BlockNumber,
		CreatedAt:        time.Now().UTC(),
	}
	if s.Store != nil {
		// The report is already on-chain; a ledger failure must not turn
		// into a failed submission
		if err := s.Store.SaveReport(ctx, record); err != nil {
			s.log.Error("failed to record report", zap.String("report_id", record.ReportID), zap.Error(err))
		}
	}

	s.log.Info("report submitted",
		zap.String("trader_id", req.TraderID),
		zap.String("report_id", record.ReportID),
		zap.String("tx_hash", record.TransactionHash),
		zap.Uint64("block", res.BlockNumber),
	)
	s.publish(events.Event{
		Type:            events.ProofSubmitted,
		TraderID:        req.TraderID,
		Commitment:      commitmentHex,
		ReportHash:      record.ReportHash,
		ReportID:        record.ReportID,
		TransactionHash: record.TransactionHash,
		BlockNumber:     res.BlockNumber,
	})
	return res, nil
}

// Report returns the contract's report count and the local ledger entry for
// id, if any
func (s *Service) Report(ctx context.Context, id string) (*ReportStatus, error) {
	reportID, err := field.ParseFelt(id)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "id", Message: "must be a decimal or 0x-hex report id"}}}
	}

	count, err := s.Chain.GetReportCount(ctx)
	if err != nil {
		return nil, err
	}

	status := &ReportStatus{ReportID: field.Decimal(reportID), TotalReports: count}
	if s.Store != nil {
		record, err := s.Store.GetReport(ctx, status.ReportID)
		switch {
		case err == nil:
			status.Report = record
		case errors.Is(err, db.ErrNotFound):
		default:
			return nil, err
		}
	}
	return status, nil
}

func addressError() error {
	return &ValidationError{Fields: []FieldError{{Field: "address", Message: "must be a 0x-prefixed hex felt"}}}
}

// TraderStats returns the contract's aggregate for address
func (s *Service) TraderStats(ctx context.Context, address string) (*models.TraderStats, error) {
	trader, err := ParseAddress(address)
	if err != nil {
		return nil, addressError()
	}
	return s.Chain.GetTraderStats(ctx, trader)
}

// TraderRegistered reports whether address is registered with the contract
func (s *Service) TraderRegistered(ctx context.Context, address string) (bool, error) {
	trader, err := ParseAddress(address)
	if err != nil {
		return false, addressError()
	}
	return s.Chain.IsTraderRegistered(ctx, trader)
}

// RegisterTrader registers address with the contract
func (s *Service) RegisterTrader(ctx context.Context, address string) (*chain.Receipt, error) {
	trader, err := ParseAddress(address)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "trader_address", Message: "must be a 0x-prefixed hex felt"}}}
	}
	return s.Chain.RegisterTrader(ctx, trader)
}

// Ready reports whether submissions can be signed
func (s *Service) Ready() bool {
	return s.Chain != nil && s.Chain.Ready()
}
