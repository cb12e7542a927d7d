package proof

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tradeproof/internal/cache"
	"github.com/xtrntr/tradeproof/internal/chain"
	"github.com/xtrntr/tradeproof/internal/chain/chaintest"
	"github.com/xtrntr/tradeproof/internal/db"
	"github.com/xtrntr/tradeproof/internal/events"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc    *Service
	fake   *chaintest.Fake
	store  db.Store
	replay *cache.Memory
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "proof.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	fake := chaintest.New()
	client := chain.NewClient(fake, field.FromUint64(0x5eed), 5*time.Second, nil)
	replay := cache.NewMemory()
	rec := &recorder{}

	return &fixture{
		svc:    NewService(field.NewEncoder(false), client, replay, store, rec, nil),
		fake:   fake,
		store:  store,
		replay: replay,
		events: rec,
	}
}

func rawTrade(id, symbol, side, qty, price string, ts int64) models.RawTrade {
	return models.RawTrade{
		TradeID:   id,
		UserID:    "user-1",
		Symbol:    symbol,
		Exchange:  "binance",
		Side:      side,
		OrderType: "limit",
		Quantity:  qty,
		Price:     price,
		Fee:       "0.1",
		Timestamp: ts,
	}
}

func generateRequest() GenerateRequest {
	return GenerateRequest{
		Trades: []models.RawTrade{
			rawTrade("t-1", "ETH/USDC", "buy", "1.5", "2000.25", 1700000100),
			rawTrade("t-2", "ETH/USDC", "sell", "1.5", "2100", 1700000200),
		},
		TraderID:       "trader-1",
		TimestampStart: 1700000000,
		TimestampEnd:   1700003600,
	}
}

func submitRequest(res *GenerateResult) SubmitRequest {
	return SubmitRequest{
		TraderID:         "trader-1",
		TraderAddress:    "0x1234",
		TimestampStart:   1700000000,
		TimestampEnd:     1700003600,
		TradeCount:       res.TradeCount,
		SymbolCount:      res.SymbolCount,
		ReportHash:       field.Hex(res.ReportHash),
		Commitment:       field.Hex(res.Commitment),
		TotalPnLValue:    res.TotalPnL.Value.String(),
		TotalPnLNegative: res.TotalPnL.IsNegative,
	}
}

func TestService_Generate(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Generate(context.Background(), generateRequest())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), res.TradeCount)
	assert.Equal(t, uint64(1), res.SymbolCount)
	require.Len(t, res.SymbolPnLs, 1)
	// (2100 - 2000.25) * 1.5 - 0.1 - 0.1
	assert.Equal(t, "149.425", field.UnscaleDecimal(res.TotalPnL.Value))
	assert.False(t, res.TotalPnL.IsNegative)
	assert.Equal(t, []string{events.ProofGenerated}, f.events.types())
	assert.Empty(t, f.fake.Invocations)

	again, err := f.svc.Generate(context.Background(), generateRequest())
	require.NoError(t, err)
	assert.True(t, res.Commitment.Equal(again.Commitment))
}

func TestService_Generate_SingleTradeMatchesManualChain(t *testing.T) {
	f := newFixture(t)
	req := generateRequest()
	req.Trades = req.Trades[:1]

	res, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	p, err := field.NewEncoder(false).ProcessRawTrade(req.Trades[0])
	require.NoError(t, err)
	trader := field.StringToFelt("trader-1")
	seed := crypto.PoseidonArray(trader, field.FromUint64(1700000000), field.FromUint64(1700003600), field.FromUint64(1))
	leaf := crypto.PoseidonArray(p.TradeID, p.UserID, p.Symbol, p.Exchange, p.Side, p.OrderType, p.Quantity, p.Price, p.Fee, p.Timestamp)

	assert.True(t, crypto.Poseidon(seed, leaf).Equal(res.Commitment))
}

func TestService_Generate_PnLOutsideField(t *testing.T) {
	f := newFixture(t)
	req := generateRequest()
	req.Trades = []models.RawTrade{
		rawTrade("t-1", "BTC/USDT", "buy", "100000000000000000000000000000", "100000000000000000000000000000", 1700000100),
		rawTrade("t-2", "BTC/USDT", "sell", "100000000000000000000000000000", "200000000000000000000000000000", 1700000200),
	}
	for i := range req.Trades {
		req.Trades[i].Fee = "0"
	}
	require.NoError(t, req.Validate(false))

	_, err := f.svc.Generate(context.Background(), req)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "trades", verr.Fields[0].Field)
	assert.Empty(t, f.events.types())
}

func TestGenerateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *GenerateRequest)
		lenient bool
		field   string
	}{
		{name: "NoTrades", mutate: func(r *GenerateRequest) { r.Trades = nil }, field: "trades"},
		{name: "TooManyTrades", mutate: func(r *GenerateRequest) {
			for len(r.Trades) <= MaxTrades {
				r.Trades = append(r.Trades, r.Trades[0])
			}
		}, field: "trades"},
		{name: "EmptyTrader", mutate: func(r *GenerateRequest) { r.TraderID = "" }, field: "trader_id"},
		{name: "WindowReversed", mutate: func(r *GenerateRequest) { r.TimestampEnd = r.TimestampStart - 1 }, field: "timestamp_end"},
		{name: "BadSide", mutate: func(r *GenerateRequest) { r.Trades[0].Side = "hold" }, field: "trades[0].side"},
		{name: "UnknownOrderType", mutate: func(r *GenerateRequest) { r.Trades[1].OrderType = "exotic_order" }, field: "trades[1].order_type"},
		{name: "ZeroQuantity", mutate: func(r *GenerateRequest) { r.Trades[0].Quantity = "0" }, field: "trades[0].quantity"},
		{name: "NegativePrice", mutate: func(r *GenerateRequest) { r.Trades[0].Price = "-5" }, field: "trades[0].price"},
		{name: "BadFee", mutate: func(r *GenerateRequest) { r.Trades[0].Fee = "abc" }, field: "trades[0].fee"},
		{name: "MissingSymbol", mutate: func(r *GenerateRequest) { r.Trades[0].Symbol = "" }, field: "trades[0].symbol"},
		{name: "OutsideWindow", mutate: func(r *GenerateRequest) { r.Trades[0].Timestamp = 1 }, field: "trades[0].timestamp"},
		{name: "LenientOrderType", mutate: func(r *GenerateRequest) { r.Trades[1].OrderType = "exotic_order" }, lenient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := generateRequest()
			tt.mutate(&req)

			err := req.Validate(tt.lenient)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			fields := make([]string, len(verr.Fields))
			for i, fe := range verr.Fields {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, generateRequest())
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, submitRequest(gen))
	require.NoError(t, err)
	assert.Equal(t, "1", field.Decimal(res.ReportID))

	record, err := f.store.GetReport(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, field.Hex(gen.Commitment), record.Commitment)
	assert.Equal(t, "trader-1", record.TraderID)

	seen, err := f.replay.Seen(ctx, field.Hex(gen.Commitment))
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Contains(t, f.events.types(), events.ProofSubmitted)

	_, err = f.svc.Submit(ctx, submitRequest(gen))
	assert.ErrorIs(t, err, ErrCommitmentUsed)
	assert.Equal(t, uint64(1), f.fake.Reports())
}

func TestService_Submit_ReplayDetectedOnChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, generateRequest())
	require.NoError(t, err)
	f.fake.MarkUsed(gen.Commitment)

	_, err = f.svc.Submit(ctx, submitRequest(gen))
	assert.ErrorIs(t, err, ErrCommitmentUsed)
	assert.Empty(t, f.fake.Invocations)

	seen, err := f.replay.Seen(ctx, field.Hex(gen.Commitment))
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestService_Submit_ChainErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.svc.Generate(ctx, generateRequest())
	require.NoError(t, err)

	f.fake.Signer = false
	_, err = f.svc.Submit(ctx, submitRequest(gen))
	assert.ErrorIs(t, err, chain.ErrNotInitialized)
	assert.Contains(t, f.events.types(), events.ProofFailed)
	assert.False(t, f.svc.Ready())

	f.fake.Signer = true
	f.fake.CallErr = errors.New("rpc down")
	_, err = f.svc.Submit(ctx, submitRequest(gen))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCommitmentUsed)
}

func TestSubmitRequest_Validation(t *testing.T) {
	base := SubmitRequest{
		TraderID:       "trader-1",
		TraderAddress:  "0x1234",
		TimestampStart: 1,
		TimestampEnd:   2,
		TradeCount:     2,
		SymbolCount:    1,
		ReportHash:     "0x1",
		Commitment:     "0x2",
		TotalPnLValue:  "8",
	}

	tests := []struct {
		name   string
		mutate func(r *SubmitRequest)
		field  string
	}{
		{name: "Valid", mutate: func(r *SubmitRequest) {}},
		{name: "DecimalAddress", mutate: func(r *SubmitRequest) { r.TraderAddress = "4660" }, field: "trader_address"},
		{name: "AddressTooLarge", mutate: func(r *SubmitRequest) { r.TraderAddress = "0x" + field.Prime.Text(16) }, field: "trader_address"},
		{name: "SymbolsExceedTrades", mutate: func(r *SubmitRequest) { r.SymbolCount = 3 }, field: "symbol_count"},
		{name: "ZeroTrades", mutate: func(r *SubmitRequest) { r.TradeCount = 0; r.SymbolCount = 0 }, field: "trade_count"},
		{name: "TooManyTrades", mutate: func(r *SubmitRequest) { r.TradeCount = 11 }, field: "trade_count"},
		{name: "BadPnL", mutate: func(r *SubmitRequest) { r.TotalPnLValue = "1.5" }, field: "total_pnl_value"},
		{name: "MissingCommitment", mutate: func(r *SubmitRequest) { r.Commitment = "" }, field: "commitment"},
		{name: "WindowReversed", mutate: func(r *SubmitRequest) { r.TimestampStart = 3 }, field: "timestamp_end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)

			p, err := req.parse()
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, "4660", field.Decimal(p.report.TraderAddress))
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
			fields := make([]string, len(verr.Fields))
			for i, fe := range verr.Fields {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestService_ReportAndTrader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gen, err := f.svc.Generate(ctx, generateRequest())
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, submitRequest(gen))
	require.NoError(t, err)

	status, err := f.svc.Report(ctx, "0x1")
	require.NoError(t, err)
	assert.Equal(t, "1", status.ReportID)
	assert.Equal(t, uint64(1), status.TotalReports)
	require.NotNil(t, status.Report)

	status, err = f.svc.Report(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, status.Report)

	_, err = f.svc.Report(ctx, "not-a-number")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	stats, err := f.svc.TraderStats(ctx, "0x1234")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalReports)
	assert.Equal(t, uint64(2), stats.TotalTrades)

	registered, err := f.svc.TraderRegistered(ctx, "0x1234")
	require.NoError(t, err)
	assert.False(t, registered)

	_, err = f.svc.RegisterTrader(ctx, "0x1234")
	require.NoError(t, err)
	registered, err = f.svc.TraderRegistered(ctx, "0x1234")
	require.NoError(t, err)
	assert.True(t, registered)

	_, err = f.svc.TraderStats(ctx, "trader-1")
	assert.True(t, errors.As(err, &verr))
}
