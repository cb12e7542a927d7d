package field

import (
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tradeproof/internal/models"
)

func TestScaleDecimal(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectedErr error
	}{
		{name: "Integer", input: "3", expected: "3000000000000000000"},
		{name: "Fraction", input: "12.5", expected: "12500000000000000000"},
		{name: "LeadingDot", input: ".25", expected: "250000000000000000"},
		{name: "TrailingDot", input: "7.", expected: "7000000000000000000"},
		{name: "Zero", input: "0", expected: "0"},
		{name: "ExactlyEighteen", input: "0.000000000000000001", expected: "1"},
		{name: "Truncates", input: "1.1234567890123456789", expected: "1123456789012345678"},
		{name: "TruncatesNotRounds", input: "0.9999999999999999999", expected: "999999999999999999"},
		{name: "Empty", input: "", expectedErr: ErrInvalidDecimal},
		{name: "DotOnly", input: ".", expectedErr: ErrInvalidDecimal},
		{name: "TwoDots", input: "1.2.3", expectedErr: ErrInvalidDecimal},
		{name: "Letters", input: "12a", expectedErr: ErrInvalidDecimal},
		{name: "Exponent", input: "1e5", expectedErr: ErrInvalidDecimal},
		{name: "Negative", input: "-1.5", expectedErr: ErrNegativeDecimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleDecimal(tt.input)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestScaleDecimal_RoundTrip(t *testing.T) {
	inputs := []string{"1.5", "2000.25", "0.000000000000000001", "123456789.123456789123456789", "42", "0.5"}
	for _, in := range inputs {
		scaled, err := ScaleDecimal(in)
		require.NoError(t, err)

		want := decimal.RequireFromString(in)
		if len(strings.SplitN(in, ".", 2)) == 2 && len(strings.SplitN(in, ".", 2)[1]) > Decimals {
			want = want.Truncate(Decimals)
		}
		got := decimal.RequireFromString(UnscaleDecimal(scaled))
		assert.True(t, want.Equal(got), "round trip of %s gave %s", in, got)
	}
}

func TestStringToFelt(t *testing.T) {
	assert.Equal(t, "65", Decimal(StringToFelt("A")))
	assert.Equal(t, "0", Decimal(StringToFelt("")))
	// "BTC" = 0x425443
	assert.Equal(t, "4346947", Decimal(StringToFelt("BTC")))

	long := strings.Repeat("trader-identifier-", 10)
	first := StringToFelt(long)
	second := StringToFelt(long)
	assert.True(t, first.Equal(second))
	assert.Equal(t, -1, BigInt(first).Cmp(Prime))
}

func TestStringToFelt_ReducesModPrime(t *testing.T) {
	wrapped := new(big.Int).Add(Prime, big.NewInt(65))
	collides := string(wrapped.Bytes())

	assert.True(t, StringToFelt(collides).Equal(StringToFelt("A")))
}

func TestParseFelt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "Decimal", input: "12345", expected: "12345"},
		{name: "Hex", input: "0x3039", expected: "12345"},
		{name: "UpperHexPrefix", input: "0X3039", expected: "12345"},
		{name: "Empty", input: "", wantErr: true},
		{name: "Garbage", input: "0xzz", wantErr: true},
		{name: "Negative", input: "-1", wantErr: true},
		{name: "AtPrime", input: Prime.String(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFelt(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, Decimal(got))
		})
	}
}

func TestEnums(t *testing.T) {
	side, err := SideValue("SELL")
	require.NoError(t, err)
	assert.Equal(t, SideSell, side)

	ot, err := OrderTypeValue("Stop-Loss")
	require.NoError(t, err)
	assert.Equal(t, OrderStopLoss, ot)

	ot, err = OrderTypeValue("take profit limit")
	require.NoError(t, err)
	assert.Equal(t, OrderTakeProfitLimit, ot)

	_, err = OrderTypeValue("exotic_order")
	assert.ErrorIs(t, err, ErrUnknownEnum)

	_, err = SideValue("hold")
	assert.ErrorIs(t, err, ErrUnknownEnum)
}

func sampleTrade() models.RawTrade {
	return models.RawTrade{
		TradeID:   "t-1",
		UserID:    "user-1",
		Symbol:    "ETH/USDC",
		Exchange:  "binance",
		Side:      "buy",
		OrderType: "limit",
		Quantity:  "1.5",
		Price:     "2000.25",
		Fee:       "0.1",
		Timestamp: 1700000000,
	}
}

func TestEncoder_ProcessRawTrade(t *testing.T) {
	enc := NewEncoder(false)

	p, err := enc.ProcessRawTrade(sampleTrade())
	require.NoError(t, err)

	assert.Equal(t, Decimal(StringToFelt("t-1")), Decimal(p.TradeID))
	assert.Equal(t, Decimal(StringToFelt("ETH/USDC")), Decimal(p.Symbol))
	assert.Equal(t, "0", Decimal(p.Side))
	assert.Equal(t, "1", Decimal(p.OrderType))
	assert.Equal(t, "1500000000000000000", Decimal(p.Quantity))
	assert.Equal(t, "2000250000000000000000", Decimal(p.Price))
	assert.Equal(t, "100000000000000000", Decimal(p.Fee))
	assert.Equal(t, "1700000000", Decimal(p.Timestamp))
	assert.Len(t, p.Leaf(), 10)
}

func TestEncoder_UnknownOrderType(t *testing.T) {
	raw := sampleTrade()
	raw.OrderType = "exotic_order"

	_, err := NewEncoder(false).ProcessRawTrade(raw)
	assert.ErrorIs(t, err, ErrUnknownEnum)

	p, err := NewEncoder(true).ProcessRawTrade(raw)
	require.NoError(t, err)
	assert.Equal(t, "0", Decimal(p.OrderType))
}

func TestEncoder_RejectsNegativeQuantity(t *testing.T) {
	raw := sampleTrade()
	raw.Quantity = "-2"

	_, err := NewEncoder(true).ProcessRawTrade(raw)
	assert.ErrorIs(t, err, ErrNegativeDecimal)
}

func TestEncoder_ProcessBatch(t *testing.T) {
	second := sampleTrade()
	second.TradeID = "t-2"
	second.Side = "sell"

	out, err := NewEncoder(false).ProcessBatch([]models.RawTrade{sampleTrade(), second})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", Decimal(out[1].Side))

	second.Price = "abc"
	_, err = NewEncoder(false).ProcessBatch([]models.RawTrade{sampleTrade(), second})
	assert.ErrorIs(t, err, ErrInvalidDecimal)
}
