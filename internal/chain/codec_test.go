package chain

import (
	"math/big"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
)

func TestSelector(t *testing.T) {
	// Well-known Starknet selectors
	tests := []struct {
		name     string
		expected string
	}{
		{name: "transfer", expected: "0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e"},
		{name: "__execute__", expected: "0x15d40a3d6ca2ac30f4031e42be28da9b056fef9bb7357ac5e85627ee876e5ad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, field.Hex(Selector(tt.name)))
		})
	}

	assert.Equal(t, -1, field.BigInt(Selector("submit_report")).Cmp(mask250))
}

func TestSplitU256(t *testing.T) {
	v, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10) // 2^128 + 1
	low, high, err := SplitU256(v)
	require.NoError(t, err)
	assert.Equal(t, "1", field.Decimal(low))
	assert.Equal(t, "1", field.Decimal(high))
	assert.Equal(t, 0, JoinU256(low, high).Cmp(v))

	low, high, err = SplitU256(big.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, "8", field.Decimal(low))
	assert.Equal(t, "0", field.Decimal(high))

	_, _, err = SplitU256(big.NewInt(-1))
	assert.ErrorIs(t, err, field.ErrOutOfField)
	_, _, err = SplitU256(new(big.Int).Set(maxU256))
	assert.ErrorIs(t, err, field.ErrOutOfField)
}

func TestSubmitCalldata_Layout(t *testing.T) {
	report := models.TradingReportInput{
		TraderAddress:  field.FromUint64(0x1234),
		TimestampStart: 100,
		TimestampEnd:   200,
		TradeCount:     3,
		SymbolCount:    2,
		ReportHash:     field.FromUint64(0xbeef),
		Commitment:     field.FromUint64(0xcafe),
	}
	pnl := models.SignedPnL{Value: new(big.Int).Add(new(big.Int).Lsh(big.NewInt(5), 128), big.NewInt(7)), IsNegative: true}

	calldata, err := SubmitCalldata(report, pnl)
	require.NoError(t, err)

	got := make([]string, len(calldata))
	for i, f := range calldata {
		got[i] = field.Decimal(f)
	}
	assert.Equal(t, []string{
		"4660", "100", "200", "3", "2", "48879", "51966", "7", "5", "1",
	}, got)
}

func TestDecodeStats(t *testing.T) {
	stats, err := decodeStats([]*felt.Felt{
		field.FromUint64(4), field.FromUint64(12), field.FromUint64(9), field.FromUint64(0), field.FromUint64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.TotalReports)
	assert.Equal(t, uint64(12), stats.TotalTrades)
	assert.Equal(t, "9", stats.TotalPnL.Value.String())
	assert.True(t, stats.TotalPnL.IsNegative)

	_, err = decodeStats([]*felt.Felt{field.FromUint64(1)})
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}
