package chain

import (
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
	"golang.org/x/crypto/sha3"
)

var (
	mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	maxU256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Selector returns the entry point selector for a function or event name:
// Keccak-256 of the ASCII name truncated to 250 bits
func Selector(name string) *felt.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	n := new(big.Int).SetBytes(h.Sum(nil))
	n.And(n, mask250)
	return new(felt.Felt).SetBigInt(n)
}

// SplitU256 splits v into the low and high 128-bit limbs of a Cairo u256
func SplitU256(v *big.Int) (low, high *felt.Felt, err error) {
	if v.Sign() < 0 || v.Cmp(maxU256) >= 0 {
		return nil, nil, fmt.Errorf("%w: %s does not fit u256", field.ErrOutOfField, v.String())
	}
	hi, lo := new(big.Int).QuoRem(v, two128, new(big.Int))
	return new(felt.Felt).SetBigInt(lo), new(felt.Felt).SetBigInt(hi), nil
}

// JoinU256 is the inverse of SplitU256
func JoinU256(low, high *felt.Felt) *big.Int {
	v := field.BigInt(high)
	v.Lsh(v, 128)
	return v.Add(v, field.BigInt(low))
}

// SubmitCalldata lays out submit_report arguments in contract order
func SubmitCalldata(report models.TradingReportInput, pnl models.SignedPnL) ([]*felt.Felt, error) {
	low, high, err := SplitU256(pnl.Value)
	if err != nil {
		return nil, err
	}
	return []*felt.Felt{
		report.TraderAddress,
		field.FromUint64(report.TimestampStart),
		field.FromUint64(report.TimestampEnd),
		field.FromUint64(report.TradeCount),
		field.FromUint64(report.SymbolCount),
		report.ReportHash,
		report.Commitment,
		low,
		high,
		field.FromBool(pnl.IsNegative),
	}, nil
}

// decodeStats reads get_trader_stats output:
// [total_reports, total_trades, pnl.low, pnl.high, pnl_negative]
func decodeStats(out []*felt.Felt) (*models.TraderStats, error) {
	if len(out) < 5 {
		return nil, fmt.Errorf("%w: get_trader_stats returned %d values", ErrUnexpectedResult, len(out))
	}
	reports, err := decodeUint64("get_trader_stats", out[0])
	if err != nil {
		return nil, err
	}
	trades, err := decodeUint64("get_trader_stats", out[1])
	if err != nil {
		return nil, err
	}
	return &models.TraderStats{
		TotalReports: reports,
		TotalTrades:  trades,
		TotalPnL: models.SignedPnL{
			Value:      JoinU256(out[2], out[3]),
			IsNegative: field.BigInt(out[4]).Sign() != 0,
		},
	}, nil
}

// decodeUint64 reads a count, refusing values that do not fit in 64 bits
func decodeUint64(function string, x *felt.Felt) (uint64, error) {
	v := field.BigInt(x)
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s returned %s, above 2^64", ErrUnexpectedResult, function, v.String())
	}
	return v.Uint64(), nil
}
