// Package commitment builds the Poseidon hash chains that bind a trade batch
// and its PnL summary to a trader and time window.
package commitment

import (
	"github.com/NethermindEth/juno/core/crypto"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
)

// CreateTradeCommitment folds every trade leaf into a hash chain seeded with
// the batch context. Reordering trades changes the result.
func CreateTradeCommitment(trader *felt.Felt, start, end uint64, trades []models.ProcessedTrade) *felt.Felt {
	acc := crypto.PoseidonArray(
		trader,
		field.FromUint64(start),
		field.FromUint64(end),
		field.FromUint64(uint64(len(trades))),
	)
	for _, t := range trades {
		acc = crypto.Poseidon(acc, crypto.PoseidonArray(t.Leaf()...))
	}
	return acc
}

// CreateReportHash chains the per-symbol PnL entries onto the report context
func CreateReportHash(trader *felt.Felt, start, end, tradeCount uint64, pnls []models.SymbolPnL) (*felt.Felt, error) {
	acc := crypto.PoseidonArray(
		trader,
		field.FromUint64(start),
		field.FromUint64(end),
		field.FromUint64(tradeCount),
		field.FromUint64(uint64(len(pnls))),
	)
	for _, p := range pnls {
		leaf, err := symbolLeaf(p)
		if err != nil {
			return nil, err
		}
		acc = crypto.Poseidon(acc, crypto.PoseidonArray(leaf...))
	}
	return acc, nil
}

func symbolLeaf(p models.SymbolPnL) ([]*felt.Felt, error) {
	magnitude, err := field.ToFelt(p.Magnitude)
	if err != nil {
		return nil, err
	}
	return []*felt.Felt{
		p.Symbol,
		magnitude,
		field.FromBool(p.IsNegative),
		field.FromBool(p.IsProfitable),
	}, nil
}
