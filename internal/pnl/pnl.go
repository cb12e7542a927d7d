package pnl

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
)

// lot is an open position fragment awaiting an opposite fill
type lot struct {
	Side      string
	Quantity  *big.Int // remaining, scaled by 10^18
	Price     *big.Int
	Fee       *big.Int // remaining fee attributed to Quantity
	Timestamp int64
}

// fill is a RawTrade with its amounts scaled
type fill struct {
	Symbol    string
	Side      string
	Quantity  *big.Int
	Price     *big.Int
	Fee       *big.Int
	Timestamp int64
}

// Book tracks open lots for one symbol and realizes PnL FIFO
type Book struct {
	Symbol   string
	Lots     []*lot
	Realized *big.Int
	Closed   int
}

// NewBook creates an empty book
func NewBook(symbol string) *Book {
	return &Book{Symbol: symbol, Realized: new(big.Int)}
}

// Apply matches a fill against the oldest opposite lots, then opens a lot
// with whatever quantity is left
func (b *Book) Apply(f fill) {
	remaining := new(big.Int).Set(f.Quantity)
	scale := field.Scale()

	for remaining.Sign() > 0 && len(b.Lots) > 0 {
		oldest := b.Lots[0]
		if oldest.Side == f.Side {
			break
		}

		match := minInt(remaining, oldest.Quantity)

		// Gross PnL direction depends on whether the lot is long or short
		diff := new(big.Int)
		if oldest.Side == "buy" {
			diff.Sub(f.Price, oldest.Price)
		} else {
			diff.Sub(oldest.Price, f.Price)
		}
		gross := quo(new(big.Int).Mul(diff, match), scale)

		entryFee := quo(new(big.Int).Mul(oldest.Fee, match), oldest.Quantity)
		exitFee := new(big.Int)
		if f.Quantity.Sign() > 0 {
			exitFee = quo(new(big.Int).Mul(f.Fee, match), f.Quantity)
		}

		net := gross.Sub(gross, entryFee)
		net.Sub(net, exitFee)
		b.Realized.Add(b.Realized, net)
		b.Closed++

		remaining.Sub(remaining, match)
		oldest.Quantity.Sub(oldest.Quantity, match)
		oldest.Fee.Sub(oldest.Fee, entryFee)

		if oldest.Quantity.Sign() == 0 {
			b.Lots = b.Lots[1:]
		}
	}

	if remaining.Sign() > 0 {
		fee := new(big.Int)
		if f.Quantity.Sign() > 0 {
			fee = quo(new(big.Int).Mul(f.Fee, remaining), f.Quantity)
		}
		b.Lots = append(b.Lots, &lot{
			Side:      f.Side,
			Quantity:  remaining,
			Price:     new(big.Int).Set(f.Price),
			Fee:       fee,
			Timestamp: f.Timestamp,
		})
	}
}

// Aggregate computes per-symbol realized PnL for a batch. Symbols are
// returned in order of first appearance; fills are applied in timestamp
// order, ties keeping batch order.
func Aggregate(trades []models.RawTrade) ([]models.SymbolPnL, models.SignedPnL, error) {
	fills := make([]fill, 0, len(trades))
	var order []string
	books := make(map[string]*Book)

	for i, t := range trades {
		side := field.Normalize(t.Side)
		if side != "buy" && side != "sell" {
			return nil, models.SignedPnL{}, fmt.Errorf("trade %d: %w: side %q", i, field.ErrUnknownEnum, t.Side)
		}
		qty, err := field.ScaleDecimal(t.Quantity)
		if err != nil {
			return nil, models.SignedPnL{}, fmt.Errorf("trade %d quantity: %w", i, err)
		}
		price, err := field.ScaleDecimal(t.Price)
		if err != nil {
			return nil, models.SignedPnL{}, fmt.Errorf("trade %d price: %w", i, err)
		}
		fee, err := field.ScaleDecimal(t.Fee)
		if err != nil {
			return nil, models.SignedPnL{}, fmt.Errorf("trade %d fee: %w", i, err)
		}

		if _, ok := books[t.Symbol]; !ok {
			books[t.Symbol] = NewBook(t.Symbol)
			order = append(order, t.Symbol)
		}
		fills = append(fills, fill{
			Symbol:    t.Symbol,
			Side:      side,
			Quantity:  qty,
			Price:     price,
			Fee:       fee,
			Timestamp: t.Timestamp,
		})
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp < fills[j].Timestamp
	})
	for _, f := range fills {
		books[f.Symbol].Apply(f)
	}

	total := new(big.Int)
	out := make([]models.SymbolPnL, 0, len(order))
	for _, symbol := range order {
		realized := books[symbol].Realized
		total.Add(total, realized)
		out = append(out, models.SymbolPnL{
			Name:         symbol,
			Symbol:       field.StringToFelt(symbol),
			Magnitude:    new(big.Int).Abs(realized),
			IsNegative:   realized.Sign() < 0,
			IsProfitable: realized.Sign() > 0,
		})
	}

	return out, models.SignedPnL{
		Value:      new(big.Int).Abs(total),
		IsNegative: total.Sign() < 0,
	}, nil
}

// quo divides truncating toward zero
func quo(a, b *big.Int) *big.Int {
	return a.Quo(a, b)
}

// minInt returns the smaller of two values
func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
