package field

import (
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/models"
)

// Encoder turns RawTrades into ProcessedTrades
type Encoder struct {
	// LenientEnums maps unknown sides and order types to code 0 instead of
	// failing. Only enable it for circuits that expect that fallback.
	LenientEnums bool
}

// NewEncoder creates a new encoder
func NewEncoder(lenient bool) *Encoder {
	return &Encoder{LenientEnums: lenient}
}

func (e *Encoder) side(value string) (uint64, error) {
	code, err := SideValue(value)
	if err != nil && e.LenientEnums {
		return SideBuy, nil
	}
	return code, err
}

func (e *Encoder) orderType(value string) (uint64, error) {
	code, err := OrderTypeValue(value)
	if err != nil && e.LenientEnums {
		return OrderMarket, nil
	}
	return code, err
}

// ProcessRawTrade encodes every field of raw. It has no side effects.
func (e *Encoder) ProcessRawTrade(raw models.RawTrade) (models.ProcessedTrade, error) {
	side, err := e.side(raw.Side)
	if err != nil {
		return models.ProcessedTrade{}, err
	}
	orderType, err := e.orderType(raw.OrderType)
	if err != nil {
		return models.ProcessedTrade{}, err
	}
	if raw.Timestamp < 0 {
		return models.ProcessedTrade{}, fmt.Errorf("%w: negative timestamp %d", ErrOutOfField, raw.Timestamp)
	}

	amounts := make([]*felt.Felt, 3)
	for i, v := range []struct{ name, value string }{
		{"quantity", raw.Quantity},
		{"price", raw.Price},
		{"fee", raw.Fee},
	} {
		scaled, err := ScaleDecimal(v.value)
		if err != nil {
			return models.ProcessedTrade{}, fmt.Errorf("failed to scale %s: %w", v.name, err)
		}
		f, err := ToFelt(scaled)
		if err != nil {
			return models.ProcessedTrade{}, fmt.Errorf("failed to encode %s: %w", v.name, err)
		}
		amounts[i] = f
	}

	return models.ProcessedTrade{
		TradeID:   StringToFelt(raw.TradeID),
		UserID:    StringToFelt(raw.UserID),
		Symbol:    StringToFelt(raw.Symbol),
		Exchange:  StringToFelt(raw.Exchange),
		Side:      FromUint64(side),
		OrderType: FromUint64(orderType),
		Quantity:  amounts[0],
		Price:     amounts[1],
		Fee:       amounts[2],
		Timestamp: FromUint64(uint64(raw.Timestamp)),
	}, nil
}

// ProcessBatch encodes trades in order
func (e *Encoder) ProcessBatch(raws []models.RawTrade) ([]models.ProcessedTrade, error) {
	out := make([]models.ProcessedTrade, 0, len(raws))
	for i, raw := range raws {
		p, err := e.ProcessRawTrade(raw)
		if err != nil {
			return nil, fmt.Errorf("trade %d (%s): %w", i, raw.TradeID, err)
		}
		out = append(out, p)
	}
	return out, nil
}
