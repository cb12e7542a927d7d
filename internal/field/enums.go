package field

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEnum = errors.New("unknown enum value")

// Side codes
const (
	SideBuy uint64 = iota
	SideSell
)

// Order type codes
const (
	OrderMarket uint64 = iota
	OrderLimit
	OrderStopLoss
	OrderStopLimit
	OrderTakeProfit
	OrderTakeProfitLimit
	OrderTrailingStop
)

var sides = map[string]uint64{
	"buy":  SideBuy,
	"sell": SideSell,
}

var orderTypes = map[string]uint64{
	"market":            OrderMarket,
	"limit":             OrderLimit,
	"stop_loss":         OrderStopLoss,
	"stop_limit":        OrderStopLimit,
	"take_profit":       OrderTakeProfit,
	"take_profit_limit": OrderTakeProfitLimit,
	"trailing_stop":     OrderTrailingStop,
}

// Normalize lowercases an enum string and maps '-' and ' ' to '_'
func Normalize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	return strings.NewReplacer("-", "_", " ", "_").Replace(v)
}

// SideValue returns the circuit code for a trade side
func SideValue(value string) (uint64, error) {
	code, ok := sides[Normalize(value)]
	if !ok {
		return 0, fmt.Errorf("%w: side %q", ErrUnknownEnum, value)
	}
	return code, nil
}

// OrderTypeValue returns the circuit code for an order type
func OrderTypeValue(value string) (uint64, error) {
	code, ok := orderTypes[Normalize(value)]
	if !ok {
		return 0, fmt.Errorf("%w: order type %q", ErrUnknownEnum, value)
	}
	return code, nil
}

// IsSide reports whether value names a known side
func IsSide(value string) bool {
	_, ok := sides[Normalize(value)]
	return ok
}

// IsOrderType reports whether value names a known order type
func IsOrderType(value string) bool {
	_, ok := orderTypes[Normalize(value)]
	return ok
}
