package proof

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
	"gopkg.in/validator.v2"
)

// MaxTrades is the largest batch the circuit accepts
const MaxTrades = 10

var maxU256 = new(big.Int).Lsh(big.NewInt(1), 256)

// FieldError describes one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in a request
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// tagErrors runs validator.v2 over v and records failures under their JSON
// names, prefixed with prefix
func (e *ValidationError) tagErrors(prefix string, v interface{}) {
	err := validator.Validate(v)
	if err == nil {
		return
	}
	errs, ok := err.(validator.ErrorMap)
	if !ok {
		e.add(strings.TrimSuffix(prefix, "."), "%v", err)
		return
	}

	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	t := reflect.TypeOf(v)
	for _, name := range names {
		e.add(prefix+jsonName(t, name), "%v", errs[name])
	}
}

func jsonName(t reflect.Type, goName string) string {
	if f, ok := t.FieldByName(goName); ok {
		if tag := strings.Split(f.Tag.Get("json"), ",")[0]; tag != "" {
			return tag
		}
	}
	return goName
}

// GenerateRequest is a batch of trades to commit to
type GenerateRequest struct {
	Trades         []models.RawTrade `json:"trades" validate:"-"`
	TraderID       string            `json:"trader_id" validate:"nonzero,max=128"`
	TimestampStart int64             `json:"timestamp_start" validate:"min=0"`
	TimestampEnd   int64             `json:"timestamp_end" validate:"min=0"`
}

// Validate checks the request shape and every trade. Unknown order types are
// accepted when lenient is set.
func (r GenerateRequest) Validate(lenient bool) error {
	verr := &ValidationError{}
	verr.tagErrors("", r)

	if r.TimestampStart > r.TimestampEnd {
		verr.add("timestamp_end", "must not be before timestamp_start")
	}
	if n := len(r.Trades); n < 1 || n > MaxTrades {
		verr.add("trades", "must contain between 1 and %d trades, got %d", MaxTrades, n)
	}

	for i, t := range r.Trades {
		prefix := fmt.Sprintf("trades[%d].", i)
		verr.tagErrors(prefix, t)

		if t.Side != "" && !field.IsSide(t.Side) {
			verr.add(prefix+"side", "must be buy or sell")
		}
		if t.OrderType != "" && !lenient && !field.IsOrderType(t.OrderType) {
			verr.add(prefix+"order_type", "unknown order type %q", t.OrderType)
		}
		checkDecimal(verr, prefix+"quantity", t.Quantity, true)
		checkDecimal(verr, prefix+"price", t.Price, true)
		checkDecimal(verr, prefix+"fee", t.Fee, false)
		if r.TimestampStart <= r.TimestampEnd && (t.Timestamp < r.TimestampStart || t.Timestamp > r.TimestampEnd) {
			verr.add(prefix+"timestamp", "must be within [timestamp_start, timestamp_end]")
		}
	}
	return verr.err()
}

func checkDecimal(verr *ValidationError, name, value string, positive bool) {
	if value == "" {
		return
	}
	v, err := field.ScaleDecimal(value)
	if err != nil {
		verr.add(name, "must be a non-negative decimal string")
		return
	}
	if positive && v.Sign() == 0 {
		verr.add(name, "must be greater than zero")
	}
}

// SubmitRequest carries a generated report to be recorded on-chain
type SubmitRequest struct {
	TraderID         string `json:"trader_id" validate:"nonzero,max=128"`
	TraderAddress    string `json:"trader_address" validate:"nonzero"`
	TimestampStart   int64  `json:"timestamp_start" validate:"min=0"`
	TimestampEnd     int64  `json:"timestamp_end" validate:"min=0"`
	TradeCount       uint64 `json:"trade_count" validate:"min=1,max=10"`
	SymbolCount      uint64 `json:"symbol_count" validate:"min=1,max=10"`
	ReportHash       string `json:"report_hash" validate:"nonzero"`
	Commitment       string `json:"commitment" validate:"nonzero"`
	TotalPnLValue    string `json:"total_pnl_value" validate:"nonzero"`
	TotalPnLNegative bool   `json:"total_pnl_negative"`
}

// parsed is a SubmitRequest converted to chain types
type parsed struct {
	report models.TradingReportInput
	pnl    models.SignedPnL
}

func (r SubmitRequest) parse() (*parsed, error) {
	verr := &ValidationError{}
	verr.tagErrors("", r)

	if r.TimestampStart > r.TimestampEnd {
		verr.add("timestamp_end", "must not be before timestamp_start")
	}
	if r.SymbolCount > r.TradeCount {
		verr.add("symbol_count", "must not exceed trade_count")
	}

	var address, reportHash, commitment *felt.Felt
	if r.TraderAddress != "" {
		a, err := ParseAddress(r.TraderAddress)
		if err != nil {
			verr.add("trader_address", "must be a 0x-prefixed hex felt")
		}
		address = a
	}
	if r.ReportHash != "" {
		h, err := field.ParseFelt(r.ReportHash)
		if err != nil {
			verr.add("report_hash", "must be a field element")
		}
		reportHash = h
	}
	if r.Commitment != "" {
		c, err := field.ParseFelt(r.Commitment)
		if err != nil {
			verr.add("commitment", "must be a field element")
		}
		commitment = c
	}

	value := new(big.Int)
	if r.TotalPnLValue != "" {
		v, ok := new(big.Int).SetString(r.TotalPnLValue, 10)
		if !ok || v.Sign() < 0 || v.Cmp(maxU256) >= 0 {
			verr.add("total_pnl_value", "must be a non-negative integer string below 2^256")
		} else {
			value = v
		}
	}

	if err := verr.err(); err != nil {
		return nil, err
	}
	return &parsed{
		report: models.TradingReportInput{
			TraderAddress:  address,
			TimestampStart: uint64(r.TimestampStart),
			TimestampEnd:   uint64(r.TimestampEnd),
			TradeCount:     r.TradeCount,
			SymbolCount:    r.SymbolCount,
			ReportHash:     reportHash,
			Commitment:     commitment,
		},
		pnl: models.SignedPnL{Value: value, IsNegative: r.TotalPnLNegative},
	}, nil
}

// ParseAddress accepts a 0x-prefixed hex felt
func ParseAddress(s string) (*felt.Felt, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("%w: address %q must be 0x-prefixed", field.ErrOutOfField, s)
	}
	return field.ParseFelt(s)
}
