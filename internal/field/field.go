// Package field encodes trade records into Starknet field elements.
//
// Every value produced here must match what the Cairo circuit computes for
// the same input, so the encoding rules are fixed: strings are read as
// big-endian integers reduced modulo the field prime, decimals are scaled
// to 18 fractional digits by truncation, and enums map to small integer
// codes.
package field

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits kept by ScaleDecimal
const Decimals = 18

var (
	// Prime is the felt252 modulus, 2^251 + 17*2^192 + 1
	Prime, _ = new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)

	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
)

var (
	ErrInvalidDecimal  = errors.New("invalid decimal string")
	ErrNegativeDecimal = errors.New("negative decimal not supported")
	ErrOutOfField      = errors.New("value out of field range")
)

// Scale returns 10^18 as a fresh integer
func Scale() *big.Int {
	return new(big.Int).Set(scale)
}

// StringToFelt interprets the UTF-8 bytes of value as a big-endian integer
// reduced modulo Prime. Distinct strings that differ by a multiple of the
// prime collide; this is accepted.
func StringToFelt(value string) *felt.Felt {
	n := new(big.Int).SetBytes([]byte(value))
	n.Mod(n, Prime)
	return new(felt.Felt).SetBigInt(n)
}

// ScaleDecimal converts a decimal string into an integer equal to
// value * 10^18. Digits beyond the 18th fractional place are dropped.
func ScaleDecimal(value string) (*big.Int, error) {
	if value == "" {
		return nil, ErrInvalidDecimal
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("%w: %q", ErrNegativeDecimal, value)
	}

	parts := strings.Split(value, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}

	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(parts) == 2 && parts[0] == "" && fracPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}

	if len(fracPart) > Decimals {
		fracPart = fracPart[:Decimals]
	} else {
		fracPart += strings.Repeat("0", Decimals-len(fracPart))
	}

	digits := intPart + fracPart
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
		}
	}

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}
	return n, nil
}

// UnscaleDecimal renders a 10^18-scaled integer as a plain decimal string
func UnscaleDecimal(value *big.Int) string {
	return decimal.NewFromBigInt(value, -Decimals).String()
}

// ToFelt converts a non-negative integer below Prime into a field element
func ToFelt(value *big.Int) (*felt.Felt, error) {
	if value.Sign() < 0 || value.Cmp(Prime) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrOutOfField, value.String())
	}
	return new(felt.Felt).SetBigInt(value), nil
}

// FromUint64 wraps an integer as a field element
func FromUint64(v uint64) *felt.Felt {
	return new(felt.Felt).SetUint64(v)
}

// FromBool encodes true as 1 and false as 0
func FromBool(b bool) *felt.Felt {
	if b {
		return new(felt.Felt).SetUint64(1)
	}
	return new(felt.Felt).SetUint64(0)
}

// ParseFelt accepts a decimal or 0x-prefixed hex string and returns the
// field element it names. Values at or above Prime are rejected rather
// than reduced.
func ParseFelt(s string) (*felt.Felt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrOutOfField)
	}
	var (
		n  *big.Int
		ok bool
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a number", ErrOutOfField, s)
	}
	return ToFelt(n)
}

// Decimal returns the base-10 form of a field element
func Decimal(f *felt.Felt) string {
	return f.Text(10)
}

// Hex returns the 0x-prefixed form of a field element
func Hex(f *felt.Felt) string {
	return "0x" + f.Text(16)
}

// BigInt copies a field element into a new big.Int
func BigInt(f *felt.Felt) *big.Int {
	return f.BigInt(new(big.Int))
}
