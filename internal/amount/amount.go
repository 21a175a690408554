// Package amount converts between human decimal strings and the fixed-point
// u64 amounts token programs store on chain.
package amount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

// ErrInvalidAmount is returned for text that is not a plain decimal number or
// whose fixed-point value does not fit in 64 bits.
var ErrInvalidAmount = errors.New("invalid amount")

// MaxDecimals is the largest decimal count for which 10^decimals fits in a u64.
const MaxDecimals = 19

// Parse converts text such as "1.5" into its fixed-point value for a token with
// the given number of decimals.
//
// Fractional digits beyond decimals are dropped, not rounded: "0.129" with two
// decimals parses to 12.
func Parse(text string, decimals uint8) (uint64, error) {
	text = strings.TrimSpace(text)
	whole, frac, found := strings.Cut(text, ".")
	if found && strings.Contains(frac, ".") {
		return 0, fmt.Errorf("%w: %q has more than one decimal point", ErrInvalidAmount, text)
	}

	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, text)
	}

	scale := int(decimals)
	if len(frac) > scale {
		frac = frac[:scale]
	} else {
		frac += strings.Repeat("0", scale-len(frac))
	}

	w, err := parseDigits(whole)
	if err != nil {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, text)
	}
	f, err := parseDigits(frac)
	if err != nil {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, text)
	}
	if w == 0 {
		return f, nil
	}

	unit, ok := pow10(decimals)
	if !ok {
		return 0, fmt.Errorf("%w: %q overflows u64 at %d decimals", ErrInvalidAmount, text, decimals)
	}
	v, overflow := math.SafeMul(w, unit)
	if overflow {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, text)
	}
	v, overflow = math.SafeAdd(v, f)
	if overflow {
		return 0, fmt.Errorf("%w: %q overflows u64", ErrInvalidAmount, text)
	}
	return v, nil
}

// Validate reports whether text is syntactically a decimal amount, without
// knowing the token's decimals.
func Validate(text string) error {
	text = strings.TrimSpace(text)
	whole, frac, found := strings.Cut(text, ".")
	if found && strings.Contains(frac, ".") {
		return fmt.Errorf("%w: %q has more than one decimal point", ErrInvalidAmount, text)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, text)
	}
	return nil
}

// Format renders a fixed-point value with trailing fractional zeros removed.
func Format(v uint64, decimals uint8) string {
	digits := strconv.FormatUint(v, 10)
	if decimals == 0 {
		return digits
	}

	scale := int(decimals)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-scale]
	frac := strings.TrimRight(digits[len(digits)-scale:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseDigits(s string) (uint64, error) {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func pow10(decimals uint8) (uint64, bool) {
	if decimals > MaxDecimals {
		return 0, false
	}
	out := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out, true
}
