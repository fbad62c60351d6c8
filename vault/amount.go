package vault

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the scale of both the underlying token and the vault share.
const Decimals = 6

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseAmount converts a human-readable amount (e.g. "100.50") to its scaled
// on-chain representation. Extra fractional digits are truncated.
func ParseAmount(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(strings.ReplaceAll(amount, ",", ""))
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(amount, "-")
	amount = strings.TrimPrefix(strings.TrimPrefix(amount, "-"), "+")

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}

	// Pad or truncate the fractional part to the token scale
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	if neg {
		result.Neg(result)
	}
	return result, nil
}

// ToDisplay converts a scaled amount to a float for presentation and ratios.
// A nil amount displays as zero.
func ToDisplay(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(amount, unit).Float64()
	return f
}

// FormatAmount renders a scaled amount with all six fractional digits.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	abs := new(big.Int).Abs(amount)
	whole := new(big.Int).Div(abs, unit)
	remainder := new(big.Int).Mod(abs, unit)

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	frac := remainder.String()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return sign + whole.String() + "." + frac
}

// FormatDisplay renders a display value with thousands separators and at
// most two fractional digits, trailing zeros trimmed.
func FormatDisplay(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "" {
		out += "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// Fraction returns percent/100 of base, rounded down. It backs the
// 25/50/75/100 percent selectors.
func Fraction(base *big.Int, percent int64) *big.Int {
	if base == nil || base.Sign() <= 0 || percent <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(base, big.NewInt(percent))
	return out.Quo(out, big.NewInt(100))
}

// FirstLine returns the first line of an error message. Wallet and node
// errors often carry multi-line diagnostics that are noise to a user.
func FirstLine(err error) string {
	if err == nil {
		return ""
	}
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}
