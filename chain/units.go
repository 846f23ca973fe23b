package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string like "12.5" into an integer scaled by
// 10^decimals. More fractional digits than decimals is an error rather than a
// silent truncation.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	neg := strings.HasPrefix(amount, "-")
	if neg {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return v, nil
}

// FormatUnits renders a scaled integer as a decimal string, trimming
// trailing fractional zeros. FormatUnits(big.NewInt(1500000), 6) == "1.5".
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	s := v.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
